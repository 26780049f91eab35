// Package analysis runs one uploaded EEG recording through the stress
// pipeline: the upload is spooled to a private temp file, decoded, band-pass
// filtered, reduced to the classifier's feature vector and band powers, and
// classified. The temp file never outlives the call.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eeg-stress-api/internal/dsp"
	"eeg-stress-api/internal/edf"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/features"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"
	"eeg-stress-api/internal/stress"
)

// EDFExtension is the only accepted upload suffix. The check is case-sensitive.
const EDFExtension = ".edf"

// Predictor is the model handle the pipeline classifies with.
type Predictor interface {
	Ready() bool
	Predict(ctx context.Context, features []float32) (ml.Prediction, error)
}

// Store persists analysis outcomes.
type Store interface {
	SaveAnalysis(storage.AnalysisRecord) error
	SaveFeatures(storage.FeatureRecord) error
}

// Publisher receives an event for every finished analysis.
type Publisher interface {
	Publish(events.Event) int
}

// MetricsInterface defines metrics methods needed by the analyzer
type MetricsInterface interface {
	AnalysisObserve(outcome string, seconds float64)
	AnalysisErrorInc(stage string)
	AnalysisStageObserve(stage string, seconds float64)
	UploadBytesObserve(float64)
	ChannelsDroppedAdd(float64)
	FeatureLengthMismatchInc()
	StressLevelInc(level string)
	ConfidenceObserve(float64)
}

// Config wires an Analyzer. Only Model is required.
type Config struct {
	Model   Predictor
	Store   Store
	Events  Publisher
	Metrics MetricsInterface
	TempDir string // empty uses the OS default
}

// Upload is one recording handed to the pipeline.
type Upload struct {
	FileName  string
	Content   io.Reader
	RequestID string
}

type Analyzer struct {
	model   Predictor
	store   Store
	events  Publisher
	metrics MetricsInterface
	tempDir string
}

func New(cfg Config) *Analyzer {
	return &Analyzer{
		model:   cfg.Model,
		store:   cfg.Store,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		tempDir: cfg.TempDir,
	}
}

// Analyze validates the upload, spools it to a temp file and runs the
// pipeline. Client errors (ErrModelNotReady, ErrNoFile, ErrInvalidExtension)
// are returned before anything touches the disk; later failures are
// *ProcessingError values naming the stage.
func (a *Analyzer) Analyze(ctx context.Context, up Upload) (*Report, error) {
	if a.model == nil || !a.model.Ready() {
		return nil, ErrModelNotReady
	}
	if up.FileName == "" || up.Content == nil {
		return nil, ErrNoFile
	}
	if !strings.HasSuffix(up.FileName, EDFExtension) {
		return nil, ErrInvalidExtension
	}

	start := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("analysis id: %w", err)
	}

	logger := zerolog.Ctx(ctx).With().
		Str("analysis_id", id.String()).
		Str("file", up.FileName).
		Logger()

	report := &Report{
		ID:        id.String(),
		RequestID: up.RequestID,
		FileName:  up.FileName,
		CreatedAt: start.UTC(),
	}

	err = a.run(ctx, &logger, up.Content, report)
	report.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, ml.ErrNotLoaded) {
			err = ErrModelNotReady
		}
		a.fail(&logger, report, err)
		return nil, err
	}

	a.succeed(&logger, report)
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, logger *zerolog.Logger, content io.Reader, report *Report) error {
	tmp, err := os.CreateTemp(a.tempDir, "eeg-*"+EDFExtension)
	if err != nil {
		return stageError(StageStore, err)
	}
	path := tmp.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Debug().Err(rmErr).Str("path", path).Msg("failed to remove temp file")
		}
	}()

	if err := a.timed(StageStore, func() error {
		hash := sha256.New()
		n, copyErr := io.Copy(io.MultiWriter(tmp, hash), content)
		closeErr := tmp.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
		report.SizeBytes = n
		report.SHA256 = hex.EncodeToString(hash.Sum(nil))
		return nil
	}); err != nil {
		return stageError(StageStore, err)
	}
	if a.metrics != nil {
		a.metrics.UploadBytesObserve(float64(report.SizeBytes))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var data [][]float64
	var fs float64
	if err := a.timed(StageDecode, func() error {
		rec, err := edf.Open(path)
		if err != nil {
			return err
		}
		var dropped []string
		data, fs, dropped, err = rec.Data()
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			logger.Warn().Strs("channels", dropped).Float64("sample_rate", fs).Msg("dropping channels with a different sample rate")
			if a.metrics != nil {
				a.metrics.ChannelsDroppedAdd(float64(len(dropped)))
			}
		}
		report.DroppedChannels = dropped
		return nil
	}); err != nil {
		return stageError(StageDecode, err)
	}
	report.Channels = len(data)
	report.SampleRate = fs
	if err := ctx.Err(); err != nil {
		return err
	}

	var filtered [][]float64
	if err := a.timed(StageFilter, func() error {
		var err error
		filtered, err = dsp.FilterChannels(data, fs, dsp.PassLow, dsp.PassHigh)
		return err
	}); err != nil {
		return stageError(StageFilter, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var vec []float32
	if err := a.timed(StageFeatures, func() error {
		var raw int
		vec, raw = features.Extract(filtered)
		report.FeatureLength = raw
		if raw != features.InputDim {
			logger.Warn().Int("length", raw).Int("expected", features.InputDim).Msg("feature vector length differs from model input, fitting")
			if a.metrics != nil {
				a.metrics.FeatureLengthMismatchInc()
			}
		}

		psd, err := dsp.ChannelPSD(filtered, fs, dsp.PassLow, dsp.PassHigh, dsp.DefaultNFFT)
		if err != nil {
			return err
		}
		report.WaveMetrics = dsp.BandPowers(psd)
		return nil
	}); err != nil {
		return stageError(StageFeatures, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := a.timed(StageInference, func() error {
		pred, err := a.model.Predict(ctx, vec)
		if err != nil {
			return err
		}
		report.Prediction = pred
		report.Assessment = stress.Assess(pred.Class)
		return nil
	}); err != nil {
		if errors.Is(err, ml.ErrNotLoaded) {
			return err
		}
		return stageError(StageInference, err)
	}

	if a.store != nil {
		fr := storage.FeatureRecord{
			AnalysisID: report.ID,
			Timestamp:  report.CreatedAt,
			Channels:   report.Channels,
			SampleRate: report.SampleRate,
			RawLength:  report.FeatureLength,
			Vector:     vec,
			Class:      report.Prediction.Class,
			Confidence: report.Prediction.Confidence,
		}
		if err := a.store.SaveFeatures(fr); err != nil {
			logger.Error().Err(err).Msg("failed to store feature vector")
		}
	}
	return nil
}

func (a *Analyzer) timed(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	if a.metrics != nil {
		a.metrics.AnalysisStageObserve(string(stage), time.Since(start).Seconds())
	}
	return err
}

func (a *Analyzer) succeed(logger *zerolog.Logger, report *Report) {
	if a.metrics != nil {
		a.metrics.AnalysisObserve(storage.OutcomeSuccess, report.Duration.Seconds())
		a.metrics.StressLevelInc(string(report.Assessment.Level))
		a.metrics.ConfidenceObserve(report.Confidence())
	}

	logger.Info().
		Str("stress_level", string(report.Assessment.Level)).
		Float64("confidence", report.Confidence()).
		Int("channels", report.Channels).
		Float64("sample_rate", report.SampleRate).
		Dur("took", report.Duration).
		Msg("analysis complete")

	rec := report.Record()
	a.persist(logger, rec)
	if a.events != nil {
		a.events.Publish(events.Event{Type: events.TypeAnalysisCompleted, Analysis: &rec})
	}
}

func (a *Analyzer) fail(logger *zerolog.Logger, report *Report, err error) {
	rec := storage.AnalysisRecord{
		ID:         report.ID,
		RequestID:  report.RequestID,
		FileName:   report.FileName,
		SHA256:     report.SHA256,
		SizeBytes:  report.SizeBytes,
		Outcome:    storage.OutcomeError,
		Channels:   report.Channels,
		SampleRate: report.SampleRate,
		Error:      err.Error(),
		DurationMS: float64(report.Duration.Microseconds()) / 1000,
		CreatedAt:  report.CreatedAt,
	}

	var perr *ProcessingError
	if errors.As(err, &perr) {
		rec.Stage = string(perr.Stage)
	}
	if a.metrics != nil {
		a.metrics.AnalysisObserve(storage.OutcomeError, report.Duration.Seconds())
		if rec.Stage != "" {
			a.metrics.AnalysisErrorInc(rec.Stage)
		}
	}

	logger.Warn().Err(err).Str("stage", rec.Stage).Dur("took", report.Duration).Msg("analysis failed")

	a.persist(logger, rec)
	if a.events != nil {
		a.events.Publish(events.Event{Type: events.TypeAnalysisFailed, Analysis: &rec})
	}
}

func (a *Analyzer) persist(logger *zerolog.Logger, rec storage.AnalysisRecord) {
	if a.store == nil {
		return
	}
	if err := a.store.SaveAnalysis(rec); err != nil {
		logger.Error().Err(err).Msg("failed to store analysis record")
	}
}

// Ready reports whether the model can serve analyses.
func (a *Analyzer) Ready() bool {
	return a.model != nil && a.model.Ready()
}
