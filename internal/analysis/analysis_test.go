package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-stress-api/internal/dsp"
	"eeg-stress-api/internal/edf"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/features"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"
	"eeg-stress-api/internal/stress"
)

// fakeModel classifies by comparing the standard deviation of the first two
// channels, so results depend on the uploaded content.
type fakeModel struct {
	ready bool
	err   error

	mu    sync.Mutex
	calls int
	last  []float32
}

func (m *fakeModel) Ready() bool { return m.ready }

func (m *fakeModel) Predict(ctx context.Context, vec []float32) (ml.Prediction, error) {
	m.mu.Lock()
	m.calls++
	m.last = vec
	m.mu.Unlock()

	if m.err != nil {
		return ml.Prediction{}, m.err
	}
	return ml.Decide([]float32{vec[1] * 1e5, vec[6] * 1e5})
}

type memStore struct {
	mu       sync.Mutex
	analyses []storage.AnalysisRecord
	features []storage.FeatureRecord
}

func (s *memStore) SaveAnalysis(r storage.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, r)
	return nil
}

func (s *memStore) SaveFeatures(r storage.FeatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, r)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return 1
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), r.after)
	r.after -= n
	return n, nil
}

func synthEDF(t *testing.T, cfg edf.SynthConfig) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, edf.Encode(&buf, edf.Synthesize(cfg)))
	return buf.Bytes()
}

type fixture struct {
	analyzer *Analyzer
	model    *fakeModel
	store    *memStore
	events   *recorder
	tempDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		model:   &fakeModel{ready: true},
		store:   &memStore{},
		events:  &recorder{},
		tempDir: t.TempDir(),
	}
	f.analyzer = New(Config{Model: f.model, Store: f.store, Events: f.events, TempDir: f.tempDir})
	return f
}

func (f *fixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp directory must be empty after a request")
}

func TestAnalyze_Success(t *testing.T) {
	f := newFixture(t)
	raw := synthEDF(t, edf.SynthConfig{Channels: 4, SampleRate: 256, Seconds: 4, Seed: 1})

	report, err := f.analyzer.Analyze(context.Background(), Upload{
		FileName:  "subject01.edf",
		Content:   bytes.NewReader(raw),
		RequestID: "req-1",
	})
	require.NoError(t, err)
	f.assertNoTempFiles(t)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "req-1", report.RequestID)
	assert.Equal(t, int64(len(raw)), report.SizeBytes)
	assert.Len(t, report.SHA256, 64)
	assert.Equal(t, 4, report.Channels)
	assert.Equal(t, 256.0, report.SampleRate)
	assert.Equal(t, 20, report.FeatureLength)

	assert.Contains(t, []string{"High Stress", "Low Stress"}, report.Assessment.Label)
	assert.Len(t, report.Assessment.Recommendations, 3)
	assert.GreaterOrEqual(t, report.Confidence(), 0.0)
	assert.LessOrEqual(t, report.Confidence(), 100.0)

	require.Len(t, report.WaveMetrics, len(dsp.Bands))
	for _, b := range dsp.Bands {
		assert.Greater(t, report.WaveMetrics[b.Name], 0.0, b.Name)
	}

	// The classifier always sees the fitted width.
	assert.Len(t, f.model.last, features.InputDim)

	require.Len(t, f.store.analyses, 1)
	assert.Equal(t, storage.OutcomeSuccess, f.store.analyses[0].Outcome)
	assert.Equal(t, report.ID, f.store.analyses[0].ID)
	require.Len(t, f.store.features, 1)
	assert.Len(t, f.store.features[0].Vector, features.InputDim)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.TypeAnalysisCompleted, f.events.events[0].Type)
	assert.Equal(t, report.ID, f.events.events[0].Analysis.ID)
}

func TestAnalyze_ClientErrors(t *testing.T) {
	raw := []byte("irrelevant")

	tests := []struct {
		name  string
		ready bool
		up    Upload
		want  error
	}{
		{"model not ready", false, Upload{FileName: "a.edf", Content: bytes.NewReader(raw)}, ErrModelNotReady},
		{"not ready wins over bad name", false, Upload{FileName: "a.txt", Content: bytes.NewReader(raw)}, ErrModelNotReady},
		{"no file name", true, Upload{Content: bytes.NewReader(raw)}, ErrNoFile},
		{"no content", true, Upload{FileName: "a.edf"}, ErrNoFile},
		{"wrong extension", true, Upload{FileName: "notes.txt", Content: bytes.NewReader(raw)}, ErrInvalidExtension},
		{"upper-case extension", true, Upload{FileName: "REC.EDF", Content: bytes.NewReader(raw)}, ErrInvalidExtension},
		{"edf not at end", true, Upload{FileName: "rec.edf.bak", Content: bytes.NewReader(raw)}, ErrInvalidExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.model.ready = tt.ready

			_, err := f.analyzer.Analyze(context.Background(), tt.up)
			assert.ErrorIs(t, err, tt.want)
			f.assertNoTempFiles(t)
			assert.Empty(t, f.store.analyses, "client errors are not recorded")
			assert.Zero(t, f.model.calls)
		})
	}
}

func TestAnalyze_ProcessingErrors(t *testing.T) {
	short := synthEDF(t, edf.SynthConfig{Channels: 2, SampleRate: 128, Seconds: 1})

	tests := []struct {
		name     string
		content  io.Reader
		modelErr error
		stage    Stage
	}{
		{"not an edf file", strings.NewReader("definitely not EDF"), nil, StageDecode},
		{"empty upload", strings.NewReader(""), nil, StageDecode},
		{"shorter than one welch segment", bytes.NewReader(short), nil, StageFeatures},
		{"upload interrupted", &failingReader{after: 100}, nil, StageStore},
		{"inference failure", bytes.NewReader(synthEDF(t, edf.SynthConfig{Channels: 2, Seconds: 2})), errors.New("session crashed"), StageInference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.model.err = tt.modelErr

			_, err := f.analyzer.Analyze(context.Background(), Upload{FileName: "rec.edf", Content: tt.content})
			require.Error(t, err)

			var perr *ProcessingError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.stage, perr.Stage)
			f.assertNoTempFiles(t)

			require.Len(t, f.store.analyses, 1)
			assert.Equal(t, storage.OutcomeError, f.store.analyses[0].Outcome)
			assert.Equal(t, string(tt.stage), f.store.analyses[0].Stage)
			assert.Empty(t, f.store.features)

			require.Len(t, f.events.events, 1)
			assert.Equal(t, events.TypeAnalysisFailed, f.events.events[0].Type)
		})
	}
}

func TestAnalyze_ModelUnloadedMidRequest(t *testing.T) {
	f := newFixture(t)
	f.model.err = ml.ErrNotLoaded

	raw := synthEDF(t, edf.SynthConfig{Channels: 2, Seconds: 2})
	_, err := f.analyzer.Analyze(context.Background(), Upload{FileName: "rec.edf", Content: bytes.NewReader(raw)})
	assert.ErrorIs(t, err, ErrModelNotReady)
	f.assertNoTempFiles(t)
}

func TestAnalyze_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := synthEDF(t, edf.SynthConfig{Channels: 2, Seconds: 2})
	_, err := f.analyzer.Analyze(ctx, Upload{FileName: "rec.edf", Content: bytes.NewReader(raw)})
	assert.ErrorIs(t, err, context.Canceled)
	f.assertNoTempFiles(t)
	assert.Zero(t, f.model.calls)
}

func TestAnalyze_Deterministic(t *testing.T) {
	f := newFixture(t)
	raw := synthEDF(t, edf.SynthConfig{Channels: 6, SampleRate: 128, Seconds: 6, Profile: edf.ProfileStressed, Seed: 9})

	first, err := f.analyzer.Analyze(context.Background(), Upload{FileName: "a.edf", Content: bytes.NewReader(raw)})
	require.NoError(t, err)
	second, err := f.analyzer.Analyze(context.Background(), Upload{FileName: "b.edf", Content: bytes.NewReader(raw)})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.SHA256, second.SHA256)
	assert.Equal(t, first.Assessment, second.Assessment)
	assert.Equal(t, first.Confidence(), second.Confidence())
	assert.Equal(t, first.WaveMetrics, second.WaveMetrics)
	f.assertNoTempFiles(t)
}

func TestAnalyze_WithoutOptionalDependencies(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{Model: &fakeModel{ready: true}, TempDir: dir})

	raw := synthEDF(t, edf.SynthConfig{Channels: 2, Seconds: 2})
	_, err := a.Analyze(context.Background(), Upload{FileName: "rec.edf", Content: bytes.NewReader(raw)})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.False(t, New(Config{}).Ready())
}

func TestReport_Message(t *testing.T) {
	tests := []struct {
		class      int
		confidence float64
		want       string
	}{
		{1, 76.9, "Analysis complete: High Stress detected with 76.9% confidence"},
		{0, 100, "Analysis complete: Low Stress detected with 100.0% confidence"},
		{0, 50, "Analysis complete: Low Stress detected with 50.0% confidence"},
	}

	for _, tt := range tests {
		r := &Report{Prediction: ml.Prediction{Class: tt.class, Confidence: tt.confidence}}
		r.Assessment = stress.Assess(tt.class)
		assert.Equal(t, tt.want, r.Message())
	}
}

func TestProcessingError(t *testing.T) {
	inner := errors.New("edf: invalid header")
	err := stageError(StageDecode, inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "error processing EEG file (decode): edf: invalid header", err.Error())
}
