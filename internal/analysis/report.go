package analysis

import (
	"fmt"
	"strconv"
	"time"

	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"
	"eeg-stress-api/internal/stress"
)

// Report is the outcome of one successful analysis.
type Report struct {
	ID              string
	RequestID       string
	FileName        string
	SHA256          string
	SizeBytes       int64
	Prediction      ml.Prediction
	Assessment      stress.Assessment
	WaveMetrics     map[string]float64
	Channels        int
	SampleRate      float64
	DroppedChannels []string
	FeatureLength   int
	Duration        time.Duration
	CreatedAt       time.Time
}

// Confidence is the winning class probability in percent.
func (r *Report) Confidence() float64 {
	return r.Prediction.Confidence
}

// Message is the one-line human summary of the result.
func (r *Report) Message() string {
	return fmt.Sprintf("Analysis complete: %s detected with %s%% confidence",
		r.Assessment.Label, strconv.FormatFloat(r.Confidence(), 'f', 1, 64))
}

// Record converts the report into its persisted form.
func (r *Report) Record() storage.AnalysisRecord {
	return storage.AnalysisRecord{
		ID:          r.ID,
		RequestID:   r.RequestID,
		FileName:    r.FileName,
		SHA256:      r.SHA256,
		SizeBytes:   r.SizeBytes,
		Outcome:     storage.OutcomeSuccess,
		StressLevel: string(r.Assessment.Level),
		StressLabel: r.Assessment.Label,
		Confidence:  r.Confidence(),
		WaveMetrics: r.WaveMetrics,
		Channels:    r.Channels,
		SampleRate:  r.SampleRate,
		DurationMS:  float64(r.Duration.Microseconds()) / 1000,
		CreatedAt:   r.CreatedAt,
	}
}
