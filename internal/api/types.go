package api

import (
	"time"

	"eeg-stress-api/internal/analysis"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"
	"eeg-stress-api/internal/stress"
)

// Status values used in response bodies.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusHealthy     = "healthy"
	StatusLoading     = "loading"
	StatusUnavailable = "unavailable"
)

// AnalyzeResponse is the body of a successful POST /analyze.
type AnalyzeResponse struct {
	Status          string             `json:"status"`
	AnalysisID      string             `json:"analysis_id"`
	RequestID       string             `json:"request_id,omitempty"`
	StressLevel     stress.Level       `json:"stress_level"`
	StressLabel     string             `json:"stress_label"`
	Confidence      float64            `json:"confidence"`
	WaveMetrics     map[string]float64 `json:"wave_metrics"`
	Recommendations []string           `json:"recommendations"`
	Message         string             `json:"message"`
}

// NewAnalyzeResponse builds the success body for a report.
func NewAnalyzeResponse(r *analysis.Report) AnalyzeResponse {
	return AnalyzeResponse{
		Status:          StatusSuccess,
		AnalysisID:      r.ID,
		RequestID:       r.RequestID,
		StressLevel:     r.Assessment.Level,
		StressLabel:     r.Assessment.Label,
		Confidence:      r.Confidence(),
		WaveMetrics:     r.WaveMetrics,
		Recommendations: r.Assessment.Recommendations,
		Message:         r.Message(),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status  string `json:"status"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string    `json:"status"`
	ModelState   string    `json:"model_state"`
	ModelVersion string    `json:"model_version,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ModelInfoResponse is the body of GET /model/info.
type ModelInfoResponse = ml.ModelInfo

// HistoryResponse is the body of GET /analyses.
type HistoryResponse struct {
	Analyses []storage.AnalysisRecord `json:"analyses"`
	Count    int                      `json:"count"`
}
