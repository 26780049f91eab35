// Package metrics provides Prometheus metrics collection for the EEG stress
// service. It defines the request, pipeline, model and stream metrics exposed
// on the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by method, route and status code
	HTTPDuration *prometheus.HistogramVec // Request latency by route

	// Analysis pipeline metrics
	Analyses              *prometheus.CounterVec   // Completed analyses by outcome
	AnalysisDuration      prometheus.Histogram     // End-to-end analysis time
	AnalysisErrors        *prometheus.CounterVec   // Failed analyses by pipeline stage
	StageDuration         *prometheus.HistogramVec // Time spent per pipeline stage
	UploadBytes           prometheus.Histogram     // Size of uploaded recordings
	ChannelsDropped       prometheus.Counter       // Channels skipped for a non-dominant sample rate
	FeatureLengthMismatch prometheus.Counter       // Feature vectors that had to be padded or truncated
	StressLevels          *prometheus.CounterVec   // Results by stress level
	Confidence            prometheus.Histogram     // Reported confidence in percent

	// ML metrics
	MLPredictions      prometheus.Counter     // Total number of ML predictions made
	MLFailures         prometheus.Counter     // Total number of ML prediction failures
	MLModelAge         prometheus.Gauge       // Age of the current ML model in seconds
	MLLatency          prometheus.Histogram   // ML prediction latency in seconds
	MLPredictionScores prometheus.Histogram   // Distribution of winning class probabilities
	MLModelLoads       *prometheus.CounterVec // Model load attempts by result
	MLModelState       prometheus.Gauge       // 0 unloaded, 1 loading, 2 loaded

	// Live stream metrics
	EventsPublished   prometheus.Counter // Events published to the hub
	EventsDropped     prometheus.Counter // Deliveries skipped for slow subscribers
	StreamSubscribers prometheus.Gauge   // Connected stream subscribers

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_analyses_total",
			Help: "Total number of EEG analyses by outcome",
		}, []string{"outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eeg_analysis_duration_seconds",
			Help:    "End-to-end EEG analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		AnalysisErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_analysis_errors_total",
			Help: "Total number of failed analyses by pipeline stage",
		}, []string{"stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eeg_stage_duration_seconds",
			Help:    "Duration of each analysis pipeline stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eeg_upload_bytes",
			Help:    "Size of uploaded EDF recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<10, 4, 10),
		}),
		ChannelsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "eeg_channels_dropped_total",
			Help: "Total number of channels skipped because of a differing sample rate",
		}),
		FeatureLengthMismatch: factory.NewCounter(prometheus.CounterOpts{
			Name: "eeg_feature_length_mismatch_total",
			Help: "Total number of feature vectors padded or truncated to the model input width",
		}),
		StressLevels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_stress_level_total",
			Help: "Total number of results by stress level",
		}, []string{"level"}),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eeg_confidence_percent",
			Help:    "Distribution of reported confidence in percent",
			Buckets: prometheus.LinearBuckets(50, 5, 11),
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of ML predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the current ML model in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of ML prediction confidence scores",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		MLModelLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_model_loads_total",
			Help: "Total number of model load attempts by result",
		}, []string{"result"}),
		MLModelState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_state",
			Help: "Model lifecycle state (0 unloaded, 1 loading, 2 loaded)",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to stream subscribers",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of event deliveries dropped for slow subscribers",
		}),
		StreamSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Number of connected analysis stream subscribers",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
