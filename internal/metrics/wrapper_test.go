package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"eeg-stress-api/internal/analysis"
	"eeg-stress-api/internal/api"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/ml"
)

var (
	_ ml.MetricsInterface       = (*MetricsWrapper)(nil)
	_ events.MetricsInterface   = (*MetricsWrapper)(nil)
	_ analysis.MetricsInterface = (*MetricsWrapper)(nil)
	_ api.MetricsInterface      = (*MetricsWrapper)(nil)
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on metric names.
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.ErrorsTotal.Inc()
	if got := testutil.ToFloat64(b.ErrorsTotal); got != 0 {
		t.Errorf("Expected isolated counter value 0, got %f", got)
	}
}

func TestMetricsWrapper_HTTP(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.HTTPRequestObserve("POST", "/analyze", 200, 0.2)
	wrapper.HTTPRequestObserve("POST", "/analyze", 400, 0.01)
	wrapper.HTTPRequestObserve("POST", "/analyze", 200, 0.3)

	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("POST", "/analyze", "200")); got != 2 {
		t.Errorf("Expected 2 successful requests, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("POST", "/analyze", "400")); got != 1 {
		t.Errorf("Expected 1 failed request, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.HTTPDuration); got != 1 {
		t.Errorf("Expected one duration series, got %d", got)
	}
}

func TestMetricsWrapper_Analysis(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.AnalysisObserve("success", 1.5)
	wrapper.AnalysisErrorInc("decode")
	wrapper.AnalysisStageObserve("filter", 0.1)
	wrapper.UploadBytesObserve(4096)
	wrapper.ChannelsDroppedAdd(2)
	wrapper.FeatureLengthMismatchInc()
	wrapper.StressLevelInc("high")
	wrapper.ConfidenceObserve(87.5)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"analyses", metrics.Analyses.WithLabelValues("success"), 1},
		{"decode errors", metrics.AnalysisErrors.WithLabelValues("decode"), 1},
		{"errors total", metrics.ErrorsTotal, 1},
		{"channels dropped", metrics.ChannelsDropped, 2},
		{"feature mismatch", metrics.FeatureLengthMismatch, 1},
		{"high stress", metrics.StressLevels.WithLabelValues("high"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestMetricsWrapper_ML(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	wrapper.MLFailuresInc()
	wrapper.MLLatencyObserve(0.002)
	wrapper.MLModelAgeSet(3600)
	wrapper.MLModelLoadsInc("success")
	wrapper.MLModelStateSet(float64(ml.StateLoaded))
	wrapper.MLPredictionScoresObserve(0.9)

	if got := testutil.ToFloat64(metrics.MLPredictions); got != 2 {
		t.Errorf("Expected 2 predictions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.MLFailures); got != 1 {
		t.Errorf("Expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.MLModelAge); got != 3600 {
		t.Errorf("Expected model age 3600, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.MLModelLoads.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful load, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.MLModelState); got != 2 {
		t.Errorf("Expected loaded state 2, got %f", got)
	}
}

func TestMetricsWrapper_Events(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	hub := events.NewHub(1, wrapper)
	sub := hub.Subscribe()
	hub.Publish(events.Event{Type: events.TypeAnalysisCompleted})
	hub.Publish(events.Event{Type: events.TypeAnalysisCompleted})

	if got := testutil.ToFloat64(metrics.EventsPublished); got != 2 {
		t.Errorf("Expected 2 published events, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.EventsDropped); got != 1 {
		t.Errorf("Expected 1 dropped event, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.StreamSubscribers); got != 1 {
		t.Errorf("Expected 1 subscriber, got %f", got)
	}

	sub.Close()
	if got := testutil.ToFloat64(metrics.StreamSubscribers); got != 0 {
		t.Errorf("Expected 0 subscribers after close, got %f", got)
	}
	hub.Close()
}
