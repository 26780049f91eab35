package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces the ml, events,
// analysis and api packages depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// HTTP

func (w *MetricsWrapper) HTTPRequestObserve(method, route string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// Analysis pipeline

func (w *MetricsWrapper) AnalysisObserve(outcome string, seconds float64) {
	w.m.Analyses.WithLabelValues(outcome).Inc()
	w.m.AnalysisDuration.Observe(seconds)
}

func (w *MetricsWrapper) AnalysisErrorInc(stage string) {
	w.m.AnalysisErrors.WithLabelValues(stage).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) AnalysisStageObserve(stage string, seconds float64) {
	w.m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (w *MetricsWrapper) UploadBytesObserve(n float64) {
	w.m.UploadBytes.Observe(n)
}

func (w *MetricsWrapper) ChannelsDroppedAdd(n float64) {
	w.m.ChannelsDropped.Add(n)
}

func (w *MetricsWrapper) FeatureLengthMismatchInc() {
	w.m.FeatureLengthMismatch.Inc()
}

func (w *MetricsWrapper) StressLevelInc(level string) {
	w.m.StressLevels.WithLabelValues(level).Inc()
}

func (w *MetricsWrapper) ConfidenceObserve(v float64) {
	w.m.Confidence.Observe(v)
}

// ML

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.MLPredictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *MetricsWrapper) MLModelLoadsInc(result string) {
	w.m.MLModelLoads.WithLabelValues(result).Inc()
}

func (w *MetricsWrapper) MLModelStateSet(v float64) {
	w.m.MLModelState.Set(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

// Live stream

func (w *MetricsWrapper) EventsPublishedInc() {
	w.m.EventsPublished.Inc()
}

func (w *MetricsWrapper) EventsDroppedInc() {
	w.m.EventsDropped.Inc()
}

func (w *MetricsWrapper) SubscribersSet(v float64) {
	w.m.StreamSubscribers.Set(v)
}
