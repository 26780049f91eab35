package ml

import (
	"context"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	latencySum       float64
	modelAge         float64
	loads            map[string]int
	states           []State
	predictionScores []float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLModelLoadsInc(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loads == nil {
		m.loads = make(map[string]int)
	}
	m.loads[result]++
}

func (m *MockMetrics) MLModelStateSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, State(v))
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

// StaticClassifier returns the same scores for every input. Other packages use
// it to exercise the pipeline without a model file.
type StaticClassifier struct {
	Scores []float32
	Err    error
}

func (c StaticClassifier) Predict(ctx context.Context, _ []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]float32(nil), c.Scores...), nil
}

func (StaticClassifier) Close() error { return nil }

// StaticLoader loads c regardless of the model path.
func StaticLoader(c Classifier) Loader {
	return LoaderFunc(func(string, *ModelMetadata) (Classifier, error) { return c, nil })
}
