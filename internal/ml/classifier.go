// Package ml owns the pretrained stress classifier: loading it from disk,
// tracking whether it is ready, and turning its raw scores into a decision.
//
// Two model formats are supported. ONNX graphs run through onnxruntime and
// plain linear models are read from JSON, which keeps the service usable on
// hosts without the native runtime.
package ml

import (
	"context"
	"errors"
)

var (
	ErrLoadInProgress   = errors.New("ml: model load already in progress")
	ErrNotLoaded        = errors.New("ml: model not loaded")
	ErrUnsupportedModel = errors.New("ml: unsupported model format")
)

// Classifier produces one raw score per class for a feature vector.
type Classifier interface {
	// Predict returns unnormalised scores (logits) for each class.
	Predict(ctx context.Context, features []float32) ([]float32, error)

	// Close releases any native resources held by the classifier.
	Close() error
}

// MetricsInterface defines metrics methods needed by the model manager
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLModelLoadsInc(result string)
	MLModelStateSet(state float64)
	MLPredictionScoresObserve(float64)
}
