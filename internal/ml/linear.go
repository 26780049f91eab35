package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// linearModelFile is the JSON layout of a linear softmax model. Mean and Scale
// are optional per-feature standardisation applied before the weights.
type linearModelFile struct {
	Weights [][]float64 `json:"weights"` // [class][feature]
	Bias    []float64   `json:"bias"`
	Mean    []float64   `json:"mean,omitempty"`
	Scale   []float64   `json:"scale,omitempty"`
}

// LinearLoader reads linear models exported as JSON.
type LinearLoader struct{}

func (LinearLoader) Load(path string, md *ModelMetadata) (Classifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	var f linearModelFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse linear model: %w", err)
	}
	return newLinearClassifier(f, md.InputWidth(), md.OutputWidth())
}

// linearClassifier scores x as W·((x-mean)/scale) + b. It is read-only after
// construction and safe for concurrent use.
type linearClassifier struct {
	weights *mat.Dense
	bias    *mat.VecDense
	mean    []float64
	scale   []float64
}

func newLinearClassifier(f linearModelFile, inputs, classes int) (*linearClassifier, error) {
	if len(f.Weights) != classes {
		return nil, fmt.Errorf("linear model has %d weight rows, want %d", len(f.Weights), classes)
	}
	if len(f.Bias) != classes {
		return nil, fmt.Errorf("linear model has %d biases, want %d", len(f.Bias), classes)
	}
	if f.Mean != nil && len(f.Mean) != inputs {
		return nil, fmt.Errorf("linear model has %d means, want %d", len(f.Mean), inputs)
	}
	if f.Scale != nil && len(f.Scale) != inputs {
		return nil, fmt.Errorf("linear model has %d scales, want %d", len(f.Scale), inputs)
	}

	flat := make([]float64, 0, classes*inputs)
	for i, row := range f.Weights {
		if len(row) != inputs {
			return nil, fmt.Errorf("linear model row %d has %d weights, want %d", i, len(row), inputs)
		}
		flat = append(flat, row...)
	}
	for i, s := range f.Scale {
		if s == 0 {
			return nil, fmt.Errorf("linear model scale %d is zero", i)
		}
	}

	return &linearClassifier{
		weights: mat.NewDense(classes, inputs, flat),
		bias:    mat.NewVecDense(classes, append([]float64(nil), f.Bias...)),
		mean:    f.Mean,
		scale:   f.Scale,
	}, nil
}

func (c *linearClassifier) Predict(ctx context.Context, features []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, inputs := c.weights.Dims()
	if len(features) != inputs {
		return nil, fmt.Errorf("ml: got %d features, model expects %d", len(features), inputs)
	}

	x := make([]float64, inputs)
	for i, v := range features {
		x[i] = float64(v)
		if c.mean != nil {
			x[i] -= c.mean[i]
		}
		if c.scale != nil {
			x[i] /= c.scale[i]
		}
	}

	var out mat.VecDense
	out.MulVec(c.weights, mat.NewVecDense(inputs, x))
	out.AddVec(&out, c.bias)

	scores := make([]float32, out.Len())
	for i := range scores {
		scores[i] = float32(out.AtVec(i))
	}
	return scores, nil
}

func (c *linearClassifier) Close() error { return nil }
