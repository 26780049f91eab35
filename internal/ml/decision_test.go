package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float32{1, 1})
	assert.Equal(t, []float64{0.5, 0.5}, probs)

	// Large logits must not overflow.
	probs = Softmax([]float32{1000, 0})
	assert.InDelta(t, 1.0, probs[0], 1e-12)
	assert.False(t, math.IsNaN(probs[1]))

	assert.Nil(t, Softmax(nil))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float32
		class      int
		confidence float64
	}{
		{"high stress", []float32{0.2, 1.4}, 1, 76.9},
		{"low stress", []float32{2, -1}, 0, 95.3},
		{"tie goes to first class", []float32{0.3, 0.3}, 0, 50},
		{"certain", []float32{-50, 50}, 1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decide(tt.scores)
			require.NoError(t, err)
			assert.Equal(t, tt.class, p.Class)
			assert.InDelta(t, tt.confidence, p.Confidence, 1e-9)
			assert.GreaterOrEqual(t, p.Confidence, 0.0)
			assert.LessOrEqual(t, p.Confidence, 100.0)
			assert.InDelta(t, 1.0, p.Probabilities[0]+p.Probabilities[1], 1e-12)
		})
	}
}

func TestDecide_Invalid(t *testing.T) {
	_, err := Decide(nil)
	assert.Error(t, err)

	_, err = Decide([]float32{float32(math.NaN()), 1})
	assert.Error(t, err)

	_, err = Decide([]float32{float32(math.Inf(1)), 1})
	assert.Error(t, err)
}
