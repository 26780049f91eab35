package ml

import (
	"errors"
	"math"
)

// Prediction is the decision taken from one set of scores.
type Prediction struct {
	Class         int       `json:"class"`
	Probabilities []float64 `json:"probabilities"`
	Confidence    float64   `json:"confidence"` // winning probability in percent, one decimal
}

// Softmax normalises scores into probabilities. The maximum is subtracted
// first so large logits do not overflow.
func Softmax(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}

	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, float64(s))
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(float64(s) - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Decide picks the most probable class. Ties go to the lower index.
func Decide(scores []float32) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, errors.New("ml: empty prediction result")
	}
	for _, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return Prediction{}, errors.New("ml: model produced non-finite scores")
		}
	}

	probs := Softmax(scores)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	return Prediction{
		Class:         best,
		Probabilities: probs,
		Confidence:    math.Round(probs[best]*100*10) / 10,
	}, nil
}
