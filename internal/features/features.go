// Package features turns filtered EEG channels into the fixed-width vector the
// stress classifier was trained on.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// InputDim is the classifier's input width.
const InputDim = 155

// Names lists the per-channel statistics in the order they are emitted.
var Names = []string{"mean", "std", "skewness", "kurtosis", "ptp"}

// PerChannelCount is the number of statistics computed for every channel.
var PerChannelCount = len(Names)

// Channel computes the statistics of one channel. Flat channels report zero
// skewness and kurtosis.
func Channel(x []float64) []float64 {
	out := make([]float64, PerChannelCount)
	if len(x) == 0 {
		return out
	}

	mean, std := stat.MeanStdDev(x, nil)
	out[0] = mean
	out[1] = std
	if std > 0 && len(x) > 3 {
		out[2] = stat.Skew(x, nil)
		out[3] = stat.ExKurtosis(x, nil)
	}
	out[4] = floats.Max(x) - floats.Min(x)

	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
		}
	}
	return out
}

// PerChannel concatenates the statistics of every channel, channel by channel.
func PerChannel(data [][]float64) []float64 {
	vec := make([]float64, 0, len(data)*PerChannelCount)
	for _, ch := range data {
		vec = append(vec, Channel(ch)...)
	}
	return vec
}

// Fit truncates or zero-pads vec to exactly dim entries.
func Fit(vec []float64, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim && i < len(vec); i++ {
		out[i] = float32(vec[i])
	}
	return out
}

// Extract returns the classifier input for data together with the length of
// the vector before it was fitted to InputDim.
func Extract(data [][]float64) (vec []float32, raw int) {
	full := PerChannel(data)
	return Fit(full, InputDim), len(full)
}

// FeatureNames labels a vector built from the given channels, e.g. "Fp1_std".
func FeatureNames(channels []string) []string {
	names := make([]string, 0, len(channels)*PerChannelCount)
	for _, ch := range channels {
		for _, n := range Names {
			names = append(names, fmt.Sprintf("%s_%s", ch, n))
		}
	}
	return names
}
