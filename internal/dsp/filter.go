// Package dsp holds the spectral pieces of the EEG pipeline: a zero-phase FIR
// band-pass, Welch power spectral density and fixed band-power summaries.
package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

var (
	ErrInvalidBand    = errors.New("dsp: invalid band edges")
	ErrSignalTooShort = errors.New("dsp: signal too short")
	ErrFilterTooLong  = errors.New("dsp: filter too long")
)

const (
	// filterLengthFactor is the Hamming window's length factor: taps per
	// second of the narrowest transition band.
	filterLengthFactor = 3.3

	// MaxTaps bounds the designed filter length.
	MaxTaps = 1 << 20
)

// BandPass is a linear-phase windowed-sinc FIR band-pass filter. Transition
// bandwidths are chosen automatically from the pass band edges and the cutoffs
// sit in the middle of each transition band.
type BandPass struct {
	fs        float64
	low, high float64
	lowCut    float64
	highCut   float64
	taps      []float64
}

// NewBandPass designs a filter passing [low, high] Hz at sample rate fs.
func NewBandPass(fs, low, high float64) (*BandPass, error) {
	nyquist := fs / 2
	switch {
	case fs <= 0:
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidBand, fs)
	case low <= 0 || high <= low:
		return nil, fmt.Errorf("%w: [%v, %v] Hz", ErrInvalidBand, low, high)
	case high >= nyquist:
		return nil, fmt.Errorf("%w: upper edge %v Hz must be below Nyquist (%v Hz)", ErrInvalidBand, high, nyquist)
	}

	lowTrans := math.Min(math.Max(0.25*low, 2), low)
	highTrans := math.Min(math.Max(0.25*high, 2), nyquist-high)

	taps := math.Ceil(filterLengthFactor / math.Min(lowTrans, highTrans) * fs)
	if taps > MaxTaps || math.IsNaN(taps) {
		return nil, fmt.Errorf("%w: %g taps at %v Hz exceeds %d", ErrFilterTooLong, taps, fs, MaxTaps)
	}
	n := int(taps)
	if n%2 == 0 {
		n++
	}

	f := &BandPass{
		fs:      fs,
		low:     low,
		high:    high,
		lowCut:  low - lowTrans/2,
		highCut: high + highTrans/2,
	}
	f.taps = f.design(n)
	return f, nil
}

// Taps returns a copy of the filter coefficients.
func (f *BandPass) Taps() []float64 {
	return append([]float64(nil), f.taps...)
}

// design builds an n-tap windowed-sinc band-pass normalised to unit gain at
// the centre of the pass band.
func (f *BandPass) design(n int) []float64 {
	f1 := f.lowCut / f.fs
	f2 := f.highCut / f.fs
	mid := float64(n-1) / 2

	h := make([]float64, n)
	for i := range h {
		m := float64(i) - mid
		h[i] = 2*f2*sinc(2*f2*m) - 2*f1*sinc(2*f1*m)
	}
	window.Hamming(h)

	centre := (f1 + f2) / 2
	var gain float64
	for i, v := range h {
		gain += v * math.Cos(2*math.Pi*centre*(float64(i)-mid))
	}
	if gain != 0 {
		for i := range h {
			h[i] /= gain
		}
	}
	return h
}

// Apply filters x without phase shift. The signal is reflected at both edges
// before convolution and the group delay is removed afterwards. Signals shorter
// than the designed filter get a shorter filter of the same band.
func (f *BandPass) Apply(x []float64) ([]float64, error) {
	n := len(x)
	if n < 3 {
		return nil, fmt.Errorf("%w: %d samples", ErrSignalTooShort, n)
	}

	taps := f.taps
	if len(taps) > n {
		short := n
		if short%2 == 0 {
			short--
		}
		taps = f.design(short)
	}

	pad := min(len(taps)-1, n-1)
	padded := reflectPad(x, pad)
	full := convolve(padded, taps)

	delay := (len(taps) - 1) / 2
	out := make([]float64, n)
	copy(out, full[pad+delay:pad+delay+n])
	return out, nil
}

// FilterChannels band-passes every channel with one filter design.
func FilterChannels(data [][]float64, fs, low, high float64) ([][]float64, error) {
	f, err := NewBandPass(fs, low, high)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(data))
	for i, ch := range data {
		if out[i], err = f.Apply(ch); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return out, nil
}

// reflectPad mirrors p samples at each end, excluding the edge sample itself.
func reflectPad(x []float64, p int) []float64 {
	n := len(x)
	out := make([]float64, n+2*p)
	for i := 0; i < p; i++ {
		out[p-1-i] = x[i+1]
		out[p+n+i] = x[n-2-i]
	}
	copy(out[p:], x)
	return out
}

// convolve returns the full linear convolution of x and h using the FFT.
func convolve(x, h []float64) []float64 {
	size := len(x) + len(h) - 1
	nfft := 1
	for nfft < size {
		nfft <<= 1
	}

	fft := fourier.NewFFT(nfft)
	xs := make([]float64, nfft)
	hs := make([]float64, nfft)
	copy(xs, x)
	copy(hs, h)

	X := fft.Coefficients(nil, xs)
	H := fft.Coefficients(nil, hs)
	for i := range X {
		X[i] *= H[i]
	}

	y := fft.Sequence(nil, X)
	scale := 1 / float64(nfft)
	for i := range y {
		y[i] *= scale
	}
	return y[:size]
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}
