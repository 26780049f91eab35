package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// DefaultNFFT is the Welch segment length used by the analysis pipeline.
const DefaultNFFT = 256

// Welch estimates the one-sided power spectral density of x with
// non-overlapping Hamming-windowed segments of nfft samples. The result is in
// units²/Hz and freqs holds the bin centres from 0 to fs/2.
func Welch(x []float64, fs float64, nfft int) (freqs, psd []float64, err error) {
	if nfft <= 0 {
		return nil, nil, fmt.Errorf("dsp: nfft must be positive, got %d", nfft)
	}
	if len(x) < nfft {
		return nil, nil, fmt.Errorf("%w: %d samples, need at least nfft=%d", ErrSignalTooShort, len(x), nfft)
	}

	// periodic Hamming: the symmetric window one sample longer, truncated
	win := make([]float64, nfft+1)
	for i := range win {
		win[i] = 1
	}
	win = window.Hamming(win)[:nfft]

	var winPower float64
	for _, w := range win {
		winPower += w * w
	}

	fft := fourier.NewFFT(nfft)
	bins := nfft/2 + 1
	psd = make([]float64, bins)
	seg := make([]float64, nfft)
	coeffs := make([]complex128, bins)

	segments := len(x) / nfft
	for s := 0; s < segments; s++ {
		off := s * nfft
		for i := range seg {
			seg[i] = x[off+i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			psd[k] += real(c)*real(c) + imag(c)*imag(c)
		}
	}

	scale := 1 / (fs * winPower * float64(segments))
	for k := range psd {
		psd[k] *= scale
		if k != 0 && !(nfft%2 == 0 && k == bins-1) {
			psd[k] *= 2
		}
	}

	freqs = make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(nfft)
	}
	return freqs, psd, nil
}

// Spectrum is the per-channel PSD restricted to a frequency range.
type Spectrum struct {
	Freqs []float64
	Power [][]float64 // [channel][bin]
}

// ChannelPSD runs Welch on every channel and keeps bins within [fmin, fmax].
func ChannelPSD(data [][]float64, fs, fmin, fmax float64, nfft int) (*Spectrum, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrSignalTooShort)
	}

	out := &Spectrum{Power: make([][]float64, len(data))}
	for i, ch := range data {
		freqs, psd, err := Welch(ch, fs, nfft)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}

		lo, hi := -1, -1
		for k, f := range freqs {
			if f < fmin || f > fmax {
				continue
			}
			if lo < 0 {
				lo = k
			}
			hi = k
		}
		if lo < 0 {
			out.Freqs = []float64{}
			out.Power[i] = []float64{}
			continue
		}
		if out.Freqs == nil {
			out.Freqs = freqs[lo : hi+1]
		}
		out.Power[i] = psd[lo : hi+1]
	}
	return out, nil
}
