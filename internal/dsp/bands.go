package dsp

// Band is a named EEG frequency range with inclusive edges in Hz.
type Band struct {
	Name string
	Low  float64
	High float64
}

// Bands are the frequency ranges reported for every analysis.
var Bands = []Band{
	{Name: "delta", Low: 1, High: 4},
	{Name: "theta", Low: 4, High: 8},
	{Name: "alpha", Low: 8, High: 13},
	{Name: "beta", Low: 13, High: 30},
	{Name: "gamma", Low: 30, High: 40},
}

// Analysis pass band and PSD range.
const (
	PassLow  = 1.0
	PassHigh = 40.0
)

// BandPowers averages the spectrum over each band's bins per channel and then
// across channels. A band without bins reports 0.
func BandPowers(spec *Spectrum) map[string]float64 {
	out := make(map[string]float64, len(Bands))
	for _, b := range Bands {
		out[b.Name] = bandPower(spec, b)
	}
	return out
}

func bandPower(spec *Spectrum, b Band) float64 {
	if spec == nil || len(spec.Power) == 0 {
		return 0
	}

	var total float64
	var channels int
	for _, ch := range spec.Power {
		var sum float64
		var bins int
		for k, f := range spec.Freqs {
			if f >= b.Low && f <= b.High && k < len(ch) {
				sum += ch[k]
				bins++
			}
		}
		if bins == 0 {
			return 0
		}
		total += sum / float64(bins)
		channels++
	}
	return total / float64(channels)
}
