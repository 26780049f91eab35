package edf

import (
	"math"
	"math/rand/v2"
	"time"
)

// Standard 10-20/10-10 labels used for synthetic montages.
var montage = []string{
	"Fp1", "Fp2", "AF3", "AF4", "F7", "F3", "Fz", "F4", "F8", "FC5", "FC1",
	"FC2", "FC6", "T7", "C3", "Cz", "C4", "T8", "CP5", "CP1", "CP2", "CP6",
	"P7", "P3", "Pz", "P4", "P8", "PO3", "PO4", "O1", "O2",
}

// Profile selects the dominant rhythm of a synthetic recording.
type Profile string

const (
	ProfileRelaxed  Profile = "relaxed"  // dominant alpha
	ProfileStressed Profile = "stressed" // dominant beta
)

// SynthConfig describes a synthetic recording.
type SynthConfig struct {
	Channels   int
	SampleRate int
	Seconds    int
	Profile    Profile
	Seed       uint64
}

func (c *SynthConfig) withDefaults() {
	if c.Channels <= 0 {
		c.Channels = len(montage)
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 256
	}
	if c.Seconds <= 0 {
		c.Seconds = 10
	}
	if c.Profile == "" {
		c.Profile = ProfileRelaxed
	}
}

// Synthesize builds a deterministic recording made of one sinusoid per EEG band
// plus gaussian noise. The same config always yields the same samples.
func Synthesize(cfg SynthConfig) *Recording {
	cfg.withDefaults()

	// amplitudes in microvolts for delta, theta, alpha, beta, gamma
	amps := [5]float64{12, 8, 30, 6, 2}
	if cfg.Profile == ProfileStressed {
		amps = [5]float64{8, 6, 6, 28, 8}
	}
	freqs := [5]float64{2, 6, 10, 20, 35}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	n := cfg.SampleRate * cfg.Seconds

	rec := &Recording{
		Version:        "0",
		PatientID:      "X X X synthetic",
		RecordingID:    "Startdate X X X eegctl",
		StartTime:      time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC),
		RecordCount:    cfg.Seconds,
		RecordDuration: 1,
		Signals:        make([]Signal, cfg.Channels),
	}

	for ch := 0; ch < cfg.Channels; ch++ {
		phase := rng.Float64() * 2 * math.Pi
		samples := make([]float64, n)
		for i := range samples {
			t := float64(i) / float64(cfg.SampleRate)
			var v float64
			for b := range freqs {
				v += amps[b] * math.Sin(2*math.Pi*freqs[b]*t+phase*float64(b+1))
			}
			v += rng.NormFloat64() * 2
			samples[i] = v * 1e-6
		}

		label := montage[ch%len(montage)]
		rec.Signals[ch] = Signal{
			Label:             "EEG " + label,
			Transducer:        "AgAgCl electrode",
			PhysicalDimension: "uV",
			PhysicalMin:       -500,
			PhysicalMax:       500,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			Prefiltering:      "HP:0.1Hz LP:100Hz",
			SamplesPerRecord:  cfg.SampleRate,
			SampleRate:        float64(cfg.SampleRate),
			Samples:           samples,
		}
	}

	return rec
}
