package edf

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeSynthetic(t *testing.T, cfg SynthConfig) (*Recording, []byte) {
	t.Helper()
	rec := Synthesize(cfg)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rec))
	return rec, buf.Bytes()
}

func TestDecode_SyntheticRecording(t *testing.T) {
	orig, raw := encodeSynthetic(t, SynthConfig{Channels: 4, SampleRate: 128, Seconds: 3, Seed: 7})

	rec, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "0", rec.Version)
	assert.Equal(t, 3, rec.RecordCount)
	assert.Equal(t, 1.0, rec.RecordDuration)
	assert.Equal(t, 3*time.Second, rec.Duration())
	assert.Equal(t, time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC), rec.StartTime)
	require.Len(t, rec.Signals, 4)
	assert.Equal(t, []string{"EEG Fp1", "EEG Fp2", "EEG AF3", "EEG AF4"}, rec.Labels())

	// One digital step over a 1000 uV span is ~15 nV.
	step := 1000.0 / 65535 * 1e-6
	for i, s := range rec.Signals {
		assert.Equal(t, 128.0, s.SampleRate)
		require.Len(t, s.Samples, 3*128)
		for k := range s.Samples {
			assert.InDelta(t, orig.Signals[i].Samples[k], s.Samples[k], step, "signal %d sample %d", i, k)
		}
	}
}

func TestOpen(t *testing.T) {
	_, raw := encodeSynthetic(t, SynthConfig{Channels: 2, Seconds: 1})
	path := filepath.Join(t.TempDir(), "rec.edf")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	rec, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, rec.Signals, 2)

	_, err = Open(filepath.Join(t.TempDir(), "missing.edf"))
	assert.Error(t, err)
}

func TestDecode_UnknownRecordCount(t *testing.T) {
	_, raw := encodeSynthetic(t, SynthConfig{Channels: 2, SampleRate: 64, Seconds: 4})
	copy(raw[236:244], []byte("-1      "))

	rec, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.RecordCount)
	assert.Len(t, rec.Signals[0].Samples, 4*64)
}

func TestDecode_Errors(t *testing.T) {
	_, valid := encodeSynthetic(t, SynthConfig{Channels: 2, SampleRate: 64, Seconds: 2})

	mutate := func(fn func([]byte) []byte) []byte {
		c := append([]byte(nil), valid...)
		return fn(c)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInvalidHeader},
		{"not an edf file", []byte("this is a plain text file that happens to end in .edf"), ErrInvalidHeader},
		{"truncated data", valid[:len(valid)-10], ErrTruncated},
		{"bad version", mutate(func(b []byte) []byte { b[0] = '9'; return b }), ErrInvalidHeader},
		{"bad signal count", mutate(func(b []byte) []byte { copy(b[252:256], "abcd"); return b }), ErrInvalidHeader},
		{"header size mismatch", mutate(func(b []byte) []byte { copy(b[184:192], "999     "); return b }), ErrInvalidHeader},
		{"nan record duration", mutate(func(b []byte) []byte { copy(b[244:252], "NaN     "); return b }), ErrInvalidHeader},
		{"infinite record duration", mutate(func(b []byte) []byte { copy(b[244:252], "+Inf    "); return b }), ErrInvalidHeader},
		{"sample rate above limit", mutate(func(b []byte) []byte { copy(b[244:252], "1e-4    "); return b }), ErrInvalidHeader},
		{"nanosecond records", mutate(func(b []byte) []byte { copy(b[244:252], "1e-9    "); return b }), ErrInvalidHeader},
		{"nan physical maximum", mutate(func(b []byte) []byte { copy(b[480:488], "NaN     "); return b }), ErrInvalidHeader},
		{"physical range overflows", mutate(func(b []byte) []byte {
			copy(b[464:472], "-1e308  ")
			copy(b[480:488], "1e308   ")
			return b
		}), ErrInvalidHeader},
		{"record count beyond data", mutate(func(b []byte) []byte {
			copy(b[236:244], "99999999")
			copy(b[244:252], "99999999")
			copy(b[688:696], "99999999")
			return b
		}), ErrTruncated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tc.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecode_SkipsAnnotations(t *testing.T) {
	rec := Synthesize(SynthConfig{Channels: 2, SampleRate: 32, Seconds: 2})
	rec.Signals = append(rec.Signals, Signal{
		Label:            "EDF Annotations",
		PhysicalMin:      -1,
		PhysicalMax:      1,
		DigitalMin:       -32768,
		DigitalMax:       32767,
		SamplesPerRecord: 8,
		Samples:          make([]float64, 2*8),
	})
	rec.Reserved = "EDF+C"

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rec))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"EEG Fp1", "EEG Fp2"}, decoded.Labels())
	assert.Equal(t, "EDF+C", decoded.Reserved)
}

func TestDecode_OnlyAnnotations(t *testing.T) {
	rec := &Recording{
		RecordCount:    1,
		RecordDuration: 1,
		Signals: []Signal{{
			Label:            "EDF Annotations",
			PhysicalMin:      -1,
			PhysicalMax:      1,
			DigitalMin:       -32768,
			DigitalMax:       32767,
			SamplesPerRecord: 4,
			Samples:          make([]float64, 4),
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rec))

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrNoSignals)
}

func TestDecode_ScalesToVolts(t *testing.T) {
	tests := []struct {
		dimension string
		want      float64
	}{
		{"uV", 100e-6},
		{"mV", 100e-3},
		{"V", 100},
		{"degC", 100},
	}

	for _, tc := range tests {
		t.Run(tc.dimension, func(t *testing.T) {
			raw := rawSingleSample(t, tc.dimension, 100)
			rec, err := Decode(bytes.NewReader(raw))
			require.NoError(t, err)
			assert.InDelta(t, tc.want, rec.Signals[0].Samples[0], tc.want*1e-3)
		})
	}
}

func TestRecording_Data(t *testing.T) {
	rec := Synthesize(SynthConfig{Channels: 3, SampleRate: 128, Seconds: 1})
	rec.Signals[1].SampleRate = 64
	rec.Signals[1].Samples = rec.Signals[1].Samples[:64]

	data, fs, dropped, err := rec.Data()
	require.NoError(t, err)
	assert.Equal(t, 128.0, fs)
	assert.Len(t, data, 2)
	assert.Equal(t, []string{"EEG Fp2"}, dropped)

	_, _, _, err = (&Recording{}).Data()
	assert.ErrorIs(t, err, ErrNoSignals)
}

func TestSynthesize_Deterministic(t *testing.T) {
	a := Synthesize(SynthConfig{Seed: 42, Seconds: 1})
	b := Synthesize(SynthConfig{Seed: 42, Seconds: 1})
	c := Synthesize(SynthConfig{Seed: 43, Seconds: 1})

	require.Len(t, a.Signals, 31)
	assert.Equal(t, a.Signals[0].Samples, b.Signals[0].Samples)
	assert.NotEqual(t, a.Signals[0].Samples, c.Signals[0].Samples)
}

func TestEncode_RejectsMismatchedSamples(t *testing.T) {
	rec := Synthesize(SynthConfig{Channels: 1, Seconds: 2})
	rec.Signals[0].Samples = rec.Signals[0].Samples[:10]

	err := Encode(&bytes.Buffer{}, rec)
	assert.Error(t, err)
	assert.ErrorIs(t, Encode(&bytes.Buffer{}, &Recording{}), ErrNoSignals)
}

// rawSingleSample builds a one-signal, one-sample EDF by hand where the digital
// range equals the physical range, so digital value d reads back as d units.
func rawSingleSample(t *testing.T, dimension string, value int16) []byte {
	t.Helper()
	pad := func(s string, n int) string {
		for len(s) < n {
			s += " "
		}
		return s
	}

	var b bytes.Buffer
	b.WriteString(pad("0", 8))
	b.WriteString(pad("patient", 80))
	b.WriteString(pad("recording", 80))
	b.WriteString("01.02.03")
	b.WriteString("04.05.06")
	b.WriteString(pad(strconv.Itoa(512), 8))
	b.WriteString(pad("", 44))
	b.WriteString(pad("1", 8))
	b.WriteString(pad("1", 8))
	b.WriteString(pad("1", 4))
	b.WriteString(pad("EEG Cz", 16))
	b.WriteString(pad("", 80))
	b.WriteString(pad(dimension, 8))
	b.WriteString(pad("-1000", 8))
	b.WriteString(pad("1000", 8))
	b.WriteString(pad("-1000", 8))
	b.WriteString(pad("1000", 8))
	b.WriteString(pad("", 80))
	b.WriteString(pad("1", 8))
	b.WriteString(pad("", 32))
	require.NoError(t, binary.Write(&b, binary.LittleEndian, value))
	return b.Bytes()
}
