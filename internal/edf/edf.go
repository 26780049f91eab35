// Package edf reads and writes recordings in the European Data Format (EDF and
// EDF+). Samples are exposed in volts so downstream spectral estimates are in
// V²/Hz regardless of the unit a recorder wrote into the header.
package edf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	headerSize       = 256
	signalHeaderSize = 256
	annotationLabel  = "EDF Annotations"

	// MaxSampleRate bounds the per-channel rate derived from the header.
	MaxSampleRate = 100_000.0
	// MaxSignals bounds the signal count declared in the header.
	MaxSignals = 4096
)

var (
	ErrInvalidHeader = errors.New("edf: invalid header")
	ErrTruncated     = errors.New("edf: truncated data records")
	ErrNoSignals     = errors.New("edf: recording has no data signals")
)

// Recording is a decoded EDF file.
type Recording struct {
	Version        string
	PatientID      string
	RecordingID    string
	StartTime      time.Time
	Reserved       string
	RecordCount    int
	RecordDuration float64 // seconds per data record
	Signals        []Signal
}

// Signal is one channel. Samples are in volts when the physical dimension is a
// known voltage unit, otherwise in the recorded physical unit.
type Signal struct {
	Label             string
	Transducer        string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
	SampleRate        float64
	Samples           []float64
}

// Open decodes the EDF file at path.
func Open(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("edf: open %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a complete EDF stream. Annotation channels of EDF+ files are
// skipped; a record count of -1 is resolved from the amount of data present.
func Decode(r io.Reader) (*Recording, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("edf: read: %w", err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: file is %d bytes, need at least %d", ErrInvalidHeader, len(raw), headerSize)
	}

	h := fieldReader{buf: raw[:headerSize]}
	rec := &Recording{
		Version:     h.str(8),
		PatientID:   h.str(80),
		RecordingID: h.str(80),
	}
	startDate, startTime := h.str(8), h.str(8)
	headerBytes, err := h.int(8)
	if err != nil {
		return nil, fmt.Errorf("%w: header byte count: %v", ErrInvalidHeader, err)
	}
	rec.Reserved = h.str(44)
	if rec.RecordCount, err = h.int(8); err != nil {
		return nil, fmt.Errorf("%w: record count: %v", ErrInvalidHeader, err)
	}
	if rec.RecordDuration, err = h.float(8); err != nil {
		return nil, fmt.Errorf("%w: record duration: %v", ErrInvalidHeader, err)
	}
	ns, err := h.int(4)
	if err != nil {
		return nil, fmt.Errorf("%w: signal count: %v", ErrInvalidHeader, err)
	}
	if rec.Version != "0" {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHeader, rec.Version)
	}
	if ns <= 0 || ns > MaxSignals {
		return nil, fmt.Errorf("%w: signal count %d", ErrInvalidHeader, ns)
	}
	if headerBytes != headerSize+ns*signalHeaderSize {
		return nil, fmt.Errorf("%w: header declares %d bytes for %d signals", ErrInvalidHeader, headerBytes, ns)
	}
	if len(raw) < headerBytes {
		return nil, fmt.Errorf("%w: signal headers truncated", ErrInvalidHeader)
	}
	if rec.RecordDuration <= 0 {
		return nil, fmt.Errorf("%w: record duration %v", ErrInvalidHeader, rec.RecordDuration)
	}
	rec.StartTime = parseStart(startDate, startTime)

	signals, err := decodeSignalHeaders(raw[headerSize:headerBytes], ns, rec.RecordDuration)
	if err != nil {
		return nil, err
	}

	recordSamples := 0
	for _, s := range signals {
		recordSamples += s.SamplesPerRecord
	}
	recordBytes := recordSamples * 2
	data := raw[headerBytes:]

	// Compared by division: the declared count times the record size may
	// overflow int.
	switch {
	case rec.RecordCount == -1:
		rec.RecordCount = len(data) / recordBytes
	case rec.RecordCount < 0:
		return nil, fmt.Errorf("%w: record count %d", ErrInvalidHeader, rec.RecordCount)
	case rec.RecordCount > len(data)/recordBytes:
		return nil, fmt.Errorf("%w: have %d bytes, header declares %d records of %d bytes",
			ErrTruncated, len(data), rec.RecordCount, recordBytes)
	}

	for i := range signals {
		signals[i].Samples = make([]float64, 0, rec.RecordCount*signals[i].SamplesPerRecord)
	}

	off := 0
	for n := 0; n < rec.RecordCount; n++ {
		for i := range signals {
			s := &signals[i]
			scale, offset := s.digitalToPhysical()
			for k := 0; k < s.SamplesPerRecord; k++ {
				d := int16(binary.LittleEndian.Uint16(data[off:]))
				off += 2
				s.Samples = append(s.Samples, float64(d)*scale+offset)
			}
		}
	}

	for _, s := range signals {
		if strings.TrimSpace(s.Label) == annotationLabel {
			continue
		}
		if factor := voltFactor(s.PhysicalDimension); factor != 1 {
			for k := range s.Samples {
				s.Samples[k] *= factor
			}
		}
		rec.Signals = append(rec.Signals, s)
	}
	if len(rec.Signals) == 0 {
		return nil, ErrNoSignals
	}

	return rec, nil
}

func decodeSignalHeaders(buf []byte, ns int, recordDuration float64) ([]Signal, error) {
	h := fieldReader{buf: buf}
	signals := make([]Signal, ns)

	for i := range signals {
		signals[i].Label = h.str(16)
	}
	for i := range signals {
		signals[i].Transducer = h.str(80)
	}
	for i := range signals {
		signals[i].PhysicalDimension = h.str(8)
	}

	var err error
	for i := range signals {
		if signals[i].PhysicalMin, err = h.float(8); err != nil {
			return nil, fmt.Errorf("%w: signal %d physical minimum: %v", ErrInvalidHeader, i, err)
		}
	}
	for i := range signals {
		if signals[i].PhysicalMax, err = h.float(8); err != nil {
			return nil, fmt.Errorf("%w: signal %d physical maximum: %v", ErrInvalidHeader, i, err)
		}
	}
	for i := range signals {
		if signals[i].DigitalMin, err = h.int(8); err != nil {
			return nil, fmt.Errorf("%w: signal %d digital minimum: %v", ErrInvalidHeader, i, err)
		}
	}
	for i := range signals {
		if signals[i].DigitalMax, err = h.int(8); err != nil {
			return nil, fmt.Errorf("%w: signal %d digital maximum: %v", ErrInvalidHeader, i, err)
		}
	}
	for i := range signals {
		signals[i].Prefiltering = h.str(80)
	}
	for i := range signals {
		if signals[i].SamplesPerRecord, err = h.int(8); err != nil {
			return nil, fmt.Errorf("%w: signal %d samples per record: %v", ErrInvalidHeader, i, err)
		}
	}

	for i := range signals {
		s := &signals[i]
		if s.SamplesPerRecord <= 0 {
			return nil, fmt.Errorf("%w: signal %d has %d samples per record", ErrInvalidHeader, i, s.SamplesPerRecord)
		}
		if s.DigitalMax <= s.DigitalMin {
			return nil, fmt.Errorf("%w: signal %d digital range [%d, %d]", ErrInvalidHeader, i, s.DigitalMin, s.DigitalMax)
		}
		if s.PhysicalMax == s.PhysicalMin {
			return nil, fmt.Errorf("%w: signal %d has an empty physical range", ErrInvalidHeader, i)
		}
		if scale, offset := s.digitalToPhysical(); !finite(scale) || !finite(offset) {
			return nil, fmt.Errorf("%w: signal %d physical range [%v, %v] is not representable", ErrInvalidHeader, i, s.PhysicalMin, s.PhysicalMax)
		}
		s.SampleRate = float64(s.SamplesPerRecord) / recordDuration
		if s.SampleRate > MaxSampleRate {
			return nil, fmt.Errorf("%w: signal %d sample rate %g Hz exceeds %g Hz", ErrInvalidHeader, i, s.SampleRate, MaxSampleRate)
		}
	}

	return signals, nil
}

// Data returns the channels sampled at the recording's dominant (highest)
// rate together with that rate. Channels at other rates are listed in dropped.
func (r *Recording) Data() (data [][]float64, fs float64, dropped []string, err error) {
	if len(r.Signals) == 0 {
		return nil, 0, nil, ErrNoSignals
	}

	for _, s := range r.Signals {
		fs = math.Max(fs, s.SampleRate)
	}
	for _, s := range r.Signals {
		if s.SampleRate != fs {
			dropped = append(dropped, s.Label)
			continue
		}
		data = append(data, s.Samples)
	}
	return data, fs, dropped, nil
}

// Duration is the recorded time span.
func (r *Recording) Duration() time.Duration {
	return time.Duration(float64(r.RecordCount) * r.RecordDuration * float64(time.Second))
}

// Labels returns the channel labels in file order.
func (r *Recording) Labels() []string {
	labels := make([]string, len(r.Signals))
	for i, s := range r.Signals {
		labels[i] = s.Label
	}
	return labels
}

func (s *Signal) digitalToPhysical() (scale, offset float64) {
	scale = (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
	offset = s.PhysicalMin - float64(s.DigitalMin)*scale
	return scale, offset
}

// voltFactor converts a physical dimension into volts. Unknown units map to 1.
func voltFactor(dimension string) float64 {
	switch strings.ToLower(strings.TrimSpace(dimension)) {
	case "uv", "µv", "microvolt", "microvolts":
		return 1e-6
	case "mv":
		return 1e-3
	case "nv":
		return 1e-9
	default:
		return 1
	}
}

func parseStart(date, clock string) time.Time {
	d := strings.Split(date, ".")
	c := strings.Split(clock, ".")
	if len(d) != 3 || len(c) != 3 {
		return time.Time{}
	}
	nums := make([]int, 0, 6)
	for _, part := range append(d, c...) {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return time.Time{}
		}
		nums = append(nums, n)
	}
	year := 2000 + nums[2]
	if nums[2] >= 85 {
		year = 1900 + nums[2]
	}
	return time.Date(year, time.Month(nums[1]), nums[0], nums[3], nums[4], nums[5], 0, time.UTC)
}

// fieldReader walks fixed-width ASCII header fields.
type fieldReader struct {
	buf []byte
	off int
}

func (f *fieldReader) str(n int) string {
	if f.off+n > len(f.buf) {
		f.off = len(f.buf)
		return ""
	}
	v := f.buf[f.off : f.off+n]
	f.off += n
	return string(bytes.TrimSpace(bytes.TrimRight(v, "\x00")))
}

func (f *fieldReader) int(n int) (int, error) {
	return strconv.Atoi(f.str(n))
}

// float rejects NaN and infinities, which ParseFloat accepts.
func (f *fieldReader) float(n int) (float64, error) {
	raw := f.str(n)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if !finite(v) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
