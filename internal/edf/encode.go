package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Encode writes r as a plain EDF file. Every signal must hold exactly
// RecordCount*SamplesPerRecord samples in volts (or in its physical unit when
// the dimension is not a voltage).
func Encode(w io.Writer, r *Recording) error {
	if len(r.Signals) == 0 {
		return ErrNoSignals
	}
	for i, s := range r.Signals {
		if want := r.RecordCount * s.SamplesPerRecord; len(s.Samples) != want {
			return fmt.Errorf("edf: signal %d (%s) has %d samples, want %d", i, s.Label, len(s.Samples), want)
		}
		if s.DigitalMax <= s.DigitalMin || s.PhysicalMax == s.PhysicalMin {
			return fmt.Errorf("edf: signal %d (%s) has an invalid range", i, s.Label)
		}
	}

	bw := bufio.NewWriter(w)
	ns := len(r.Signals)

	start := r.StartTime
	field(bw, "0", 8)
	field(bw, r.PatientID, 80)
	field(bw, r.RecordingID, 80)
	field(bw, fmt.Sprintf("%02d.%02d.%02d", start.Day(), int(start.Month()), start.Year()%100), 8)
	field(bw, fmt.Sprintf("%02d.%02d.%02d", start.Hour(), start.Minute(), start.Second()), 8)
	field(bw, strconv.Itoa(headerSize+ns*signalHeaderSize), 8)
	field(bw, r.Reserved, 44)
	field(bw, strconv.Itoa(r.RecordCount), 8)
	field(bw, formatNumber(r.RecordDuration), 8)
	field(bw, strconv.Itoa(ns), 4)

	for _, s := range r.Signals {
		field(bw, s.Label, 16)
	}
	for _, s := range r.Signals {
		field(bw, s.Transducer, 80)
	}
	for _, s := range r.Signals {
		field(bw, s.PhysicalDimension, 8)
	}
	for _, s := range r.Signals {
		field(bw, formatNumber(s.PhysicalMin), 8)
	}
	for _, s := range r.Signals {
		field(bw, formatNumber(s.PhysicalMax), 8)
	}
	for _, s := range r.Signals {
		field(bw, strconv.Itoa(s.DigitalMin), 8)
	}
	for _, s := range r.Signals {
		field(bw, strconv.Itoa(s.DigitalMax), 8)
	}
	for _, s := range r.Signals {
		field(bw, s.Prefiltering, 80)
	}
	for _, s := range r.Signals {
		field(bw, strconv.Itoa(s.SamplesPerRecord), 8)
	}
	for range r.Signals {
		field(bw, "", 32)
	}

	var sample [2]byte
	for n := 0; n < r.RecordCount; n++ {
		for i := range r.Signals {
			s := &r.Signals[i]
			factor := voltFactor(s.PhysicalDimension)
			scale, offset := s.digitalToPhysical()
			base := n * s.SamplesPerRecord
			for k := 0; k < s.SamplesPerRecord; k++ {
				physical := s.Samples[base+k] / factor
				d := math.Round((physical - offset) / scale)
				d = math.Max(float64(s.DigitalMin), math.Min(float64(s.DigitalMax), d))
				binary.LittleEndian.PutUint16(sample[:], uint16(int16(d)))
				if _, err := bw.Write(sample[:]); err != nil {
					return fmt.Errorf("edf: write samples: %w", err)
				}
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("edf: flush: %w", err)
	}
	return nil
}

// field writes v left-aligned and space padded to width bytes.
func field(w *bufio.Writer, v string, width int) {
	if len(v) > width {
		v = v[:width]
	}
	w.WriteString(v)
	w.WriteString(strings.Repeat(" ", width-len(v)))
}

// formatNumber renders f in at most 8 characters as the header requires.
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) <= 8 {
		return s
	}
	for prec := 6; prec >= 0; prec-- {
		s = strconv.FormatFloat(f, 'f', prec, 64)
		if len(s) <= 8 {
			return s
		}
	}
	return s
}
