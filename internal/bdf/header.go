// Package bdf handles the fixed-layout 24-bit biosignal header the amplifier
// sends before streaming. The recorder stores it verbatim apart from a few
// patched fields, so only field access is needed here, not a full codec.
package bdf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/edf"

	"firestige.xyz/eeglink/internal/core"
)

// Field is a fixed-width ASCII region of the header.
type Field struct {
	Offset int
	Width  int
}

// Global header fields.
var (
	FieldVersion     = Field{0, 8}
	FieldPatient     = Field{8, 80}
	FieldRecording   = Field{88, 80}
	FieldStartDate   = Field{168, 8}
	FieldStartTime   = Field{176, 8}
	FieldHeaderBytes = Field{184, 8}
	FieldReserved    = Field{192, 44}
	FieldDataRecords = Field{236, 8}
	FieldDuration    = Field{244, 8}
	FieldSignals     = Field{252, 4}
)

const (
	// GlobalSize is the fixed part preceding per-signal fields.
	GlobalSize = 256
	// SignalSize is the header space taken by each signal.
	SignalSize = 256
	// LabelWidth is the width of one signal label.
	LabelWidth = 16

	// BIOSEMI marks a 24-bit file in the version field.
	BIOSEMI = "\xffBIOSEMI"
)

// LabelField returns the label field of signal i.
func LabelField(i int) Field {
	return Field{GlobalSize + LabelWidth*i, LabelWidth}
}

// FitField space-pads or truncates s to exactly width bytes.
func FitField(s string, width int) []byte {
	b := make([]byte, width)
	n := copy(b, s)
	for i := n; i < width; i++ {
		b[i] = ' '
	}
	return b
}

// Put writes s into field f of hdr.
func Put(hdr []byte, f Field, s string) {
	copy(hdr[f.Offset:f.Offset+f.Width], FitField(s, f.Width))
}

// Get returns field f of hdr with padding trimmed.
func Get(hdr []byte, f Field) string {
	return strings.TrimSpace(string(hdr[f.Offset : f.Offset+f.Width]))
}

// Patch returns a copy of hdr with the patient and the channel labels replaced.
// Labels beyond the signal count are ignored.
func Patch(hdr []byte, patient string, labels []string) ([]byte, error) {
	if len(hdr) < GlobalSize {
		return nil, fmt.Errorf("%w: %d bytes", core.ErrInvalidHeader, len(hdr))
	}
	out := append([]byte(nil), hdr...)
	Put(out, FieldPatient, patient)
	for i, label := range labels {
		f := LabelField(i)
		if f.Offset+f.Width > len(out) {
			break
		}
		Put(out, f, label)
	}
	return out, nil
}

// WriteDataRecords overwrites the record count of a header stored at the start of w.
// The count is fitted to the field so the duration that follows is never touched.
func WriteDataRecords(w io.WriterAt, n int) error {
	_, err := w.WriteAt(FitField(strconv.Itoa(n), FieldDataRecords.Width), int64(FieldDataRecords.Offset))
	return err
}

// Header is the parsed global part of a header plus signal labels.
type Header struct {
	Version     string
	Patient     string
	Recording   string
	StartDate   string
	StartTime   string
	HeaderBytes int
	DataRecords int
	Duration    string
	SignalCount int
	Labels      []string
}

// Parse reads the fields the recorder cares about.
func Parse(hdr []byte) (*Header, error) {
	if len(hdr) < GlobalSize {
		return nil, fmt.Errorf("%w: %d bytes", core.ErrInvalidHeader, len(hdr))
	}

	h := &Header{
		Version:   Get(hdr, FieldVersion),
		Patient:   Get(hdr, FieldPatient),
		Recording: Get(hdr, FieldRecording),
		StartDate: Get(hdr, FieldStartDate),
		StartTime: Get(hdr, FieldStartTime),
		Duration:  Get(hdr, FieldDuration),
	}

	var err error
	if h.HeaderBytes, err = strconv.Atoi(Get(hdr, FieldHeaderBytes)); err != nil {
		return nil, fmt.Errorf("%w: header bytes: %v", core.ErrInvalidHeader, err)
	}
	if h.DataRecords, err = strconv.Atoi(Get(hdr, FieldDataRecords)); err != nil {
		return nil, fmt.Errorf("%w: data records: %v", core.ErrInvalidHeader, err)
	}
	if h.SignalCount, err = strconv.Atoi(Get(hdr, FieldSignals)); err != nil {
		return nil, fmt.Errorf("%w: signal count: %v", core.ErrInvalidHeader, err)
	}
	if h.SignalCount < 0 || GlobalSize+h.SignalCount*SignalSize > len(hdr) {
		return nil, fmt.Errorf("%w: %d signals do not fit in %d bytes", core.ErrInvalidHeader, h.SignalCount, len(hdr))
	}

	h.Labels = make([]string, h.SignalCount)
	for i := range h.Labels {
		h.Labels[i] = Get(hdr, LabelField(i))
	}
	return h, nil
}

// Verify checks that hdr is readable by a standard EDF/BDF reader: dates,
// counts and every per-signal field must parse.
func Verify(hdr []byte) error {
	if _, err := edf.Open(bytes.NewReader(hdr)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidHeader, err)
	}
	return nil
}

// Signal describes one signal for Build.
type Signal struct {
	Label            string
	Dimension        string
	PhysicalMin      float64
	PhysicalMax      float64
	SamplesPerRecord int
}

// Build renders a complete BDF header. The record count is left at -1.
func Build(patient string, start time.Time, duration string, signals []Signal) []byte {
	ns := len(signals)
	hdr := make([]byte, GlobalSize+ns*SignalSize)

	Put(hdr, FieldVersion, BIOSEMI)
	Put(hdr, FieldPatient, patient)
	Put(hdr, FieldRecording, "Startdate "+strings.ToUpper(start.Format("02-Jan-2006")))
	Put(hdr, FieldStartDate, start.Format("02.01.06"))
	Put(hdr, FieldStartTime, start.Format("15.04.05"))
	Put(hdr, FieldHeaderBytes, strconv.Itoa(len(hdr)))
	Put(hdr, FieldReserved, "24BIT")
	Put(hdr, FieldDataRecords, "-1")
	Put(hdr, FieldDuration, duration)
	Put(hdr, FieldSignals, strconv.Itoa(ns))

	// Per-signal arrays follow in field order, each ns entries wide.
	off := GlobalSize
	column := func(width int, value func(s Signal) string) {
		for i, s := range signals {
			copy(hdr[off+i*width:], FitField(value(s), width))
		}
		off += ns * width
	}
	column(LabelWidth, func(s Signal) string { return s.Label })
	column(80, func(Signal) string { return "" })
	column(8, func(s Signal) string { return s.Dimension })
	column(8, func(s Signal) string { return formatPhysical(s.PhysicalMin) })
	column(8, func(s Signal) string { return formatPhysical(s.PhysicalMax) })
	column(8, func(Signal) string { return "-8388608" })
	column(8, func(Signal) string { return "8388607" })
	column(80, func(Signal) string { return "" })
	column(8, func(s Signal) string { return strconv.Itoa(s.SamplesPerRecord) })
	column(32, func(Signal) string { return "" })

	return hdr
}

func formatPhysical(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if len(s) > 8 {
		s = strconv.FormatFloat(v, 'f', 0, 64)
	}
	return s
}
