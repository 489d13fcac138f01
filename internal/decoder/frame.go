// Package decoder turns validated data payloads into engineering-unit frames.
package decoder

import (
	"fmt"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/protocol"
)

const (
	// Channels is the number of EEG channels per record.
	Channels = 8
	// SampleSize is the width of one packed sample.
	SampleSize = 3

	accelerometerSize = 3 * 5 * SampleSize
	resistanceValues  = Channels + 2 // channels, Ref, Ground
	resistanceSize    = resistanceValues * SampleSize
	// TelemetrySize is the JSON trailer closing every data payload.
	TelemetrySize = 90

	// VoltScale converts a raw sample to volts.
	VoltScale = 0.000447 / 10.0 / 1000.0
	// ResistanceScale converts a raw resistance reading before truncation.
	ResistanceScale = 0.0677
)

// Record is one sample per channel.
type Record [Channels]float64

// Resistance holds electrode impedances (kOhm) at a single instant.
type Resistance struct {
	Channels [Channels]float64 `json:"channels"`
	Ref      float64           `json:"ref"`
	Ground   float64           `json:"ground"`
}

// Frame is one decoded data payload.
type Frame struct {
	// Time is the device block time; zero if the trailer omitted it.
	Time       float64
	Rate       protocol.Rate
	Raw        []Record
	Filtered   []Record
	Resistance Resistance
	// Payload is the undecoded payload, kept for recording and gap fill.
	Payload []byte
	// GapFill marks a frame re-emitted in place of lost packets.
	GapFill bool
}

// Records returns the number of records in the frame.
func (f *Frame) Records() int {
	return len(f.Raw)
}

// Unpack24 reads a little-endian 24-bit two's complement integer.
func Unpack24(b []byte) int32 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v >= 1<<23 {
		v -= 1 << 24
	}
	return v
}

// Pack24 writes the low 24 bits of v little-endian into b.
func Pack24(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// Decode converts a data payload captured at rate r.
// The telemetry trailer is parsed separately; a malformed trailer is not an error.
func Decode(payload []byte, r protocol.Rate) (*Frame, Telemetry, error) {
	if !r.Valid() {
		return nil, Telemetry{}, fmt.Errorf("%w: %d Hz", core.ErrUnsupportedRate, int(r))
	}
	if len(payload) != r.PayloadSize() {
		return nil, Telemetry{}, fmt.Errorf("%w: got %d bytes, want %d", core.ErrPayloadSize, len(payload), r.PayloadSize())
	}

	n := r.RecordsPerFrame()
	f := &Frame{
		Rate:     r,
		Raw:      make([]Record, n),
		Filtered: make([]Record, n),
		Payload:  payload,
	}

	// Samples are channel-major: all records of channel 0, then channel 1, ...
	for ch := 0; ch < Channels; ch++ {
		block := payload[ch*n*SampleSize:]
		for rec := 0; rec < n; rec++ {
			v := float64(Unpack24(block[rec*SampleSize:])) * VoltScale
			f.Raw[rec][ch] = v
		}
	}
	copy(f.Filtered, f.Raw)

	// Accelerometer block is carried but not decoded.
	rx := payload[Channels*n*SampleSize+accelerometerSize:]
	for i := 0; i < resistanceValues; i++ {
		v := resistance(Unpack24(rx[i*SampleSize:]))
		switch {
		case i < Channels:
			f.Resistance.Channels[i] = v
		case i == Channels:
			f.Resistance.Ref = v
		default:
			f.Resistance.Ground = v
		}
	}

	tm := ParseTelemetry(payload[len(payload)-TelemetrySize:])
	if tm.HasTime {
		f.Time = tm.Time
	}
	return f, tm, nil
}

func resistance(raw int32) float64 {
	return float64(int64(float64(raw)*ResistanceScale)) / 10.0
}
