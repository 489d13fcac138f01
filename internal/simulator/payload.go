package simulator

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"firestige.xyz/eeglink/internal/bdf"
	"firestige.xyz/eeglink/internal/decoder"
	"firestige.xyz/eeglink/internal/protocol"
)

// Header returns the 22-signal header the device sends for rate r: eight EEG
// channels, three accelerometer axes, ten impedance readings and the
// annotation trailer. Each data record is one payload.
func Header(r protocol.Rate, start time.Time) []byte {
	n := r.RecordsPerFrame()
	signals := make([]bdf.Signal, 0, 22)
	for i := 0; i < decoder.Channels; i++ {
		signals = append(signals, bdf.Signal{
			Label: fmt.Sprintf("EEG %d", i+1), Dimension: "uV",
			PhysicalMin: -374000, PhysicalMax: 374000, SamplesPerRecord: n,
		})
	}
	for _, axis := range []string{"X", "Y", "Z"} {
		signals = append(signals, bdf.Signal{
			Label: "Acc " + axis, Dimension: "g",
			PhysicalMin: -2, PhysicalMax: 2, SamplesPerRecord: 5,
		})
	}
	for i := 0; i < decoder.Channels; i++ {
		signals = append(signals, bdf.Signal{
			Label: fmt.Sprintf("Rx %d", i+1), Dimension: "kOhm",
			PhysicalMin: 0, PhysicalMax: 1000, SamplesPerRecord: 1,
		})
	}
	signals = append(signals,
		bdf.Signal{Label: "Rx Ref", Dimension: "kOhm", PhysicalMax: 1000, SamplesPerRecord: 1},
		bdf.Signal{Label: "Rx Gnd", Dimension: "kOhm", PhysicalMax: 1000, SamplesPerRecord: 1},
		bdf.Signal{Label: "BDF Annotations", SamplesPerRecord: decoder.TelemetrySize / decoder.SampleSize},
	)
	duration := fmt.Sprintf("%g", float64(n)/float64(r))
	return bdf.Build("X X X X", start, duration, signals)
}

// Payload renders data payload number seq: a 10 Hz, 50 uV sine on every
// channel with a per-channel phase shift, 5 kOhm impedances and a telemetry
// trailer.
func Payload(r protocol.Rate, seq int, firmware string, battery int) []byte {
	n := r.RecordsPerFrame()
	p := make([]byte, r.PayloadSize())

	for ch := 0; ch < decoder.Channels; ch++ {
		for rec := 0; rec < n; rec++ {
			t := float64(seq*n+rec) / float64(r)
			volts := 50e-6 * math.Sin(2*math.Pi*10*t+float64(ch)*math.Pi/8)
			decoder.Pack24(p[(ch*n+rec)*decoder.SampleSize:], int32(volts/decoder.VoltScale))
		}
	}

	off := decoder.Channels * n * decoder.SampleSize
	off += 3 * 5 * decoder.SampleSize // accelerometer left at zero
	for i := 0; i < 10; i++ {
		decoder.Pack24(p[off+i*decoder.SampleSize:], int32(math.Ceil(50/decoder.ResistanceScale)))
	}

	blockTime := float64(seq*n) / float64(r)
	copy(p[len(p)-decoder.TelemetrySize:], decoder.EncodeTelemetry(firmware, battery, blockTime))
	return p
}

// TimeSync renders the 40-byte time-sync message that opens a connection.
func TimeSync(now time.Time) []byte {
	b := make([]byte, protocol.TimeSyncSize)
	binary.LittleEndian.PutUint64(b, uint64(now.UnixNano()))
	return b
}
