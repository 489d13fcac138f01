// Package protocol implements the amplifier wire format: packet framing,
// checksum validation and the per-rate payload geometry.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"firestige.xyz/eeglink/internal/core"
)

const (
	// Magic opens every protected packet (little-endian on the wire).
	Magic uint32 = 0x55AA55AA

	// PrefixSize is magic(4) + length(2) + type(1) + counter(1).
	PrefixSize = 8
	// CRCSize is the trailing checksum.
	CRCSize = 4
	// Overhead is the framing cost of a protected packet.
	Overhead = PrefixSize + CRCSize

	// CounterOffset locates the sequence counter in the prefix.
	CounterOffset = 7

	// TimeSyncSize is the length of the time-sync message that opens every connection.
	TimeSyncSize = 40

	// HeaderPayloadSize is the size of the biosignal header blob.
	HeaderPayloadSize = 5888
)

var magicBytes = binary.LittleEndian.AppendUint32(nil, Magic)

// PacketType is the type byte of a protected packet.
type PacketType uint8

const (
	TypeHeader PacketType = 1
	TypeData   PacketType = 2
)

func (t PacketType) String() string {
	switch t {
	case TypeHeader:
		return "header"
	case TypeData:
		return "data"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Rate is a supported sampling rate in Hz.
type Rate int

const (
	Rate250  Rate = 250
	Rate500  Rate = 500
	Rate1000 Rate = 1000
)

type geometry struct {
	payload int
	records int
}

var rates = map[Rate]geometry{
	Rate250:  {payload: 765, records: 25},
	Rate500:  {payload: 1365, records: 50},
	Rate1000: {payload: 2565, records: 100},
}

// ParseRate validates an integer rate.
func ParseRate(hz int) (Rate, error) {
	r := Rate(hz)
	if _, ok := rates[r]; !ok {
		return 0, fmt.Errorf("%w: %d Hz", core.ErrUnsupportedRate, hz)
	}
	return r, nil
}

// Valid reports whether r is one of the supported rates.
func (r Rate) Valid() bool {
	_, ok := rates[r]
	return ok
}

// PayloadSize returns the data payload length for r, or 0 if r is unsupported.
func (r Rate) PayloadSize() int {
	return rates[r].payload
}

// RecordsPerFrame returns the number of 8-channel records in one data payload.
func (r Rate) RecordsPerFrame() int {
	return rates[r].records
}

// PacketSize returns the on-wire size of a packet carrying payloadSize bytes.
func PacketSize(payloadSize int, protected bool) int {
	if protected {
		return payloadSize + Overhead
	}
	return payloadSize
}

// Encode frames payload as a protected packet.
func Encode(typ PacketType, counter uint8, payload []byte) []byte {
	size := len(payload) + Overhead
	pkt := make([]byte, size)
	binary.LittleEndian.PutUint32(pkt[0:4], Magic)
	binary.LittleEndian.PutUint16(pkt[4:6], uint16(size))
	pkt[6] = byte(typ)
	pkt[CounterOffset] = counter
	copy(pkt[PrefixSize:], payload)
	binary.LittleEndian.PutUint32(pkt[size-CRCSize:], Checksum(pkt[:size-CRCSize]))
	return pkt
}

// Payload returns the payload slice of a framed packet.
func Payload(pkt []byte) []byte {
	return pkt[PrefixSize : len(pkt)-CRCSize]
}

// Counter returns the sequence counter of a framed packet.
func Counter(pkt []byte) uint8 {
	return pkt[CounterOffset]
}

// HasMagic reports whether b starts with the packet magic.
func HasMagic(b []byte) bool {
	return len(b) >= len(magicBytes) && bytes.Equal(b[:len(magicBytes)], magicBytes)
}
