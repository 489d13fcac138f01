package protocol

import "encoding/binary"

// Result is the outcome of validating one candidate packet.
type Result int

const (
	Validated Result = iota
	BadID
	BadLength
	BadType
	BadCRC32
	BadCounter
)

func (r Result) String() string {
	switch r {
	case Validated:
		return "validated"
	case BadID:
		return "bad_id"
	case BadLength:
		return "bad_length"
	case BadType:
		return "bad_type"
	case BadCRC32:
		return "bad_crc32"
	case BadCounter:
		return "bad_counter"
	default:
		return "unknown"
	}
}

// CounterCheck carries the sequence expectation for Validate.
type CounterCheck struct {
	Prev   uint8
	Ignore bool
}

// Validate checks a candidate packet of exactly the expected size.
// Checks run in a fixed order and the first failure wins: magic, length,
// type, checksum, then sequence counter.
func Validate(pkt []byte, want PacketType, cc CounterCheck) Result {
	if len(pkt) < Overhead || !HasMagic(pkt) {
		return BadID
	}
	if int(binary.LittleEndian.Uint16(pkt[4:6])) != len(pkt) {
		return BadLength
	}
	if PacketType(pkt[6]) != want {
		return BadType
	}
	if computed, stored := packetChecksum(pkt); computed != stored {
		return BadCRC32
	}
	if !cc.Ignore && cc.Prev+1 != pkt[CounterOffset] {
		return BadCounter
	}
	return Validated
}

// Resync returns how many leading bytes of buf to discard after a failed
// validation: always the first byte, then every byte until the buffer either
// starts with the magic or holds fewer than want bytes.
func Resync(buf []byte, want int) int {
	skip := 1
	for len(buf)-skip >= want && !HasMagic(buf[skip:]) {
		skip++
	}
	return min(skip, len(buf))
}
