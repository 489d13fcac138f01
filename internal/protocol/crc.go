package protocol

import "encoding/binary"

// crcTable is the 16-entry nibble table of polynomial 0x04C11DB7.
var crcTable = [16]uint32{
	0x00000000, 0x04C11DB7, 0x09823B6E, 0x0D4326D9,
	0x130476DC, 0x17C56B6B, 0x1A864DB2, 0x1E475005,
	0x2608EDB8, 0x22C9F00F, 0x2F8AD6D6, 0x2B4BCB61,
	0x350C9B64, 0x31CD86D3, 0x3C8EA00A, 0x384FBDBD,
}

// Checksum computes the device CRC32 over b.
//
// Each byte is XORed into the low bits of the register, then the register is
// shifted left one nibble at a time, eight times, folding the outgoing nibble
// back through the table. This is not the common reflected CRC-32.
func Checksum(b []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, c := range b {
		crc ^= uint32(c)
		for i := 0; i < 8; i++ {
			crc = (crc << 4) ^ crcTable[(crc>>28)&0x0F]
		}
	}
	return crc
}

// packetChecksum returns the computed and the transmitted checksum of a framed packet.
func packetChecksum(pkt []byte) (computed, stored uint32) {
	n := len(pkt) - CRCSize
	return Checksum(pkt[:n]), binary.LittleEndian.Uint32(pkt[n:])
}
