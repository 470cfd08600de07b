package storage

import "hash/crc32"

// checksum computes CRC32 (IEEE polynomial) over a WAL record's length and
// payload bytes, per §4.B "⟨length, operation code, payload,
// CRC32(length‖op‖payload)⟩". hash/crc32 is the stdlib implementation of a
// fixed, standardized 32-bit checksum algorithm — there is no ecosystem
// library in the retrieval pack that does this faster or more correctly
// than the stdlib table-driven implementation (klauspost/compress, the
// pack's one compression library, does not expose a standalone CRC32
// primitive), so this is the one place storage reaches for the standard
// library instead of a pack dependency. See DESIGN.md.
func checksum(length uint32, op byte, payload []byte) uint32 {
	h := crc32.NewIEEE()
	var lenOp [5]byte
	lenOp[0] = byte(length)
	lenOp[1] = byte(length >> 8)
	lenOp[2] = byte(length >> 16)
	lenOp[3] = byte(length >> 24)
	lenOp[4] = op
	h.Write(lenOp[:])
	h.Write(payload)
	return h.Sum32()
}
