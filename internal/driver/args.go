package driver

import "encoding/binary"

// MemArgSize is the byte size of a memory object kernel argument.
const MemArgSize = 8

// EncodeMem returns the kernel argument bytes that bind m.
func EncodeMem(m Mem) []byte {
	buf := make([]byte, MemArgSize)
	binary.LittleEndian.PutUint64(buf, uint64(m))
	return buf
}

// DecodeMem is the inverse of EncodeMem.
func DecodeMem(value []byte) (Mem, bool) {
	if len(value) != MemArgSize {
		return 0, false
	}
	return Mem(binary.LittleEndian.Uint64(value)), true
}
