package cuckoo

import "encoding/binary"

func putUint64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

func getUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
