package p2l

import "hash/fnv"

// Checksum computes the FNV-1 checksum spec §3 stores per P2L entry.
// The engine never reads item payloads itself (they live in the
// revision file, owned by the surrounding filesystem layer), so the
// caller computes this over the bytes it is about to write and passes
// the result into the proto record it appends.
func Checksum(data []byte) uint32 {
	h := fnv.New32()
	h.Write(data)
	return h.Sum32()
}
