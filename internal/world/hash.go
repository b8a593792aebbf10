package world

// hash32 mixes a 32-bit input into a well-distributed 32-bit output
// (murmur-style finalizer). Stable across versions; never use math/rand here.
func hash32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// hashCoord folds a chunk coordinate and the world seed into one seed.
func hashCoord(seed uint32, c ChunkCoord) uint32 {
	h := seed
	h ^= uint32(int32(c.X)) * 0x9e3779b1
	h ^= uint32(int32(c.Y)) * 0x85ebca6b
	h ^= uint32(int32(c.Z)) * 0xc2b2ae35
	return hash32(h)
}

// seededRandom maps a seed to [0, 1).
func seededRandom(s uint32) float64 {
	return float64(hash32(s)) / (1 << 32)
}
