package mathx

import (
	"encoding/binary"
	"math"
)

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// SeedKey expands a 64-bit seed into a 32-byte stream key (four SplitMix64 outputs).
func SeedKey(seed uint64) [32]byte {
	var key [32]byte
	z := seed
	for i := 0; i < 4; i++ {
		z = mix64(z)
		binary.LittleEndian.PutUint64(key[i*8:], z)
		z += uint64(i + 1)
	}
	return key
}

// NoiseSeed folds a map seed into the signed seed noise generators take.
func NoiseSeed(seed uint64) int64 {
	return int64(seed)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PutFloat64 writes the exact bit pattern of v, so digests distinguish -0 from 0.
func PutFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
