package common

import "math/bits"

// SplitMask splits a 64-bit mask into its high and low 32-bit halves for GPU upload.
//
// Parameters:
//   - mask: the 64-bit value
//
// Returns:
//   - uint32: bits 63..32
//   - uint32: bits 31..0
func SplitMask(mask uint64) (uint32, uint32) {
	return uint32(mask >> 32), uint32(mask)
}

// JoinMask reassembles a 64-bit mask from its high and low halves.
//
// Parameters:
//   - high: bits 63..32
//   - low: bits 31..0
//
// Returns:
//   - uint64: the combined mask
func JoinMask(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}

// MaskHas reports whether bit i of mask is set.
func MaskHas(mask uint64, i int) bool {
	return mask&(1<<uint(i)) != 0
}

// MaskCount returns the number of set bits in mask.
func MaskCount(mask uint64) int {
	return bits.OnesCount64(mask)
}
