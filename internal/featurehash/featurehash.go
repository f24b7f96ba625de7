package featurehash

import (
	"crypto/sha1"
	"encoding/binary"
)

const (
	Count = 5           // bit positions per feature (k)
	Bits  = 11          // width of each position
	Mask  = 1<<Bits - 1 // 0x7ff, so positions address a 2048-bit filter
)

// Positions are the filter bits a feature sets. Repeats are allowed.
type Positions [Count]uint32

// Sum hashes a feature window. The result depends on the window bytes only.
func Sum(window []byte) [sha1.Size]byte {
	return sha1.Sum(window)
}

// FromSum splits a SHA-1 digest into Count little-endian words and masks each
// to Bits bits.
func FromSum(sum [sha1.Size]byte) Positions {
	var p Positions
	for i := range p {
		p[i] = binary.LittleEndian.Uint32(sum[4*i:]) & Mask
	}
	return p
}

// Of returns the positions for a feature window.
func Of(window []byte) Positions {
	return FromSum(Sum(window))
}
