// Package sdbf builds and compares similarity digests. A digest samples
// statistically improbable 64-byte features from its input and folds them
// into a sequence of 2048-bit bloom-filter chunks; digests of similar inputs
// share chunk bits and compare to a high score.
package sdbf

// Digest is a sealed similarity digest. It is immutable once returned by
// Create or Parse and safe to share between goroutines.
type Digest struct {
	name        string
	realSize    int64
	blockSize   int
	maxFeatures int
	chunks      []chunk
}

// Name returns the provenance string the digest was created with.
func (d *Digest) Name() string {
	return d.name
}

// RealSize returns the size of the source, as reported by it or supplied by
// the caller.
func (d *Digest) RealSize() int64 {
	return d.realSize
}

// Size returns the number of source bytes the digest covers. In block mode a
// trailing partial block too short to be digested is not covered.
func (d *Digest) Size() int64 {
	if d.blockSize == 0 {
		return d.realSize
	}
	return min(d.realSize, int64(len(d.chunks))*int64(d.blockSize))
}

// BlockSize returns 0 for a whole-source digest, else the block granularity.
func (d *Digest) BlockSize() int {
	return d.blockSize
}

// MaxFeatures returns the per-chunk feature capacity the digest was built with.
func (d *Digest) MaxFeatures() int {
	return d.maxFeatures
}

// ChunkCount returns the number of sealed chunks.
func (d *Digest) ChunkCount() int {
	return len(d.chunks)
}

// FeatureCount returns how many features were folded into chunk i.
func (d *Digest) FeatureCount(i int) int {
	return d.chunks[i].count
}

// Filter returns a copy of chunk i's 256-byte bit vector.
func (d *Digest) Filter(i int) []byte {
	return d.chunks[i].bytes()
}

// Empty reports whether no chunk holds a feature.
func (d *Digest) Empty() bool {
	for _, c := range d.chunks {
		if c.count > 0 {
			return false
		}
	}
	return true
}

// Equal reports whether two digests carry the same metadata and chunk bits.
func (d *Digest) Equal(o *Digest) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.name != o.name || d.realSize != o.realSize || d.blockSize != o.blockSize ||
		d.maxFeatures != o.maxFeatures || len(d.chunks) != len(o.chunks) {
		return false
	}
	for i := range d.chunks {
		if d.chunks[i].count != o.chunks[i].count || !d.chunks[i].bits.Equal(o.chunks[i].bits) {
			return false
		}
	}
	return true
}

// Compare scores d against other; see Compare.
func (d *Digest) Compare(other *Digest, thresholdLow, thresholdHigh int) int {
	return Compare(d, other, thresholdLow, thresholdHigh)
}

// String renders the digest; see Render.
func (d *Digest) String() string {
	return Render(d)
}
