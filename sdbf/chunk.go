package sdbf

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"

	"github.com/Anish-Chanda/sdhash/internal/featurehash"
)

const (
	FilterSize  = 256            // bytes per chunk filter
	filterBits  = FilterSize * 8 // 2048, addressed by featurehash.Mask
	filterWords = filterBits / 64
)

// chunk is a sealed filter: its bits, the number of features folded in, and
// its cached popcount.
type chunk struct {
	bits   *bitset.BitSet
	count  int
	weight int
}

// bytes serializes the filter so that bit i lives in byte i/8 at bit i%8.
func (c chunk) bytes() []byte {
	out := make([]byte, FilterSize)
	for i, w := range c.bits.Bytes() {
		binary.LittleEndian.PutUint64(out[8*i:], w)
	}
	return out
}

func chunkFromBytes(b []byte, count int) chunk {
	words := make([]uint64, filterWords)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	bits := bitset.From(words)
	return chunk{bits: bits, count: count, weight: int(bits.Count())}
}

// encoder accumulates features into the open filter and seals filters in
// source order.
type encoder struct {
	max    int
	cur    *bitset.BitSet
	count  int
	sealed []chunk
}

func newEncoder(max int) *encoder {
	return &encoder{max: max, cur: bitset.New(filterBits)}
}

// fold sets the feature's bits and reports whether any of them was new.
// Only features that add a bit advance the counter; when the counter hits
// capacity the filter is sealed.
func (e *encoder) fold(p featurehash.Positions) bool {
	added := false
	for _, pos := range p {
		if !e.cur.Test(uint(pos)) {
			e.cur.Set(uint(pos))
			added = true
		}
	}
	if !added {
		return false
	}
	e.count++
	if e.max > 0 && e.count >= e.max {
		e.seal()
	}
	return true
}

// seal appends the open filter, even when empty, and opens a fresh one.
func (e *encoder) seal() {
	e.sealed = append(e.sealed, chunk{bits: e.cur, count: e.count, weight: int(e.cur.Count())})
	e.cur = bitset.New(filterBits)
	e.count = 0
}

// flush seals the open filter if it holds any feature.
func (e *encoder) flush() {
	if e.count > 0 {
		e.seal()
	}
}
