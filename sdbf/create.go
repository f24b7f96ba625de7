package sdbf

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Anish-Chanda/sdhash/internal/featureextractor"
	"github.com/Anish-Chanda/sdhash/internal/featurehash"
)

// Source is a read-only, randomly addressable byte source. Create borrows it
// for the duration of the call and never writes to it.
type Source interface {
	io.ReaderAt
	Name() string
	Size() (int64, error)
}

// Params are the digest construction tunables.
type Params struct {
	WindowSize   int // feature window in bytes
	PopWindow    int // ranks competing for each popularity point
	Threshold    int // minimum popularity score (exclusive) for a feature
	EntropyFloor int // windows below this entropy (0-1000) are never features
	EntropyCeil  int // windows above this entropy are never features

	MaxFeatures      int // features per chunk in whole-source mode
	MaxBlockFeatures int // features per chunk (one chunk per block) in block mode
	MinBlockSize     int // smallest block size, and smallest digested tail block
	SegmentSize      int // whole-source mode reads this many bytes at a time
}

// DefaultParams returns the parameters used by the package-level Create.
func DefaultParams() Params {
	fc := featureextractor.DefaultConfig()
	return Params{
		WindowSize:   fc.WindowSize,
		PopWindow:    fc.PopWindow,
		Threshold:    fc.Threshold,
		EntropyFloor: fc.EntropyFloor,
		EntropyCeil:  fc.EntropyCeil,

		MaxFeatures:      160,
		MaxBlockFeatures: 192,
		MinBlockSize:     512,
		SegmentSize:      32 << 20,
	}
}

// Generator creates digests with a fixed set of Params. It is safe for
// concurrent use; every Create call owns its own state.
type Generator struct {
	params Params
	ext    *featureextractor.Extractor
}

// NewGenerator validates p and prepares the feature extractor.
func NewGenerator(p Params) (*Generator, error) {
	ext, err := featureextractor.NewExtractor(featureextractor.Config{
		WindowSize:   p.WindowSize,
		PopWindow:    p.PopWindow,
		Threshold:    p.Threshold,
		EntropyFloor: p.EntropyFloor,
		EntropyCeil:  p.EntropyCeil,
	})
	if err != nil {
		return nil, fmt.Errorf("feature extractor: %w", err)
	}
	if p.MaxFeatures <= 0 || p.MaxBlockFeatures <= 0 {
		return nil, fmt.Errorf("MaxFeatures and MaxBlockFeatures must be positive")
	}
	if p.MinBlockSize < p.WindowSize {
		return nil, fmt.Errorf("MinBlockSize (%d) must be at least WindowSize (%d)", p.MinBlockSize, p.WindowSize)
	}
	if p.SegmentSize < p.WindowSize {
		return nil, fmt.Errorf("SegmentSize (%d) must be at least WindowSize (%d)", p.SegmentSize, p.WindowSize)
	}
	return &Generator{params: p, ext: ext}, nil
}

// Params returns the generator's parameters.
func (g *Generator) Params() Params {
	return g.params
}

type createOptions struct {
	name     string
	realSize int64
	hook     func(sum []byte)
}

// CreateOption customizes a single Create call.
type CreateOption func(*createOptions)

// WithRealSize digests exactly n bytes of the source instead of the size it
// reports. Needed for sources that are not files.
func WithRealSize(n int64) CreateOption {
	return func(o *createOptions) { o.realSize = n }
}

// WithName overrides the digest name taken from the source.
func WithName(name string) CreateOption {
	return func(o *createOptions) { o.name = name }
}

// WithFeatureHook calls fn with the SHA-1 of every selected feature, in
// source order. fn must not retain sum.
func WithFeatureHook(fn func(sum []byte)) CreateOption {
	return func(o *createOptions) { o.hook = fn }
}

var defaultGenerator = sync.OnceValue(func() *Generator {
	g, err := NewGenerator(DefaultParams())
	if err != nil {
		panic(err)
	}
	return g
})

// Create digests src with DefaultParams. blockSize 0 digests the source as
// one stream; a positive blockSize digests independent blocks of that size.
func Create(src Source, blockSize int, opts ...CreateOption) (*Digest, error) {
	return defaultGenerator().Create(src, blockSize, opts...)
}

// Create digests src. Sources shorter than one feature window produce a
// digest with no chunks. Errors wrap ErrInvalidBlockSize or
// ErrSourceUnavailable; no digest is returned alongside an error.
func (g *Generator) Create(src Source, blockSize int, opts ...CreateOption) (*Digest, error) {
	if blockSize < 0 || (blockSize > 0 && blockSize < g.params.MinBlockSize) {
		return nil, fmt.Errorf("%w: %d (must be 0 or at least %d)", ErrInvalidBlockSize, blockSize, g.params.MinBlockSize)
	}
	o := createOptions{realSize: -1}
	for _, opt := range opts {
		opt(&o)
	}
	name := src.Name()
	if o.name != "" {
		name = o.name
	}
	realSize := o.realSize
	if realSize < 0 {
		n, err := src.Size()
		if err != nil {
			return nil, fmt.Errorf("%w: size of %q: %w", ErrSourceUnavailable, name, err)
		}
		realSize = n
	}

	log := zap.L().Named("sdbf")
	d := &Digest{name: name, realSize: realSize, blockSize: blockSize}
	var err error
	if blockSize == 0 {
		d.maxFeatures = g.params.MaxFeatures
		d.chunks, err = g.streamChunks(src, realSize, o.hook)
	} else {
		d.maxFeatures = g.params.MaxBlockFeatures
		d.chunks, err = g.blockChunks(src, realSize, int64(blockSize), o.hook)
	}
	if err != nil {
		log.Debug("create failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("%w: read %q: %w", ErrSourceUnavailable, name, err)
	}
	log.Debug("digest created",
		zap.String("name", name),
		zap.Int64("realSize", realSize),
		zap.Int("blockSize", blockSize),
		zap.Int("chunks", len(d.chunks)))
	return d, nil
}

// streamChunks folds features across the whole source. Segments are scanned
// independently but share the open chunk.
func (g *Generator) streamChunks(src io.ReaderAt, size int64, hook func([]byte)) ([]chunk, error) {
	enc := newEncoder(g.params.MaxFeatures)
	seg := int64(g.params.SegmentSize)
	buf := make([]byte, min(seg, size))
	for off := int64(0); off < size; off += seg {
		data := buf[:min(seg, size-off)]
		if err := readFull(src, data, off); err != nil {
			return nil, err
		}
		g.fold(enc, data, g.ext.Candidates(data), hook)
	}
	enc.flush()
	return enc.sealed, nil
}

// blockChunks produces exactly one chunk per block. A tail shorter than
// MinBlockSize is dropped.
func (g *Generator) blockChunks(src io.ReaderAt, size, blockSize int64, hook func([]byte)) ([]chunk, error) {
	n := size / blockSize
	if size%blockSize >= int64(g.params.MinBlockSize) {
		n++
	}
	enc := newEncoder(0)
	buf := make([]byte, min(blockSize, size))
	for i := int64(0); i < n; i++ {
		off := i * blockSize
		data := buf[:min(blockSize, size-off)]
		if err := readFull(src, data, off); err != nil {
			return nil, err
		}
		cands := featureextractor.Select(g.ext.Candidates(data), g.params.MaxBlockFeatures)
		g.fold(enc, data, cands, hook)
		enc.seal()
	}
	return enc.sealed, nil
}

func (g *Generator) fold(enc *encoder, data []byte, cands []featureextractor.Candidate, hook func([]byte)) {
	w := g.params.WindowSize
	for _, c := range cands {
		sum := featurehash.Sum(data[c.Offset : c.Offset+w])
		if hook != nil {
			hook(sum[:])
		}
		enc.fold(featurehash.FromSum(sum))
	}
}

func readFull(src io.ReaderAt, buf []byte, off int64) error {
	n, err := src.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("at offset %d: %w", off, err)
}
