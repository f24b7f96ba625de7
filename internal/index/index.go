// Package index keeps a bloom filter of feature hashes so that new inputs
// can be screened against everything hashed before without comparing
// digests pairwise.
package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/Anish-Chanda/sdhash/sdbf"
)

const (
	// Ext is appended to index file names.
	Ext = ".idx"

	magic       = "sdbf-idx"
	fileVersion = 1
)

// Index is a set of feature hashes with a bounded false-positive rate. It is
// safe for concurrent use, so Add can be passed straight to
// sdbf.WithFeatureHook when hashing in parallel.
type Index struct {
	mu     sync.RWMutex
	name   string
	filter *bloom.BloomFilter
	count  uint64
}

// New sizes an index for capacity features at the given false-positive rate.
func New(name string, capacity uint, fpRate float64) *Index {
	return &Index{
		name:   name,
		filter: bloom.NewWithEstimates(capacity, fpRate),
	}
}

func (x *Index) Name() string { return x.name }

// Add inserts a feature hash.
func (x *Index) Add(sum []byte) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.filter.TestOrAdd(sum) {
		x.count++
	}
}

// Contains reports whether sum was probably added.
func (x *Index) Contains(sum []byte) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.filter.Test(sum)
}

// Count is the number of distinct features added, as far as the filter can
// tell them apart.
func (x *Index) Count() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Match returns the fraction of sums present in the index, 0 for none.
func (x *Index) Match(sums [][]byte) float64 {
	if len(sums) == 0 {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	hits := 0
	for _, s := range sums {
		if x.filter.Test(s) {
			hits++
		}
	}
	return float64(hits) / float64(len(sums))
}

// Query digests src with gen and reports which fraction of its features the
// index holds, together with the digest itself.
func (x *Index) Query(gen *sdbf.Generator, src sdbf.Source, blockSize int) (float64, *sdbf.Digest, error) {
	var sums [][]byte
	d, err := gen.Create(src, blockSize, sdbf.WithFeatureHook(func(sum []byte) {
		sums = append(sums, append([]byte(nil), sum...))
	}))
	if err != nil {
		return 0, nil, err
	}
	m := x.Match(sums)
	zap.L().Named("index").Debug("query",
		zap.String("index", x.name),
		zap.String("source", d.Name()),
		zap.Int("features", len(sums)),
		zap.Float64("match", m))
	return m, d, nil
}

// WriteTo writes a one-line header followed by the filter.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, err := fmt.Fprintf(w, "%s:%d:%d:%s\n", magic, fileVersion, x.count, x.name)
	if err != nil {
		return int64(n), err
	}
	m, err := x.filter.WriteTo(w)
	return int64(n) + m, err
}

// Read loads an index written by WriteTo.
func Read(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read index header: %w", err)
	}
	parts := strings.SplitN(strings.TrimSuffix(header, "\n"), ":", 4)
	if len(parts) != 4 || parts[0] != magic || parts[1] != strconv.Itoa(fileVersion) {
		return nil, fmt.Errorf("not an index file (header %q)", header)
	}
	count, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad index count %q: %w", parts[2], err)
	}
	x := &Index{name: parts[3], count: count, filter: &bloom.BloomFilter{}}
	if _, err := x.filter.ReadFrom(br); err != nil {
		return nil, fmt.Errorf("read index filter: %w", err)
	}
	return x, nil
}

// WriteFile stores the index at path.
func (x *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := x.WriteTo(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile loads the index stored at path.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
