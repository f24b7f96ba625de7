// Package set groups digests, builds them concurrently and runs the
// all-pairs and cross-set comparisons the sdhash tool reports.
package set

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/Anish-Chanda/sdhash/sdbf"
)

// Set is an ordered, named collection of digests. Add is safe for
// concurrent use.
type Set struct {
	mu      sync.Mutex
	name    string
	digests []*sdbf.Digest
}

// New returns an empty set.
func New(name string) *Set {
	return &Set{name: name}
}

func (s *Set) Name() string { return s.name }

func (s *Set) Add(d *sdbf.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests = append(s.digests, d)
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.digests)
}

func (s *Set) At(i int) *sdbf.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digests[i]
}

// Digests returns a snapshot of the members in insertion order.
func (s *Set) Digests() []*sdbf.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sdbf.Digest(nil), s.digests...)
}

// InputSize is the total number of source bytes the members cover.
func (s *Set) InputSize() int64 {
	var n int64
	for _, d := range s.Digests() {
		n += d.Size()
	}
	return n
}

// FilterCount is the total number of chunks across members.
func (s *Set) FilterCount() int {
	var n int
	for _, d := range s.Digests() {
		n += d.ChunkCount()
	}
	return n
}

// WriteTo renders one digest per line.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	for _, d := range s.Digests() {
		n, err := bw.WriteString(d.String() + "\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// Read parses one digest per line; blank lines are skipped. Lines that fail
// to parse are reported together in the returned error, and the set still
// holds every digest that did parse.
func Read(r io.Reader, name string) (*Set, error) {
	s := New(name)
	br := bufio.NewReader(r)
	var errs error
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			d, perr := sdbf.Parse(line)
			if perr != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s:%d: %w", name, lineNo, perr))
			} else {
				s.Add(d)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, multierr.Append(errs, err)
		}
	}
	return s, errs
}

// ReadFile reads a set from a digest file, naming the set after the path.
func ReadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, path)
}
