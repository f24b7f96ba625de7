package set

import (
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Anish-Chanda/sdhash/sdbf"
)

// Result is one reported comparison.
type Result struct {
	A, B  string
	Score int
}

// CompareAll compares every unordered pair of members and returns the pairs
// scoring at least threshold, in row-major order.
func (s *Set) CompareAll(threshold, thresholdLow, thresholdHigh int) []Result {
	ds := s.Digests()
	return compareRows(len(ds), func(i int) []Result {
		var row []Result
		for j := i + 1; j < len(ds); j++ {
			row = appendIf(row, ds[i], ds[j], threshold, thresholdLow, thresholdHigh)
		}
		return row
	})
}

// CompareTo compares every member against every member of other.
func (s *Set) CompareTo(other *Set, threshold, thresholdLow, thresholdHigh int) []Result {
	ds, others := s.Digests(), other.Digests()
	return compareRows(len(ds), func(i int) []Result {
		var row []Result
		for _, o := range others {
			row = appendIf(row, ds[i], o, threshold, thresholdLow, thresholdHigh)
		}
		return row
	})
}

func appendIf(row []Result, a, b *sdbf.Digest, threshold, low, high int) []Result {
	score := sdbf.Compare(a, b, low, high)
	if score < threshold {
		return row
	}
	return append(row, Result{A: a.Name(), B: b.Name(), Score: score})
}

// compareRows evaluates rows in parallel and concatenates them in order.
func compareRows(n int, row func(i int) []Result) []Result {
	rows := make([][]Result, n)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range n {
		g.Go(func() error {
			rows[i] = row(i)
			return nil
		})
	}
	_ = g.Wait()

	var out []Result
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// WriteResults prints results as "a|b|score" lines, scores zero-padded to
// three digits.
func WriteResults(w io.Writer, results []Result) error {
	for _, r := range results {
		if _, err := fmt.Fprintf(w, "%s|%s|%03d\n", r.A, r.B, r.Score); err != nil {
			return err
		}
	}
	return nil
}
