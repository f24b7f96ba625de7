package featureextractor

import (
	"fmt"
	"iter"
	"sort"

	"github.com/Anish-Chanda/sdhash/internal/entropy"
)

// Config holds the statistically-improbable-feature selection parameters.
type Config struct {
	WindowSize   int // feature (and entropy) window length in bytes
	PopWindow    int // number of consecutive ranks competing for a point
	Threshold    int // a candidate needs a popularity score above this
	EntropyFloor int // ranks below this entropy are ineligible (0)
	EntropyCeil  int // ranks above this entropy are ineligible (0)
}

// DefaultConfig returns the parameters sdhash digests are produced with.
func DefaultConfig() Config {
	return Config{
		WindowSize:   entropy.DefaultWindow,
		PopWindow:    64,
		Threshold:    16,
		EntropyFloor: 100,
		EntropyCeil:  990,
	}
}

// Candidate is a selected window offset and its popularity score.
type Candidate struct {
	Offset int
	Score  uint16
}

// Feature is a selected window of raw bytes.
type Feature struct {
	Offset int
	Window []byte
}

// Extractor selects features from byte slices. It holds no per-call state
// and is safe for concurrent use.
type Extractor struct {
	config Config
	table  *entropy.Table
}

// NewExtractor validates cfg and precomputes the entropy table.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.WindowSize <= 1 || cfg.WindowSize > 0xFFFF {
		return nil, fmt.Errorf("WindowSize must be between 2 and 65535, got %d", cfg.WindowSize)
	}
	if cfg.PopWindow <= 0 {
		return nil, fmt.Errorf("PopWindow must be positive")
	}
	if cfg.Threshold < 0 || cfg.Threshold >= cfg.PopWindow {
		return nil, fmt.Errorf("Threshold must be in [0, PopWindow), got %d", cfg.Threshold)
	}
	if cfg.EntropyFloor < 0 || cfg.EntropyFloor >= cfg.EntropyCeil || cfg.EntropyCeil > entropy.Scale {
		return nil, fmt.Errorf("entropy bounds must satisfy 0 <= floor < ceil <= %d", entropy.Scale)
	}
	return &Extractor{
		config: cfg,
		table:  entropy.NewTable(cfg.WindowSize),
	}, nil
}

// Config returns the extractor parameters.
func (e *Extractor) Config() Config {
	return e.config
}

// Ranks returns one precedence rank per window start. Lower non-zero ranks
// are rarer; zero marks a window that may never be selected.
func (e *Extractor) Ranks(data []byte) []uint16 {
	w := e.config.WindowSize
	if len(data) < w {
		return nil
	}
	ranks := make([]uint16, len(data)-w+1)
	win := e.table.NewWindow(data)
	ranks[0] = e.rank(win.Value())
	for p := 1; p < len(ranks); p++ {
		win.Slide(data[p-1], data[p+w-1])
		ranks[p] = e.rank(win.Value())
	}
	return ranks
}

func (e *Extractor) rank(v int) uint16 {
	if v < e.config.EntropyFloor || v > e.config.EntropyCeil {
		return 0
	}
	return uint16(v)
}

// Scores slides PopWindow across ranks and gives one point per window to the
// leftmost smallest non-zero rank.
func (e *Extractor) Scores(ranks []uint16) []uint16 {
	scores := make([]uint16, len(ranks))
	pw := e.config.PopWindow
	if len(ranks) < pw {
		return scores
	}

	// monotonic deque of offsets; ranks never decrease front to back
	dq := make([]int, 0, pw)
	head := 0
	for j := 0; j < len(ranks); j++ {
		if r := ranks[j]; r != 0 {
			for len(dq) > head && ranks[dq[len(dq)-1]] > r {
				dq = dq[:len(dq)-1]
			}
			dq = append(dq, j)
		}
		start := j - pw + 1
		if start < 0 {
			continue
		}
		for head < len(dq) && dq[head] < start {
			head++
		}
		if head < len(dq) {
			scores[dq[head]]++
		}
		if head > pw {
			dq = append(dq[:0], dq[head:]...)
			head = 0
		}
	}
	return scores
}

// Candidates returns every window offset whose score exceeds Threshold, in
// ascending offset order. Data shorter than one window yields nil.
func (e *Extractor) Candidates(data []byte) []Candidate {
	ranks := e.Ranks(data)
	if ranks == nil {
		return nil
	}
	scores := e.Scores(ranks)
	var out []Candidate
	for off, s := range scores {
		if int(s) > e.config.Threshold {
			out = append(out, Candidate{Offset: off, Score: s})
		}
	}
	return out
}

// Features lazily yields the windows behind Candidates(data).
func (e *Extractor) Features(data []byte) iter.Seq[Feature] {
	return func(yield func(Feature) bool) {
		for _, c := range e.Candidates(data) {
			if !yield(Feature{Offset: c.Offset, Window: data[c.Offset : c.Offset+e.config.WindowSize]}) {
				return
			}
		}
	}
}

// Select keeps at most max candidates, preferring higher scores. Every
// candidate scoring above the cut survives; ties at the cut are admitted in
// offset order until max is reached. The result stays in offset order.
func Select(cands []Candidate, max int) []Candidate {
	if len(cands) <= max {
		return cands
	}
	if max <= 0 {
		return nil
	}
	sorted := make([]uint16, len(cands))
	for i, c := range cands {
		sorted[i] = c.Score
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	cut := sorted[max-1]

	above := 0
	for _, s := range sorted {
		if s > cut {
			above++
		}
	}
	allowed := max - above

	out := make([]Candidate, 0, max)
	for _, c := range cands {
		switch {
		case c.Score > cut:
			out = append(out, c)
		case c.Score == cut && allowed > 0:
			out = append(out, c)
			allowed--
		}
	}
	return out
}
