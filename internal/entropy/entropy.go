package entropy

import "math"

const (
	DefaultWindow = 64   // Default window size in bytes
	Scale         = 1000 // Value() of a window where every byte is distinct
	power         = 10   // fractional bits kept in the table
)

// Table holds the fixed-point entropy contribution of a byte value seen
// c times in a window, for c in [0, window].
type Table struct {
	window int
	levels []uint64
}

// NewTable precomputes contributions for the given window size.
func NewTable(window int) *Table {
	t := &Table{
		window: window,
		levels: make([]uint64, window+1),
	}
	t.init()
	return t
}

func (t *Table) init() {
	norm := math.Log2(float64(t.window))
	for c := 1; c <= t.window; c++ {
		p := float64(c) / float64(t.window)
		h := -p * math.Log2(p) / norm
		t.levels[c] = uint64(math.Round(h * Scale * (1 << power)))
	}
}

// WindowSize returns the window length the table was built for.
func (t *Table) WindowSize() int {
	return t.window
}

// Window is a rolling entropy estimator over the last WindowSize bytes.
type Window struct {
	table  *Table
	counts [256]uint16
	sum    uint64
}

// NewWindow primes a window with the first WindowSize bytes of first.
func (t *Table) NewWindow(first []byte) *Window {
	w := &Window{table: t}
	for _, b := range first[:t.window] {
		w.counts[b]++
	}
	for _, c := range w.counts {
		w.sum += t.levels[c]
	}
	return w
}

// Slide drops out from the window and appends in.
func (w *Window) Slide(out, in byte) {
	if out == in {
		return
	}
	lv := w.table.levels
	w.sum -= lv[w.counts[out]]
	w.counts[out]--
	w.sum += lv[w.counts[out]]

	w.sum -= lv[w.counts[in]]
	w.counts[in]++
	w.sum += lv[w.counts[in]]
}

// Value returns the window entropy in [0, Scale].
func (w *Window) Value() int {
	v := int(w.sum >> power)
	if v > Scale {
		v = Scale
	}
	return v
}

var defaultTable = NewTable(DefaultWindow)

// Of computes the entropy of a single DefaultWindow-byte window.
func Of(data []byte) int {
	return defaultTable.NewWindow(data).Value()
}
