package entropy_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/Anish-Chanda/sdhash/internal/entropy"
)

func TestOf_Bounds(t *testing.T) {
	zeros := make([]byte, entropy.DefaultWindow)
	if v := entropy.Of(zeros); v != 0 {
		t.Errorf("constant window: expected 0, got %d", v)
	}

	distinct := make([]byte, entropy.DefaultWindow)
	for i := range distinct {
		distinct[i] = byte(i)
	}
	if v := entropy.Of(distinct); v != entropy.Scale {
		t.Errorf("all-distinct window: expected %d, got %d", entropy.Scale, v)
	}

	// two symbols, evenly split: 1 bit out of log2(64)=6
	half := append(bytes.Repeat([]byte{'a'}, 32), bytes.Repeat([]byte{'b'}, 32)...)
	if v := entropy.Of(half); v < 160 || v > 173 {
		t.Errorf("two-symbol window: expected ~167, got %d", v)
	}
}

func TestWindow_SlideMatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 4096)
	for i := range data {
		// narrow alphabet so counts move around
		data[i] = byte('a' + rng.Intn(12))
	}

	table := entropy.NewTable(entropy.DefaultWindow)
	w := table.NewWindow(data)
	for p := 1; p+entropy.DefaultWindow <= len(data); p++ {
		w.Slide(data[p-1], data[p+entropy.DefaultWindow-1])
		want := entropy.Of(data[p : p+entropy.DefaultWindow])
		if got := w.Value(); got != want {
			t.Fatalf("offset %d: rolling value %d, recomputed %d", p, got, want)
		}
	}
}

func TestNewTable_WindowSize(t *testing.T) {
	table := entropy.NewTable(32)
	if table.WindowSize() != 32 {
		t.Errorf("expected window size 32, got %d", table.WindowSize())
	}
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	if v := table.NewWindow(data).Value(); v != entropy.Scale {
		t.Errorf("expected %d for distinct 32-byte window, got %d", entropy.Scale, v)
	}
}
