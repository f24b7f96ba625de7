package set_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/Anish-Chanda/sdhash/internal/set"
	"github.com/Anish-Chanda/sdhash/internal/source"
	"github.com/Anish-Chanda/sdhash/sdbf"
)

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, 1))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

// memOpener serves named in-memory sources; unknown names fail to open.
func memOpener(files map[string][]byte) set.Opener {
	return func(_ context.Context, name string) (source.Source, error) {
		data, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("no such file")
		}
		return source.FromBytes(name, data), nil
	}
}

func defaultGenerator(t *testing.T) *sdbf.Generator {
	t.Helper()
	gen, err := sdbf.NewGenerator(sdbf.DefaultParams())
	if err != nil {
		t.Fatalf("NewGenerator() error: %v", err)
	}
	return gen
}

func TestHash_OrderAndErrors(t *testing.T) {
	base := randomBytes(1, 100_000)
	files := map[string][]byte{
		"a": base,
		"b": randomBytes(2, 80_000),
		"c": append(bytes.Clone(base[:60_000]), randomBytes(3, 40_000)...),
		"d": randomBytes(4, 30_000),
	}
	names := []string{"a", "missing", "b", "c", "d", "gone"}

	s, err := set.Hash(context.Background(), defaultGenerator(t), memOpener(files), names, 0, 3, "test")
	if err == nil {
		t.Fatal("expected joined error for missing sources")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("expected 2 joined errors, got %d: %v", n, err)
	}
	if !strings.Contains(err.Error(), "missing") || !strings.Contains(err.Error(), "gone") {
		t.Errorf("error does not name failed sources: %v", err)
	}

	want := []string{"a", "b", "c", "d"}
	if s.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(want))
	}
	for i, name := range want {
		if got := s.At(i).Name(); got != name {
			t.Errorf("At(%d).Name() = %q, want %q", i, got, name)
		}
	}
	if s.Name() != "test" {
		t.Errorf("Name() = %q", s.Name())
	}
	if got := s.InputSize(); got != 310_000 {
		t.Errorf("InputSize() = %d, want 310000", got)
	}
	if s.FilterCount() == 0 {
		t.Error("FilterCount() = 0")
	}
}

func TestHash_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	files := map[string][]byte{"a": randomBytes(5, 1000)}
	if _, err := set.Hash(ctx, defaultGenerator(t), memOpener(files), []string{"a"}, 0, 1, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHash_InvalidBlockSize(t *testing.T) {
	files := map[string][]byte{"a": randomBytes(6, 1000)}
	_, err := set.Hash(context.Background(), defaultGenerator(t), memOpener(files), []string{"a"}, 100, 1, "x")
	if !errors.Is(err, sdbf.ErrInvalidBlockSize) {
		t.Errorf("expected ErrInvalidBlockSize, got %v", err)
	}
}

func TestBlockSizeFor(t *testing.T) {
	tests := []struct {
		size      int64
		requested int
		want      int
	}{
		{1 << 10, 0, 0},
		{1 << 30, 0, 0},
		{1 << 10, 4096, 4096},
		{1 << 10, -1, 0},
		{set.AutoBlockThreshold - 1, -1, 0},
		{set.AutoBlockThreshold, -1, set.AutoBlockSize},
	}
	for _, tc := range tests {
		if got := set.BlockSizeFor(tc.size, tc.requested); got != tc.want {
			t.Errorf("BlockSizeFor(%d, %d) = %d, want %d", tc.size, tc.requested, got, tc.want)
		}
	}
}

func TestCompareAll(t *testing.T) {
	base := randomBytes(7, 100_000)
	files := map[string][]byte{
		"a":     base,
		"copy":  bytes.Clone(base),
		"other": randomBytes(8, 100_000),
	}
	s, err := set.Hash(context.Background(), defaultGenerator(t), memOpener(files), []string{"a", "copy", "other"}, 0, 2, "s")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	results := s.CompareAll(1, 0, 0)
	if len(results) != 1 {
		t.Fatalf("expected only the copy pair above threshold, got %v", results)
	}
	if r := results[0]; r.A != "a" || r.B != "copy" || r.Score != 100 {
		t.Errorf("result = %+v", r)
	}
	if all := s.CompareAll(0, 0, 0); len(all) != 3 {
		t.Errorf("threshold 0 reports %d pairs, want 3", len(all))
	}

	var buf bytes.Buffer
	if err := set.WriteResults(&buf, results); err != nil {
		t.Fatalf("WriteResults() error: %v", err)
	}
	if buf.String() != "a|copy|100\n" {
		t.Errorf("WriteResults() = %q", buf.String())
	}
}

func TestCompareTo(t *testing.T) {
	base := randomBytes(9, 100_000)
	gen := defaultGenerator(t)
	refs, err := set.Hash(context.Background(), gen, memOpener(map[string][]byte{"ref": base}), []string{"ref"}, 0, 1, "refs")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	targets, err := set.Hash(context.Background(), gen, memOpener(map[string][]byte{
		"same":  base,
		"other": randomBytes(10, 50_000),
	}), []string{"same", "other"}, 0, 1, "targets")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	results := refs.CompareTo(targets, 0, 0, 0)
	want := []set.Result{{A: "ref", B: "same", Score: 100}, {A: "ref", B: "other", Score: 0}}
	if fmt.Sprint(results) != fmt.Sprint(want) {
		t.Errorf("CompareTo() = %v, want %v", results, want)
	}

	var buf bytes.Buffer
	_ = set.WriteResults(&buf, results)
	if !strings.Contains(buf.String(), "ref|other|000\n") {
		t.Errorf("zero score not padded: %q", buf.String())
	}
}

func TestWriteToRead_RoundTrip(t *testing.T) {
	files := map[string][]byte{"a": randomBytes(11, 40_000), "b": randomBytes(12, 70_000)}
	s, err := set.Hash(context.Background(), defaultGenerator(t), memOpener(files), []string{"a", "b"}, 0, 2, "s")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error: %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("WriteTo() wrote %d lines, want 2", got)
	}

	back, err := set.Read(&buf, "s")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if back.Len() != 2 {
		t.Fatalf("Read() Len() = %d, want 2", back.Len())
	}
	for i := range 2 {
		if !back.At(i).Equal(s.At(i)) {
			t.Errorf("digest %d differs after round trip", i)
		}
	}
}

func TestRead_BadLines(t *testing.T) {
	good := sdbf.Render(mustDigest(t, randomBytes(13, 30_000)))
	in := strings.Join([]string{good, "not a digest", "", "sdbf:03:1:x", good}, "\n")

	s, err := set.Read(strings.NewReader(in), "mixed.sdbf")
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("expected 2 line errors, got %v", err)
	}
	for _, e := range errs {
		if !errors.Is(e, sdbf.ErrMalformedDigest) {
			t.Errorf("line error %v does not wrap ErrMalformedDigest", e)
		}
	}
	if !strings.Contains(errs[0].Error(), "mixed.sdbf:2") || !strings.Contains(errs[1].Error(), "mixed.sdbf:4") {
		t.Errorf("errors do not carry line numbers: %v", err)
	}
}

func mustDigest(t *testing.T, data []byte) *sdbf.Digest {
	t.Helper()
	d, err := sdbf.Create(source.FromBytes("mem", data), 0)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return d
}
