package catalog_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/Anish-Chanda/sdhash/internal/catalog"
	"github.com/Anish-Chanda/sdhash/internal/source"
	"github.com/Anish-Chanda/sdhash/sdbf"
)

// openTestCatalog connects to SDHASH_TEST_POSTGRES_DSN, skipping the test
// when it is unset.
func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dsn := os.Getenv("SDHASH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SDHASH_TEST_POSTGRES_DSN not set")
	}
	if err := catalog.Migrate(dsn); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	c, err := catalog.Open(dsn)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func digestOf(t *testing.T, name string, seed uint64, n int) *sdbf.Digest {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, 3))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.Uint32())
	}
	d, err := sdbf.Create(source.FromBytes(name, data), 0)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return d
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := catalog.Open(""); err == nil {
		t.Error("expected error for empty DSN")
	}
}

func TestSaveGetSearch(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	d := digestOf(t, "catalogued.bin", 1, 120_000)
	id, err := c.Save(ctx, d)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	e, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if e.Name != d.Name() || e.RealSize != d.RealSize() || e.ChunkCount != d.ChunkCount() {
		t.Errorf("entry = %+v", e)
	}
	back, err := e.Digest()
	if err != nil || !back.Equal(d) {
		t.Errorf("stored digest does not round trip: %v", err)
	}

	hits, err := c.Search(ctx, d, 100, 0, 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Entry.ID == id {
			found = h.Score == 100
		}
	}
	if !found {
		t.Errorf("Search() did not return the saved digest at 100: %v", hits)
	}

	entries, err := c.List(ctx)
	if err != nil || len(entries) == 0 {
		t.Errorf("List() = %d entries, %v", len(entries), err)
	}
}

func TestGet_NotFound(t *testing.T) {
	c := openTestCatalog(t)
	for _, id := range []string{"not-a-uuid", "00000000-0000-0000-0000-000000000000"} {
		if _, err := c.Get(context.Background(), id); !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}
