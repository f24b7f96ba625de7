package set

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Anish-Chanda/sdhash/internal/source"
	"github.com/Anish-Chanda/sdhash/sdbf"
)

const (
	// AutoBlockSize is the block size picked for large sources when the
	// caller asks for automatic selection with a negative block size.
	AutoBlockSize = 16 << 10
	// AutoBlockThreshold is the source size from which AutoBlockSize applies.
	AutoBlockThreshold = 16 << 20
)

// BlockSizeFor resolves a requested block size for a source of the given
// size. Non-negative requests are returned unchanged.
func BlockSizeFor(size int64, requested int) int {
	if requested >= 0 {
		return requested
	}
	if size >= AutoBlockThreshold {
		return AutoBlockSize
	}
	return 0
}

// Opener resolves a name to a source.
type Opener func(ctx context.Context, name string) (source.Source, error)

// Hash digests every named source using up to threads goroutines and
// returns a set in the order of names. Sources that fail are skipped and
// their errors joined into the returned error; the set still holds every
// digest that succeeded. Cancelling ctx stops scheduling new sources. opts
// are applied to every Create call.
func Hash(ctx context.Context, gen *sdbf.Generator, open Opener, names []string, blockSize, threads int, setName string, opts ...sdbf.CreateOption) (*Set, error) {
	log := zap.L().Named("set")
	results := make([]*sdbf.Digest, len(names))

	var (
		mu   sync.Mutex
		errs error
	)
	fail := func(name string, err error) {
		log.Warn("skipping source", zap.String("name", name), zap.Error(err))
		mu.Lock()
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		mu.Unlock()
	}

	var g errgroup.Group
	if threads > 0 {
		g.SetLimit(threads)
	}
	for i, name := range names {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := open(ctx, name)
			if err != nil {
				fail(name, err)
				return nil
			}
			defer src.Close()

			size, err := src.Size()
			if err != nil {
				fail(name, fmt.Errorf("%w: %w", sdbf.ErrSourceUnavailable, err))
				return nil
			}
			d, err := gen.Create(src, BlockSizeFor(size, blockSize), append([]sdbf.CreateOption{sdbf.WithRealSize(size)}, opts...)...)
			if err != nil {
				fail(name, err)
				return nil
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := New(setName)
	for _, d := range results {
		if d != nil {
			s.Add(d)
		}
	}
	log.Debug("hashed set",
		zap.String("set", setName),
		zap.Int("sources", len(names)),
		zap.Int("digests", s.Len()))
	return s, errs
}
