// Package catalog stores rendered digests in Postgres so that later inputs
// can be searched against everything catalogued.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Anish-Chanda/sdhash/sdbf"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("digest not found")

// Migrate brings the schema at dsn up to date.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Catalog is a Postgres-backed digest store.
type Catalog struct {
	db *sqlx.DB
}

// Open connects to Postgres. The schema must already be migrated.
func Open(dsn string) (*Catalog, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgresDSN must be set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Catalog{db: db}, nil
}

// Close the DB connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Entry is a catalogued digest.
type Entry struct {
	ID         string    `db:"digest_id"`
	Name       string    `db:"name"`
	RealSize   int64     `db:"real_size"`
	BlockSize  int       `db:"block_size"`
	ChunkCount int       `db:"chunk_count"`
	Encoded    string    `db:"encoded"`
	CreatedAt  time.Time `db:"created_at"`
}

// Digest parses the stored encoding.
func (e *Entry) Digest() (*sdbf.Digest, error) {
	d, err := sdbf.Parse(e.Encoded)
	if err != nil {
		return nil, fmt.Errorf("catalog entry %s: %w", e.ID, err)
	}
	return d, nil
}

// Save stores d and returns its new id.
func (c *Catalog) Save(ctx context.Context, d *sdbf.Digest) (string, error) {
	id := uuid.NewString()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO digests (digest_id, name, real_size, block_size, chunk_count, encoded)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, d.Name(), d.RealSize(), d.BlockSize(), d.ChunkCount(), d.String(),
	)
	if err != nil {
		return "", fmt.Errorf("insert digest %q: %w", d.Name(), err)
	}
	zap.L().Named("catalog").Debug("saved digest", zap.String("id", id), zap.String("name", d.Name()))
	return id, nil
}

// Get returns the entry with the given id.
func (c *Catalog) Get(ctx context.Context, id string) (*Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q is not a digest id", ErrNotFound, id)
	}
	var e Entry
	err := c.db.GetContext(ctx, &e, `SELECT * FROM digests WHERE digest_id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns every entry, oldest first.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := c.db.SelectContext(ctx, &entries, `SELECT * FROM digests ORDER BY created_at, digest_id`)
	return entries, err
}

// Match is a search hit.
type Match struct {
	Entry Entry
	Score int
}

// Search compares q with every catalogued digest and returns the entries
// scoring at least threshold, best first.
func (c *Catalog) Search(ctx context.Context, q *sdbf.Digest, threshold, thresholdLow, thresholdHigh int) ([]Match, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	log := zap.L().Named("catalog")
	var out []Match
	for _, e := range entries {
		d, err := e.Digest()
		if err != nil {
			log.Warn("skipping unreadable entry", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		if score := sdbf.Compare(q, d, thresholdLow, thresholdHigh); score >= threshold {
			out = append(out, Match{Entry: e, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
