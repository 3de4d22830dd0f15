// Package speccache remembers the last spec seen under a name so that a
// reload can tell whether anything changed.
package speccache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mattjoyce/clibridge/internal/spec"
)

// Record is the stored state for one name.
type Record struct {
	Name      string
	Hash      uint64
	Digest    string
	UpdatedAt time.Time
}

// Store is backed by the spec_cache table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Unchanged reports whether s equals the spec last recorded under name.
// A hash mismatch settles it without decoding the stored spec; a hash match
// is confirmed with spec.Equal.
func (st *Store) Unchanged(ctx context.Context, name string, s *spec.Spec) (bool, error) {
	var hashHex, canonical string
	err := st.db.QueryRowContext(ctx, `SELECT hash, canonical FROM spec_cache WHERE name = ?;`, name).Scan(&hashHex, &canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load cached spec %q: %w", name, err)
	}

	stored, err := strconv.ParseUint(hashHex, 16, 64)
	if err != nil {
		return false, fmt.Errorf("cached hash for %q: %w", name, err)
	}
	if stored != spec.Hash(s) {
		return false, nil
	}

	prev, err := spec.Parse([]byte(canonical))
	if err != nil {
		return false, fmt.Errorf("decode cached spec %q: %w", name, err)
	}
	return spec.Equal(prev, s), nil
}

// Record stores s under name, replacing any previous entry.
func (st *Store) Record(ctx context.Context, name string, s *spec.Spec) error {
	if name == "" {
		return errors.New("spec name is empty")
	}
	canonical, err := spec.Canonical(s)
	if err != nil {
		return err
	}
	digest, err := spec.Digest(s)
	if err != nil {
		return err
	}

	_, err = st.db.ExecContext(ctx, `
INSERT INTO spec_cache(name, hash, digest, canonical, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  hash = excluded.hash,
  digest = excluded.digest,
  canonical = excluded.canonical,
  updated_at = excluded.updated_at;
`, name, formatHash(spec.Hash(s)), digest, string(canonical), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record spec %q: %w", name, err)
	}
	return nil
}

// Get returns the stored record for name, or nil when there is none.
func (st *Store) Get(ctx context.Context, name string) (*Record, error) {
	var (
		r                Record
		hashHex, updated string
	)
	err := st.db.QueryRowContext(ctx, `SELECT name, hash, digest, updated_at FROM spec_cache WHERE name = ?;`, name).
		Scan(&r.Name, &hashHex, &r.Digest, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached spec %q: %w", name, err)
	}
	if r.Hash, err = strconv.ParseUint(hashHex, 16, 64); err != nil {
		return nil, fmt.Errorf("cached hash for %q: %w", name, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("cached updated_at for %q: %w", name, err)
	}
	return &r, nil
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
