// Package history keeps a log of past invocations in sqlite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/clibridge/internal/response"
)

// ErrNotFound is returned by Get for an unknown invocation id.
var ErrNotFound = errors.New("invocation not found")

// Fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded invocation.
type Entry struct {
	ID          string               `json:"id"`
	Operation   string               `json:"operation"`
	Argv        []string             `json:"argv"`
	Outcome     string               `json:"outcome"`
	Response    response.CliResponse `json:"response"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Recorder receives finished invocations.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is a Recorder backed by the invocation_log table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts e. Ids must be unique.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("invocation id is empty")
	}
	if e.Operation == "" {
		return errors.New("operation is empty")
	}

	argv, err := json.Marshal(e.Argv)
	if err != nil {
		return fmt.Errorf("encode argv: %w", err)
	}
	resp, err := response.Marshal(e.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO invocation_log(id, operation, argv, outcome, success, exit_code, response, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Operation, string(argv), e.Outcome, e.Response.Success, e.Response.ExitCode, string(resp),
		formatTime(e.StartedAt), formatTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// Get returns the invocation with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, operation, argv, outcome, response, started_at, completed_at
FROM invocation_log
WHERE id = ?;
`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation %s: %w", id, err)
	}
	return e, nil
}

// Recent returns up to limit invocations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, operation, argv, outcome, response, started_at, completed_at
FROM invocation_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	return out, nil
}

// Prune deletes invocations that completed more than retention ago and
// reports how many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := formatTime(timeNow().Add(-retention))
	res, err := s.db.ExecContext(ctx, `DELETE FROM invocation_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	return res.RowsAffected()
}

var timeNow = time.Now

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                  Entry
		argv, resp         string
		started, completed string
	)
	if err := row.Scan(&e.ID, &e.Operation, &argv, &e.Outcome, &resp, &started, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(argv), &e.Argv); err != nil {
		return nil, fmt.Errorf("decode argv: %w", err)
	}
	r, err := response.Unmarshal([]byte(resp))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	e.Response = r

	var perr error
	if e.StartedAt, perr = time.Parse(timeLayout, started); perr != nil {
		return nil, fmt.Errorf("decode started_at: %w", perr)
	}
	if e.CompletedAt, perr = time.Parse(timeLayout, completed); perr != nil {
		return nil, fmt.Errorf("decode completed_at: %w", perr)
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
