// Package runlog journals controller runs in SQLite.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/tessera/internal/control"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements control.Recorder on the run_log tables.
type Store struct {
	db *sql.DB
}

var _ control.Recorder = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunStarted(ctx context.Context, st control.Status) error {
	if st.RunID == "" {
		return fmt.Errorf("run id is empty")
	}
	started := time.Now().UTC()
	if st.StartedAt != nil {
		started = *st.StartedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_log(id, state, code, fingerprint, executed, started_at)
VALUES(?, ?, ?, ?, '[]', ?);
`, st.RunID, st.State.String(), st.Code, st.Fingerprint, started.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", st.RunID, err)
	}
	return nil
}

func (s *Store) RunFinished(ctx context.Context, st control.Status) error {
	executed, err := json.Marshal(st.Executed)
	if err != nil {
		return fmt.Errorf("marshal executed: %w", err)
	}
	finished := time.Now().UTC()
	if st.FinishedAt != nil {
		finished = *st.FinishedAt
	}
	started := finished
	if st.StartedAt != nil {
		started = *st.StartedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO run_log(id, state, code, fingerprint, executed, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  state = excluded.state,
  code = excluded.code,
  executed = excluded.executed,
  finished_at = excluded.finished_at;
`, st.RunID, st.State.String(), st.Code, st.Fingerprint, string(executed),
		started.Format(timeLayout), finished.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("update run %s: %w", st.RunID, err)
	}

	if f := st.Failure; f != nil {
		_, err = tx.ExecContext(ctx, `
INSERT OR REPLACE INTO run_failure(run_id, entry, processor, endpoint, message)
VALUES(?, ?, ?, ?, ?);
`, st.RunID, f.Entry, f.Processor, f.Endpoint, f.Message)
		if err != nil {
			return fmt.Errorf("record failure for run %s: %w", st.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectRuns = `
SELECT r.id, r.state, r.code, COALESCE(r.fingerprint, ''), r.executed, r.started_at, r.finished_at,
       f.entry, f.processor, f.endpoint, f.message
FROM run_log r
LEFT JOIN run_failure f ON f.run_id = r.id`

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]control.Status, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY r.started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []control.Status{}
	for rows.Next() {
		st, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (control.Status, error) {
	st, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+` WHERE r.id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return control.Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st, err
}

// Prune deletes runs that started before now minus retention and reports
// how many were removed. A zero retention keeps everything.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)
	running := control.Running.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM run_failure WHERE run_id IN (
  SELECT id FROM run_log WHERE started_at < ? AND state != ?
);`, cutoff, running); err != nil {
		return 0, fmt.Errorf("prune run failures: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM run_log WHERE started_at < ? AND state != ?;`, cutoff, running)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (control.Status, error) {
	var (
		st                             control.Status
		state, executed, started       string
		finished                       sql.NullString
		entry, proc, endpoint, message sql.NullString
	)
	if err := row.Scan(&st.RunID, &state, &st.Code, &st.Fingerprint, &executed, &started, &finished,
		&entry, &proc, &endpoint, &message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("scan run: %w", err)
	}

	if err := st.State.UnmarshalText([]byte(state)); err != nil {
		return st, fmt.Errorf("run %s: %w", st.RunID, err)
	}
	if err := json.Unmarshal([]byte(executed), &st.Executed); err != nil {
		return st, fmt.Errorf("run %s: decode executed: %w", st.RunID, err)
	}
	if t, err := time.Parse(timeLayout, started); err == nil {
		st.StartedAt = &t
	}
	if finished.Valid {
		if t, err := time.Parse(timeLayout, finished.String); err == nil {
			st.FinishedAt = &t
		}
	}
	if entry.Valid {
		st.Failure = &control.Failure{
			Entry:     entry.String,
			Processor: proc.String,
			Endpoint:  endpoint.String,
			Message:   message.String,
		}
	}
	return st, nil
}
