package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"queuectl/internal/domain"
)

// Open opens (or creates) the queue database at path. SQLite allows a
// single writer, so the pool is pinned to one connection; every worker
// goroutine serializes through it.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist and seeds the default
// config and metric rows. Timestamps are always bound from Go in UTC so
// that stored values compare consistently.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  command TEXT NOT NULL,
  state TEXT NOT NULL CHECK(state IN ('pending','processing','completed','failed','dead')) DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 3,
  timeout INTEGER NOT NULL DEFAULT 0,
  next_run_at DATETIME,
  last_error TEXT,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(state, next_run_at, created_at);
CREATE TABLE IF NOT EXISTS config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metrics (
  key TEXT PRIMARY KEY,
  value INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO config(key, value) VALUES('backoff_base', '2');
INSERT OR IGNORE INTO metrics(key, value) VALUES('jobs_processed', 0);
INSERT OR IGNORE INTO metrics(key, value) VALUES('jobs_failed', 0);
INSERT OR IGNORE INTO metrics(key, value) VALUES('jobs_retried', 0);
`
	_, err := db.Exec(schema)
	return err
}

// Store is the durable job table. It is the single source of truth shared
// by workers; all cross-worker coordination happens through its statements.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Enqueue inserts a new pending job. A missing id gets a generated one; a
// duplicate id fails with ErrDuplicateID and leaves the existing row alone.
func (s *Store) Enqueue(ctx context.Context, j domain.Job) (domain.Job, error) {
	if j.Command == "" {
		return domain.Job{}, errors.New("command is required")
	}
	if j.ID == "" {
		j.ID = "job_" + uuid.NewString()
	}
	if j.MaxRetries < 0 {
		return domain.Job{}, fmt.Errorf("max_retries must be non-negative, got %d", j.MaxRetries)
	}
	if j.Timeout < 0 {
		return domain.Job{}, fmt.Errorf("timeout must be non-negative, got %d", j.Timeout)
	}
	now := time.Now().UTC()
	j.State = domain.StatePending
	j.Attempts = 0
	j.NextRunAt = nil
	j.LastError = ""
	j.CreatedAt = now
	j.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO jobs (id, command, state, attempts, max_retries, timeout, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?, ?)
`, j.ID, j.Command, j.State, j.MaxRetries, j.Timeout, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return domain.Job{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Job{}, fmt.Errorf("job %s: %w", j.ID, domain.ErrDuplicateID)
	}
	return j, nil
}

// ClaimNext atomically claims the oldest eligible job: pending, or failed
// with next_run_at due. The select and the transition to processing happen
// in one statement, so concurrent callers never receive the same job and a
// crash can't leave a half-claimed row. Returns (nil, nil) when nothing is
// eligible.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE jobs
SET state = ?, attempts = attempts + 1, updated_at = ?
WHERE id = (
  SELECT id FROM jobs
  WHERE state = ? OR (state = ? AND next_run_at <= ?)
  ORDER BY created_at ASC
  LIMIT 1
)
RETURNING `+jobColumns+`
`, domain.StateProcessing, now.UTC(),
		domain.StatePending, domain.StateFailed, now.UTC())

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// MarkCompleted finishes a processing job.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET state = ?, updated_at = ? WHERE id = ? AND state = ?
`, domain.StateCompleted, time.Now().UTC(), id, domain.StateProcessing)
	return s.checkMutation(ctx, id, res, err)
}

// MarkRetry schedules a processing job for another attempt at nextRunAt.
func (s *Store) MarkRetry(ctx context.Context, id string, nextRunAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET state = ?, next_run_at = ?, last_error = ?, updated_at = ? WHERE id = ? AND state = ?
`, domain.StateFailed, nextRunAt.UTC(), truncErr(lastErr), time.Now().UTC(), id, domain.StateProcessing)
	return s.checkMutation(ctx, id, res, err)
}

// MarkDead quarantines a processing job in the DLQ.
func (s *Store) MarkDead(ctx context.Context, id string, lastErr string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET state = ?, last_error = ?, updated_at = ? WHERE id = ? AND state = ?
`, domain.StateDead, truncErr(lastErr), time.Now().UTC(), id, domain.StateProcessing)
	return s.checkMutation(ctx, id, res, err)
}

// RetryDead revives a DLQ job: back to pending with a clean slate.
func (s *Store) RetryDead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET state = ?, attempts = 0, next_run_at = NULL, last_error = NULL, updated_at = ?
WHERE id = ? AND state = ?
`, domain.StatePending, time.Now().UTC(), id, domain.StateDead)
	return s.checkMutation(ctx, id, res, err)
}

// checkMutation turns a zero-row guarded update into ErrNotFound or
// ErrInvalidState depending on whether the job exists at all.
func (s *Store) checkMutation(ctx context.Context, id string, res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var state string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s: %w", id, state, domain.ErrInvalidState)
}

// Error text kept in the row is a summary, not the full log.
const maxErrLen = 500

func truncErr(s string) string {
	if len(s) > maxErrLen {
		return s[:maxErrLen]
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		j       domain.Job
		nextRun sql.NullTime
		lastErr sql.NullString
	)
	err := row.Scan(&j.ID, &j.Command, &j.State, &j.Attempts, &j.MaxRetries, &j.Timeout,
		&nextRun, &lastErr, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return domain.Job{}, err
	}
	if nextRun.Valid {
		t := nextRun.Time
		j.NextRunAt = &t
	}
	if lastErr.Valid {
		j.LastError = lastErr.String
	}
	return j, nil
}
