package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"queuectl/internal/domain"
)

const jobColumns = `id, command, state, attempts, max_retries, timeout, next_run_at, last_error, created_at, updated_at`

// Get returns one job by id.
func (s *Store) Get(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return j, err
}

// List returns jobs ordered by creation time, optionally filtered by state.
// An empty state returns everything, terminal jobs included.
func (s *Store) List(ctx context.Context, state string) ([]domain.Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if state == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC`)
	} else {
		if !domain.ValidState(state) {
			return nil, fmt.Errorf("unknown state %q", state)
		}
		rows, err = s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE state = ? ORDER BY created_at ASC`, state)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountByState returns the number of jobs in each state. States with no
// jobs are absent from the map.
func (s *Store) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// GetConfig reads a runtime config value. Callers read fresh on every use
// so a running pool picks up changes without restart.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("config %s: %w", key, domain.ErrNotFound)
	}
	return value, err
}

// SetConfig upserts a runtime config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO config(key, value) VALUES(?, ?)`, key, value)
	return err
}

// Metric keys bumped by the worker outcome path.
const (
	MetricJobsProcessed = "jobs_processed"
	MetricJobsFailed    = "jobs_failed"
	MetricJobsRetried   = "jobs_retried"
)

// IncrMetric adds delta to a counter, creating it if needed.
func (s *Store) IncrMetric(ctx context.Context, key string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metrics(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = value + excluded.value
`, key, delta)
	return err
}

// Metrics returns all counters.
func (s *Store) Metrics(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metrics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		m[key] = value
	}
	return m, rows.Err()
}
