package domain

import "errors"

var (
	// ErrDuplicateID is returned by enqueue when the id already exists.
	// The existing job is left untouched.
	ErrDuplicateID = errors.New("job id already exists")

	// ErrNotFound is returned when no job (or config key) matches the id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is attempted from a
	// state that forbids it, e.g. DLQ retry on a non-dead job.
	ErrInvalidState = errors.New("invalid job state for operation")

	// ErrInvalidConfig is returned for malformed runtime configuration,
	// e.g. a non-numeric or non-positive backoff base.
	ErrInvalidConfig = errors.New("invalid config value")
)
