// Package backoff decides whether a failed job gets another attempt and,
// if so, how long it waits. The decision is a pure function of the job's
// attempt count, its retry limit, and the configured base.
package backoff

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"queuectl/internal/domain"
)

// DefaultBase is the seed value for the backoff_base config key.
const DefaultBase = 2.0

// Decision is the outcome for one failed execution. When Exhausted is set
// the job has no attempts left and belongs in the DLQ; otherwise Delay is
// how long to wait before the job becomes claimable again.
type Decision struct {
	Exhausted bool
	Delay     time.Duration
}

// Decide computes the retry decision for a job whose execution just failed.
// attempts is the post-claim count, i.e. it already includes the attempt
// that failed, so the first retry waits base^1 and a job is exhausted
// exactly when attempts > maxRetries.
func Decide(attempts, maxRetries int, base float64) (Decision, error) {
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		return Decision{}, fmt.Errorf("backoff base %v: %w", base, domain.ErrInvalidConfig)
	}
	if attempts > maxRetries {
		return Decision{Exhausted: true}, nil
	}
	if attempts < 1 {
		attempts = 1
	}
	secs := math.Pow(base, float64(attempts))
	return Decision{Delay: time.Duration(secs * float64(time.Second))}, nil
}

// ParseBase parses a backoff base stored as a config string.
func ParseBase(raw string) (float64, error) {
	base, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("backoff base %q: %w", raw, domain.ErrInvalidConfig)
	}
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		return 0, fmt.Errorf("backoff base %q: %w", raw, domain.ErrInvalidConfig)
	}
	return base, nil
}
