package domain

import "time"

const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
	StateDead       = "dead"
)

// States lists every job state, in lifecycle order.
var States = []string{StatePending, StateProcessing, StateCompleted, StateFailed, StateDead}

func ValidState(s string) bool {
	for _, st := range States {
		if s == st {
			return true
		}
	}
	return false
}

// Job is a unit of work: a shell command plus its retry bookkeeping.
// NextRunAt is nil until a failure schedules the first retry.
type Job struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	State      string     `json:"state"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"max_retries"`
	Timeout    int        `json:"timeout,omitempty"` // seconds; 0 means the pool default
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Terminal reports whether no automatic transition leaves the job's state.
func (j Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateDead
}
