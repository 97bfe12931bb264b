package types

import "time"

// TaskAssignment is a claim ticket linking a worker identity, a function id
// and the triggering event. Ephemeral: created on match + acquire, destroyed
// on acknowledgment or lease expiry.
type TaskAssignment struct {
	TaskID      string `json:"task_id"`
	UID         uint64 `json:"uid"`
	FID         uint64 `json:"fid"`
	FuncVersion uint64 `json:"func_version"`
	Event       Event  `json:"event"`
	// AcquiredAt is stamped when the lease is granted; a redelivery after
	// lease expiry restamps it.
	AcquiredAt time.Time `json:"acquired_at"`
}

// TaskOutcome is the terminal state of one leased execution.
type TaskOutcome string

const (
	OutcomeSucceeded        TaskOutcome = "succeeded"
	OutcomeFailed           TaskOutcome = "failed"
	OutcomeTimedOut         TaskOutcome = "timed_out"
	OutcomeResourceExceeded TaskOutcome = "resource_exceeded"
)

func (o TaskOutcome) Valid() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeTimedOut, OutcomeResourceExceeded:
		return true
	}
	return false
}

// Terminal outcomes are never retried by the engine for the same lease.
func (o TaskOutcome) Terminal() bool {
	return o == OutcomeTimedOut || o == OutcomeResourceExceeded
}

// ExecutionRecord is the queryable outcome of one task execution, recorded
// against the (function, event) pair. Invocation failures are never silently
// dropped.
type ExecutionRecord struct {
	TaskID      string      `json:"task_id"`
	FID         uint64      `json:"fid"`
	FuncVersion uint64      `json:"func_version"`
	EventID     string      `json:"event_id"`
	UID         uint64      `json:"uid"`
	Outcome     TaskOutcome `json:"outcome"`
	Error       string      `json:"error,omitempty"`
	Output      string      `json:"output,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
}
