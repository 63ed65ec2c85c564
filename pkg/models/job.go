package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the queue status of a job row.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one unit of work on the database-backed queue. Delivery is
// at-least-once: a worker claims a pending row, heartbeats while running,
// and a stale heartbeat returns the row to pending until MaxAttempts.
type Job struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DedupeKey   *string         `json:"dedupe_key,omitempty"`
	Status      JobStatus       `json:"status"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	ClaimedBy   *string         `json:"claimed_by,omitempty"`
	HeartbeatAt *time.Time      `json:"heartbeat_at,omitempty"`
	// Steps maps a completed sub-step name to its memoized JSON result.
	// A retried invocation returns the stored result instead of
	// re-executing the sub-step.
	Steps       map[string]json.RawMessage `json:"steps,omitempty"`
	LastError   *string                    `json:"last_error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
}
