package models

import "time"

// RunState is the lifecycle state of one worker function invocation.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// FunctionRun records one invocation of a pipeline function for the operator
// health view. Details carries per-run counters (posts ingested, batches
// failed, clusters created, and so on).
type FunctionRun struct {
	ID           string         `json:"id"`
	FunctionID   string         `json:"function_id"`
	State        RunState       `json:"state"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}
