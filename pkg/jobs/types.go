// Package jobs provides the database-backed scheduled-job substrate: an
// at-least-once queue with per-kind concurrency caps and timeouts, step
// memoization for retried invocations, heartbeat-based orphan recovery, and
// an interval scheduler for cron-style work.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tideline/tideline/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no claimable pending jobs exist.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrAtCapacity indicates every pending kind is at its concurrency cap.
	ErrAtCapacity = errors.New("at capacity")

	// ErrStepNotFound indicates a memoized step result was requested for a
	// job that never ran the step.
	ErrStepNotFound = errors.New("step not found")
)

// Handler processes one claimed job. Returning an error re-queues the job
// until its attempt cap, so handlers must keep each sub-step externally
// idempotent.
type Handler func(ctx context.Context, job *models.Job) error

// Registry maps job kinds to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs a handler for a kind, replacing any previous one.
func (r *Registry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Get returns the handler for a kind.
func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// PoolHealth is the worker pool's health snapshot.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	QueueDepth       int            `json:"queue_depth"`
	RunningJobs      int            `json:"running_jobs"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CurrentJobID  int64     `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
