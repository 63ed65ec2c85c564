package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/models"
)

// Queue is the jobs-table repository: enqueue, claim, heartbeat, and the
// terminal transitions. Delivery is at-least-once.
type Queue struct {
	pool *pgxpool.Pool
	cfg  *config.QueueConfig
}

// NewQueue creates a queue over the given pool.
func NewQueue(pool *pgxpool.Pool, cfg *config.QueueConfig) *Queue {
	return &Queue{pool: pool, cfg: cfg}
}

// EnqueueRequest describes one job to enqueue.
type EnqueueRequest struct {
	Kind    string
	Payload any

	// DedupeKey, when set, suppresses the insert while another job with
	// the same key is pending or running.
	DedupeKey string

	// RunAt defers execution; zero means now.
	RunAt time.Time

	// MaxAttempts overrides the configured per-kind cap when positive.
	MaxAttempts int
}

// Enqueue inserts a job. Returns the job id and true when inserted, or
// (0, false) when suppressed by the dedupe key.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (int64, bool, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return 0, false, fmt.Errorf("encoding payload for %s: %w", req.Kind, err)
	}
	if req.Payload == nil {
		payload = []byte("{}")
	}

	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.MaxAttemptsFor(req.Kind)
	}
	var dedupeKey *string
	if req.DedupeKey != "" {
		dedupeKey = &req.DedupeKey
	}

	var id int64
	err = q.pool.QueryRow(ctx, `
		INSERT INTO jobs (kind, payload, dedupe_key, run_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL AND status IN ('pending', 'running')
		DO NOTHING
		RETURNING id`,
		req.Kind, payload, dedupeKey, runAt, maxAttempts).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("enqueueing %s: %w", req.Kind, err)
	}
	return id, true, nil
}

const jobColumns = `id, kind, payload, dedupe_key, status, run_at, attempts, max_attempts,
	claimed_by, heartbeat_at, steps, last_error, created_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var payload, steps []byte
	err := row.Scan(&j.ID, &j.Kind, &payload, &j.DedupeKey, &j.Status, &j.RunAt,
		&j.Attempts, &j.MaxAttempts, &j.ClaimedBy, &j.HeartbeatAt, &steps,
		&j.LastError, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = payload
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &j.Steps); err != nil {
			return nil, fmt.Errorf("decoding steps for job %d: %w", j.ID, err)
		}
	}
	return &j, nil
}

// Claim atomically claims the next runnable pending job for claimedBy,
// honoring per-kind concurrency caps. Capped kinds serialize their claims
// on a per-kind advisory lock so the running-count check cannot race
// between replicas; this is what makes cluster.sync truly single-flight.
func (q *Queue) Claim(ctx context.Context, claimedBy string) (*models.Job, error) {
	var skipKinds []string
	sawPending := false

	for {
		job, err := q.tryClaim(ctx, claimedBy, skipKinds)
		if err == nil {
			return job, nil
		}
		var capped *atCapacityError
		if errors.As(err, &capped) {
			sawPending = true
			skipKinds = append(skipKinds, capped.kind)
			continue
		}
		if errors.Is(err, ErrNoJobsAvailable) && sawPending {
			return nil, ErrAtCapacity
		}
		return nil, err
	}
}

type atCapacityError struct{ kind string }

func (e *atCapacityError) Error() string { return "kind at capacity: " + e.kind }

func (q *Queue) tryClaim(ctx context.Context, claimedBy string, skipKinds []string) (*models.Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if skipKinds == nil {
		skipKinds = []string{}
	}
	row := tx.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'pending'
		  AND run_at <= now()
		  AND NOT (kind = ANY($1))
		ORDER BY run_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, skipKinds)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("querying pending job: %w", err)
	}

	if cap := q.cfg.CapFor(job.Kind); cap > 0 {
		// Serialize cap checks per kind for the rest of this transaction.
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext('tideline.jobs.' || $1::text))`, job.Kind); err != nil {
			return nil, fmt.Errorf("acquiring kind lock for %s: %w", job.Kind, err)
		}
		var running int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM jobs WHERE status = 'running' AND kind = $1`, job.Kind).Scan(&running); err != nil {
			return nil, fmt.Errorf("counting running %s jobs: %w", job.Kind, err)
		}
		if running >= cap {
			return nil, &atCapacityError{kind: job.Kind}
		}
	}

	row = tx.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'running', attempts = attempts + 1, claimed_by = $2, heartbeat_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, job.ID, claimedBy)
	job, err = scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("claiming job %d: %w", job.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return job, nil
}

// Heartbeat refreshes the running job's liveness stamp.
func (q *Queue) Heartbeat(ctx context.Context, jobID int64) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE jobs SET heartbeat_at = now() WHERE id = $1 AND status = 'running'`, jobID)
	if err != nil {
		return fmt.Errorf("heartbeat for job %d: %w", jobID, err)
	}
	return nil
}

// Complete marks a job terminally successful.
func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = now(), last_error = NULL
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("completing job %d: %w", jobID, err)
	}
	return nil
}

// Fail records a failed delivery: the job re-queues with backoff until its
// attempt cap, then goes terminally failed.
func (q *Queue) Fail(ctx context.Context, job *models.Job, jobErr error) error {
	msg := jobErr.Error()
	if job.Attempts >= job.MaxAttempts {
		_, err := q.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'failed', completed_at = now(), last_error = $2, claimed_by = NULL
			WHERE id = $1`, job.ID, msg)
		if err != nil {
			return fmt.Errorf("failing job %d: %w", job.ID, err)
		}
		return nil
	}

	_, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', run_at = $2, last_error = $3, claimed_by = NULL, heartbeat_at = NULL
		WHERE id = $1`, job.ID, time.Now().Add(retryDelay(job.Attempts)), msg)
	if err != nil {
		return fmt.Errorf("re-queueing job %d: %w", job.ID, err)
	}
	return nil
}

// retryDelay doubles per delivery attempt, capped at two minutes.
func retryDelay(attempt int) time.Duration {
	d := 5 * time.Second << (attempt - 1)
	if d > 2*time.Minute || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := scanJob(q.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %d: %w", jobID, ErrNoJobsAvailable)
		}
		return nil, fmt.Errorf("loading job %d: %w", jobID, err)
	}
	return job, nil
}

// Depth returns the number of runnable pending jobs and running jobs.
func (q *Queue) Depth(ctx context.Context) (pending, running int, err error) {
	err = q.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'running')
		FROM jobs`).Scan(&pending, &running)
	if err != nil {
		return 0, 0, fmt.Errorf("querying queue depth: %w", err)
	}
	return pending, running, nil
}

// RunStep executes a named, memoized sub-step of a job. If the job already
// carries a committed result for the step (a retried delivery), the stored
// result is returned without re-executing fn. Otherwise fn runs and its
// result is persisted on the job row before returning, so a retry after
// this boundary skips the step's side effects.
func RunStep[T any](ctx context.Context, q *Queue, jobID int64, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	var stored []byte
	err := q.pool.QueryRow(ctx,
		`SELECT steps -> $2 FROM jobs WHERE id = $1`, jobID, name).Scan(&stored)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return zero, fmt.Errorf("reading step %s of job %d: %w", name, jobID, err)
	}
	if len(stored) > 0 {
		var result T
		if err := json.Unmarshal(stored, &result); err != nil {
			return zero, fmt.Errorf("decoding memoized step %s of job %d: %w", name, jobID, err)
		}
		return result, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("encoding step %s of job %d: %w", name, jobID, err)
	}
	_, err = q.pool.Exec(ctx, `
		UPDATE jobs SET steps = jsonb_set(steps, ARRAY[$2::text], $3::jsonb)
		WHERE id = $1`, jobID, name, encoded)
	if err != nil {
		return zero, fmt.Errorf("persisting step %s of job %d: %w", name, jobID, err)
	}
	return result, nil
}
