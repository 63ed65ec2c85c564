package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// recoverOrphans re-queues running jobs whose heartbeat went stale, which
// happens when a worker crashes or a pod is killed mid-job. Jobs already at
// their attempt cap are marked failed instead. Returns the number of jobs
// transitioned.
func (q *Queue) recoverOrphans(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.cfg.OrphanThreshold)

	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', completed_at = now(), claimed_by = NULL,
		    last_error = 'orphaned: heartbeat expired after max attempts'
		WHERE status = 'running' AND heartbeat_at < $1 AND attempts >= max_attempts`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failing exhausted orphans: %w", err)
	}
	failed := int(tag.RowsAffected())

	tag, err = q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', run_at = now(), claimed_by = NULL, heartbeat_at = NULL,
		    last_error = 'orphaned: heartbeat expired'
		WHERE status = 'running' AND heartbeat_at < $1`, cutoff)
	if err != nil {
		return failed, fmt.Errorf("re-queueing orphans: %w", err)
	}
	requeued := int(tag.RowsAffected())

	if failed > 0 || requeued > 0 {
		slog.Info("Recovered orphaned jobs", "requeued", requeued, "failed", failed)
	}
	return failed + requeued, nil
}

// releaseClaimsFor re-queues running jobs claimed by workers of the given
// pod. Called at startup so jobs stranded by an unclean restart of this same
// pod come back immediately instead of waiting out the orphan threshold.
func (q *Queue) releaseClaimsFor(ctx context.Context, podID string) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', run_at = now(), claimed_by = NULL, heartbeat_at = NULL,
		    last_error = 'released: pod restarted'
		WHERE status = 'running' AND claimed_by LIKE $1`, podID+"-%")
	if err != nil {
		return 0, fmt.Errorf("releasing claims for pod %s: %w", podID, err)
	}
	return int(tag.RowsAffected()), nil
}
