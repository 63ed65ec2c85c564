package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tideline/tideline/pkg/jobs"
)

// Emitter enqueues domain events as jobs. All emissions carry dedupe keys
// so concurrent producers (ingest runs, the unnormalized backstop, sync
// replicas) collapse into a single pending job per subject.
type Emitter struct {
	queue *jobs.Queue
}

// NewEmitter creates an emitter over the queue.
func NewEmitter(queue *jobs.Queue) *Emitter {
	return &Emitter{queue: queue}
}

// EmitPreprocess enqueues a post.preprocess job for one post. The dedupe
// key is the post id, so re-detection while a job is already pending or
// running is a no-op.
func (e *Emitter) EmitPreprocess(ctx context.Context, postID, reason string) error {
	_, inserted, err := e.queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:      KindPostPreprocess,
		Payload:   PreprocessPayload{PostID: postID, Reason: reason},
		DedupeKey: KindPostPreprocess + ":" + postID,
	})
	if err != nil {
		return fmt.Errorf("emitting preprocess for %s: %w", postID, err)
	}
	if !inserted {
		slog.Debug("Preprocess already queued", "post_id", postID, "reason", reason)
	}
	return nil
}

// EmitReview enqueues a cluster.review job for one cluster, deduped per
// cluster while pending or running.
func (e *Emitter) EmitReview(ctx context.Context, clusterID int64) error {
	_, inserted, err := e.queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:      KindClusterReview,
		Payload:   ReviewPayload{ClusterID: clusterID},
		DedupeKey: fmt.Sprintf("%s:%d", KindClusterReview, clusterID),
	})
	if err != nil {
		return fmt.Errorf("emitting review for cluster %d: %w", clusterID, err)
	}
	if inserted {
		slog.Info("Cluster review queued", "cluster_id", clusterID)
	}
	return nil
}

// EmitBackfill enqueues a cluster.backfill job. One backfill at a time:
// the constant dedupe key suppresses overlapping requests.
func (e *Emitter) EmitBackfill(ctx context.Context, payload BackfillPayload) (int64, bool, error) {
	id, inserted, err := e.queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:      KindClusterBackfill,
		Payload:   payload,
		DedupeKey: KindClusterBackfill,
	})
	if err != nil {
		return 0, false, fmt.Errorf("emitting backfill: %w", err)
	}
	return id, inserted, nil
}
