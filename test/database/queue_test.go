package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/jobs"
	"github.com/tideline/tideline/pkg/models"
)

func newTestQueue(t *testing.T) (*jobs.Queue, *SharedTestDB) {
	t.Helper()
	shared := NewSharedTestDB(t)
	client := shared.NewClient(t)
	return jobs.NewQueue(client.Pool(), config.DefaultQueueConfig()), shared
}

func TestQueueEnqueueAndClaim(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	earlier := time.Now().Add(-time.Minute)
	firstID, inserted, err := queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:  "post.preprocess",
		RunAt: earlier,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	_, inserted, err = queue.Enqueue(ctx, jobs.EnqueueRequest{Kind: "post.preprocess"})
	require.NoError(t, err)
	require.True(t, inserted)

	// Oldest run_at wins.
	job, err := queue.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)
	assert.Equal(t, firstID, job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.ClaimedBy)
	assert.Equal(t, "pod-a-w0", *job.ClaimedBy)
	require.NotNil(t, job.HeartbeatAt)

	require.NoError(t, queue.Complete(ctx, job.ID))
	got, err := queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestQueueClaimEmpty(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	_, err := queue.Claim(ctx, "pod-a-w0")
	assert.ErrorIs(t, err, jobs.ErrNoJobsAvailable)
}

func TestQueueDeferredJobNotClaimable(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	_, inserted, err := queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:  "cluster.review",
		RunAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	_, err = queue.Claim(ctx, "pod-a-w0")
	assert.ErrorIs(t, err, jobs.ErrNoJobsAvailable)
}

func TestQueueDedupeKey(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	id, inserted, err := queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:      "cluster.sync",
		DedupeKey: "cluster.sync:2026-08-25T10:00:00Z",
	})
	require.NoError(t, err)
	require.True(t, inserted)

	// Same key while the first is live: suppressed.
	_, inserted, err = queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:      "cluster.sync",
		DedupeKey: "cluster.sync:2026-08-25T10:00:00Z",
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	// Terminal jobs never block a re-enqueue.
	job, err := queue.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.NoError(t, queue.Complete(ctx, job.ID))

	_, inserted, err = queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:      "cluster.sync",
		DedupeKey: "cluster.sync:2026-08-25T10:00:00Z",
	})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestQueueKindCapAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	shared := NewSharedTestDB(t)
	podA := jobs.NewQueue(shared.NewClient(t).Pool(), config.DefaultQueueConfig())
	podB := jobs.NewQueue(shared.NewClient(t).Pool(), config.DefaultQueueConfig())

	for i := 0; i < 2; i++ {
		_, inserted, err := podA.Enqueue(ctx, jobs.EnqueueRequest{Kind: "cluster.sync"})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// cluster.sync is capped at 1 across all pods.
	running, err := podA.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)
	assert.Equal(t, "cluster.sync", running.Kind)

	_, err = podB.Claim(ctx, "pod-b-w0")
	assert.ErrorIs(t, err, jobs.ErrAtCapacity)

	// An uncapped pending kind is still claimable while sync is capped.
	_, inserted, err := podB.Enqueue(ctx, jobs.EnqueueRequest{Kind: "story.rescore"})
	require.NoError(t, err)
	require.True(t, inserted)

	other, err := podB.Claim(ctx, "pod-b-w0")
	require.NoError(t, err)
	assert.Equal(t, "story.rescore", other.Kind)

	// Completing the running sync frees the cap for the second one.
	require.NoError(t, podA.Complete(ctx, running.ID))
	second, err := podB.Claim(ctx, "pod-b-w1")
	require.NoError(t, err)
	assert.Equal(t, "cluster.sync", second.Kind)
}

func TestQueueFailRetriesThenTerminal(t *testing.T) {
	ctx := context.Background()
	shared := NewSharedTestDB(t)
	client := shared.NewClient(t)
	queue := jobs.NewQueue(client.Pool(), config.DefaultQueueConfig())

	id, _, err := queue.Enqueue(ctx, jobs.EnqueueRequest{
		Kind:        "post.preprocess",
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	job, err := queue.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.NoError(t, queue.Fail(ctx, job, assert.AnError))

	// First failure re-queues with backoff.
	got, err := queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.True(t, got.RunAt.After(time.Now()), "retry should be deferred")
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, assert.AnError.Error())
	assert.Nil(t, got.ClaimedBy)

	// Pull the retry forward so it can be claimed now.
	_, err = client.Pool().Exec(ctx, `UPDATE jobs SET run_at = now() WHERE id = $1`, id)
	require.NoError(t, err)

	job, err = queue.Claim(ctx, "pod-a-w1")
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)

	// Second failure exhausts the attempt cap.
	require.NoError(t, queue.Fail(ctx, job, assert.AnError))
	got, err = queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestQueueHeartbeat(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	_, _, err := queue.Enqueue(ctx, jobs.EnqueueRequest{Kind: "cluster.curate"})
	require.NoError(t, err)
	job, err := queue.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)
	before := *job.HeartbeatAt

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, queue.Heartbeat(ctx, job.ID))

	got, err := queue.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.HeartbeatAt)
	assert.True(t, got.HeartbeatAt.After(before))
}

func TestQueueDepth(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	for i := 0; i < 3; i++ {
		_, _, err := queue.Enqueue(ctx, jobs.EnqueueRequest{Kind: "post.preprocess"})
		require.NoError(t, err)
	}
	_, err := queue.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)

	pending, running, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
	assert.Equal(t, 1, running)
}

func TestRunStepMemoization(t *testing.T) {
	ctx := context.Background()
	queue, _ := newTestQueue(t)

	_, _, err := queue.Enqueue(ctx, jobs.EnqueueRequest{Kind: "post.preprocess"})
	require.NoError(t, err)
	job, err := queue.Claim(ctx, "pod-a-w0")
	require.NoError(t, err)

	calls := 0
	step := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	got, err := jobs.RunStep(ctx, queue, job.ID, "normalize", step)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)

	// A retried delivery replays the stored result without re-executing.
	got, err = jobs.RunStep(ctx, queue, job.ID, "normalize", step)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)

	// A different step name runs independently.
	_, err = jobs.RunStep(ctx, queue, job.ID, "embed", step)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	reloaded, err := queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Steps, 2)
	assert.JSONEq(t, "42", string(reloaded.Steps["normalize"]))
}
