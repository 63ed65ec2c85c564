package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

func testPost(tweetID string, createdAt time.Time) *models.Post {
	return &models.Post{
		TweetID:          tweetID,
		CanonicalTweetID: tweetID,
		IsLatestVersion:  true,
		AuthorHandle:     "newsdesk",
		TweetCreatedAt:   createdAt,
		FullText:         "Exchange lists TOKEN for spot trading",
	}
}

func TestPostStoreUpsertBatch(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	posts := store.NewPostStore(client.Pool())

	now := time.Now().UTC().Truncate(time.Second)
	inserted, err := posts.UpsertBatch(ctx, []*models.Post{
		testPost("t1", now),
		testPost("t2", now),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, inserted)

	// Duplicates are ignored; only first-inserts come back.
	inserted, err = posts.UpsertBatch(ctx, []*models.Post{
		testPost("t2", now),
		testPost("t3", now),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, inserted)

	got, err := posts.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "newsdesk", got.AuthorHandle)
	assert.True(t, got.IsLatestVersion)
	assert.True(t, got.TweetCreatedAt.Equal(now))

	_, err = posts.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostStoreNormalizeAndEmbed(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	posts := store.NewPostStore(client.Pool())

	now := time.Now().UTC()
	reply := testPost("t-reply", now)
	reply.IsReply = true
	_, err := posts.UpsertBatch(ctx, []*models.Post{
		testPost("t1", now),
		testPost("t2", now.Add(-time.Minute)),
		reply,
	})
	require.NoError(t, err)

	require.NoError(t, posts.SetNormalized(ctx, "t1", "Exchange lists TOKEN", []string{"spot pair live"}))

	since := now.Add(-time.Hour)
	normalized, err := posts.RecentNormalized(ctx, since, 100)
	require.NoError(t, err)
	require.Len(t, normalized, 1)
	assert.Equal(t, "t1", normalized[0].TweetID)
	require.NotNil(t, normalized[0].NormalizedHeadline)
	assert.Equal(t, "Exchange lists TOKEN", *normalized[0].NormalizedHeadline)
	assert.Equal(t, []string{"spot pair live"}, normalized[0].NormalizedFacts)
	assert.NotNil(t, normalized[0].NormalizedAt)

	// t1 embedded, t2 still a candidate, the reply never is.
	embedding := make([]float32, 1536)
	embedding[0] = 1
	require.NoError(t, posts.SetEmbedding(ctx, "t1", embedding))

	candidates, err := posts.BackfillCandidates(ctx, since, 100, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, candidates)

	all, err := posts.BackfillCandidates(ctx, since, 100, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t2", "t-reply"}, all)

	embedded, err := posts.RecentEmbedded(ctx, since, 100)
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, "t1", embedded[0].TweetID)
	require.Len(t, embedded[0].HeadlineEmbedding, 1536)
	assert.InDelta(t, 1.0, embedded[0].HeadlineEmbedding[0], 1e-6)
}

func TestPostStoreURLLifecycle(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	posts := store.NewPostStore(client.Pool())

	now := time.Now().UTC()
	_, err := posts.UpsertBatch(ctx, []*models.Post{testPost("t1", now)})
	require.NoError(t, err)

	require.NoError(t, posts.UpsertURLs(ctx, "t1", []string{"https://example.com/a", "https://example.com/b"}))
	require.NoError(t, posts.UpsertURLs(ctx, "t1", []string{"https://example.com/a"})) // idempotent

	pending, err := posts.PendingURLs(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, posts.SetURLContent(ctx, pending[0].ID, "article body", nil))
	pending, err = posts.PendingURLs(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	contexts, err := posts.URLContexts(ctx, "t1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"article body"}, contexts)
}

func TestClusterStoreMembership(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	posts := store.NewPostStore(client.Pool())
	clusters := store.NewClusterStore(client.Pool())

	now := time.Now().UTC()
	_, err := posts.UpsertBatch(ctx, []*models.Post{
		testPost("t1", now), testPost("t2", now), testPost("t3", now),
	})
	require.NoError(t, err)

	first, err := clusters.Create(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	second, err := clusters.Create(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)

	added, err := clusters.AddMembersIfUnassigned(ctx, first, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// Prior assignment is preserved: t2 stays where it is.
	added, err = clusters.AddMembersIfUnassigned(ctx, second, []string{"t2", "t3"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	assignments, err := clusters.AssignmentsFor(ctx, []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"t1": first, "t2": first, "t3": second}, assignments)

	members, err := clusters.MemberIDs(ctx, first)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, members)
}

func TestClusterStoreMergeGuard(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	posts := store.NewPostStore(client.Pool())
	clusters := store.NewClusterStore(client.Pool())

	now := time.Now().UTC()
	_, err := posts.UpsertBatch(ctx, []*models.Post{testPost("t1", now)})
	require.NoError(t, err)

	source, err := clusters.Create(ctx, now, now)
	require.NoError(t, err)
	target, err := clusters.Create(ctx, now, now)
	require.NoError(t, err)
	_, err = clusters.AddMembersIfUnassigned(ctx, source, []string{"t1"})
	require.NoError(t, err)

	ok, err := clusters.MarkMerged(ctx, source, target)
	require.NoError(t, err)
	assert.True(t, ok)

	// The compare-and-set makes a second merge of the same source a no-op.
	ok, err = clusters.MarkMerged(ctx, source, target)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = clusters.GetUnmerged(ctx, source)
	assert.ErrorIs(t, err, store.ErrAlreadyMerged)

	moved, err := clusters.MoveMembers(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	require.NoError(t, clusters.AppendMerge(ctx, source, target, "duplicate headline"))
	merges, err := clusters.MergesInto(ctx, target)
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, source, merges[0].SourceClusterID)
	assert.Equal(t, "duplicate headline", merges[0].Reason)
}

func TestClusterMergeInterruptedAfterMove(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	posts := store.NewPostStore(client.Pool())
	clusters := store.NewClusterStore(client.Pool())

	now := time.Now().UTC()
	_, err := posts.UpsertBatch(ctx, []*models.Post{
		testPost("t1", now), testPost("t2", now),
	})
	require.NoError(t, err)

	source, err := clusters.Create(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	target, err := clusters.Create(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	_, err = clusters.AddMembersIfUnassigned(ctx, source, []string{"t1", "t2"})
	require.NoError(t, err)

	// A merge that moves members and then dies before marking the source
	// must leave the source reloadable so the next pass can finish it.
	moved, err := clusters.MoveMembers(ctx, source, target)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	_, err = clusters.GetUnmerged(ctx, source)
	assert.NoError(t, err)

	active, err := clusters.ActiveUnmerged(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	ids := make([]int64, 0, len(active))
	for _, cl := range active {
		ids = append(ids, cl.ID)
	}
	assert.Contains(t, ids, source)

	// The members are already safe at the target.
	assignments, err := clusters.AssignmentsFor(ctx, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"t1": target, "t2": target}, assignments)

	// Finishing the merge hides the source; no member ever points at it.
	ok, err := clusters.MarkMerged(ctx, source, target)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := clusters.MemberIDs(ctx, source)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestClusterStoreDeactivateStale(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	clusters := store.NewClusterStore(client.Pool())

	now := time.Now().UTC()
	stale, err := clusters.Create(ctx, now.Add(-48*time.Hour), now.Add(-40*time.Hour))
	require.NoError(t, err)
	fresh, err := clusters.Create(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)

	// Age the stale cluster's sync stamp past the cutoff.
	_, err = client.Pool().Exec(ctx,
		`UPDATE clusters SET last_synced_at = now() - interval '40 hours' WHERE id = $1`, stale)
	require.NoError(t, err)

	n, err := clusters.DeactivateStale(ctx, now.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := clusters.Get(ctx, stale)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = clusters.Get(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestClusterStoreUpdateStats(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	clusters := store.NewClusterStore(client.Pool())

	now := time.Now().UTC().Truncate(time.Second)
	id, err := clusters.Create(ctx, now.Add(-time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)

	headline := "Exchange lists TOKEN"
	centroid := make([]float32, 1536)
	centroid[3] = 0.5
	err = clusters.UpdateStats(ctx, id, models.ClusterStats{
		TweetCount:         6,
		UniqueUserCount:    4,
		LastSeenAt:         now,
		NormalizedHeadline: &headline,
		NormalizedFacts:    []string{"spot pair live"},
	}, true, true, centroid)
	require.NoError(t, err)

	got, err := clusters.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 6, got.TweetCount)
	assert.Equal(t, 4, got.UniqueUserCount)
	assert.Equal(t, headline, got.Headline())
	assert.Equal(t, []string{"spot pair live"}, got.NormalizedFacts)
	assert.True(t, got.IsStoryCandidate)
	assert.True(t, got.LastSeenAt.Equal(now))
	assert.NotNil(t, got.LastSyncedAt)
}

func TestFeedbackStoreCounts(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	clusters := store.NewClusterStore(client.Pool())
	feedback := store.NewFeedbackStore(client.Pool())

	now := time.Now().UTC()
	id, err := clusters.Create(ctx, now, now)
	require.NoError(t, err)

	by := "reader-1"
	_, err = feedback.Insert(ctx, id, models.FeedbackUseful, &by)
	require.NoError(t, err)
	_, err = feedback.Insert(ctx, id, models.FeedbackNoise, nil)
	require.NoError(t, err)
	_, err = feedback.Insert(ctx, id, models.FeedbackNoise, nil)
	require.NoError(t, err)
	_, err = feedback.Insert(ctx, id, models.FeedbackBadCluster, nil)
	require.NoError(t, err)

	counts, err := feedback.Counts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Useful)
	assert.Equal(t, 2, counts.Noise)
	assert.Equal(t, 1, counts.BadCluster)
	assert.Equal(t, 2.0, counts.Penalty())
}

func TestRunStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)
	runs := store.NewRunStore(client.Pool())

	runID := runs.Start(ctx, "cluster-sync")
	require.NotEmpty(t, runID)
	runs.Finish(ctx, runID, models.RunStateCompleted, map[string]any{"clusters": 3}, nil)

	failedID := runs.Start(ctx, "cluster-sync")
	runs.Finish(ctx, failedID, models.RunStateFailed, nil, assert.AnError)

	recent, err := runs.Recent(ctx, "cluster-sync", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, failedID, recent[0].ID)
	assert.Equal(t, models.RunStateFailed, recent[0].State)
	require.NotNil(t, recent[0].ErrorMessage)
	assert.Equal(t, models.RunStateCompleted, recent[1].State)
	assert.NotNil(t, recent[1].FinishedAt)
}
