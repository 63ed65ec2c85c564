package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/jobs"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// embeddedPost inserts a normalized, embedded original post ready for the
// clustering window.
func embeddedPost(t *testing.T, posts *store.PostStore, tweetID, author string, createdAt time.Time, embedding []float32) {
	t.Helper()
	ctx := context.Background()

	p := testPost(tweetID, createdAt)
	p.AuthorHandle = author
	p.LikeCount = 10
	_, err := posts.UpsertBatch(ctx, []*models.Post{p})
	require.NoError(t, err)
	require.NoError(t, posts.SetNormalized(ctx, tweetID,
		"Exchange lists TOKEN for spot trading", []string{"spot pair opens monday"}))
	require.NoError(t, posts.SetEmbedding(ctx, tweetID, embedding))
}

func unitVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func TestClusterSyncScenario(t *testing.T) {
	ctx := context.Background()
	client := NewTestClient(t)

	cfg := config.DefaultClusterConfig()
	posts := store.NewPostStore(client.Pool())
	clusters := store.NewClusterStore(client.Pool())
	runs := store.NewRunStore(client.Pool())
	queue := jobs.NewQueue(client.Pool(), config.DefaultQueueConfig())
	emitter := events.NewEmitter(queue)

	recomputer := cluster.NewRecomputer(posts, clusters, cluster.NewHeuristicFilter(), cfg, nil)
	syncer := cluster.NewSyncer(clusters, runs, recomputer, emitter, cfg)

	// Three posts from two authors share an embedding; the outlier is
	// orthogonal and alone, so it never forms a component.
	now := time.Now().UTC()
	story := unitVector(0)
	embeddedPost(t, posts, "t1", "alice", now.Add(-30*time.Minute), story)
	embeddedPost(t, posts, "t2", "alice", now.Add(-20*time.Minute), story)
	embeddedPost(t, posts, "t3", "bob", now.Add(-10*time.Minute), story)
	embeddedPost(t, posts, "t4", "carol", now.Add(-5*time.Minute), unitVector(1))

	require.NoError(t, syncer.HandleSync(ctx, &models.Job{}))

	active, err := clusters.ActiveUnmerged(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)

	created := active[0]
	assert.Equal(t, 3, created.TweetCount)
	assert.Equal(t, 2, created.UniqueUserCount)
	assert.Equal(t, "Exchange lists TOKEN for spot trading", created.Headline())
	assert.True(t, created.IsStoryCandidate)
	assert.NotNil(t, created.LastSyncedAt)

	members, err := clusters.MemberIDs(ctx, created.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, members)

	// New clusters go to review.
	var reviewJobs int
	err = client.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE kind = $1`, events.KindClusterReview).Scan(&reviewJobs)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewJobs)

	recent, err := runs.Recent(ctx, cluster.FunctionClusterSync, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.RunStateCompleted, recent[0].State)

	// A second sync with two more same-story posts folds them into the
	// existing cluster instead of creating a new one.
	embeddedPost(t, posts, "t5", "bob", now.Add(-2*time.Minute), story)
	embeddedPost(t, posts, "t6", "dave", now.Add(-time.Minute), story)

	require.NoError(t, syncer.HandleSync(ctx, &models.Job{}))

	active, err = clusters.ActiveUnmerged(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, created.ID, active[0].ID)
	assert.Equal(t, 5, active[0].TweetCount)
	assert.Equal(t, 3, active[0].UniqueUserCount)

	members, err = clusters.MemberIDs(ctx, created.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3", "t5", "t6"}, members)
}
