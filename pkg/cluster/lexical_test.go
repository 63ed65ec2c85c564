package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/models"
)

func lexPost(id, headline string, createdAt time.Time, embedding []float32) *models.Post {
	p := &models.Post{
		TweetID:           id,
		TweetCreatedAt:    createdAt,
		HeadlineEmbedding: embedding,
	}
	if headline != "" {
		p.NormalizedHeadline = &headline
	}
	return p
}

func TestLexicalClusters(t *testing.T) {
	now := time.Now()
	posts := []*models.Post{
		lexPost("t1", "Exchange X lists TOKEN for spot trading", now, nil),
		lexPost("t2", "Exchange X lists TOKEN spot trading pairs", now, nil),
		lexPost("t3", "Regulator fines Bank Y over disclosures", now, nil),
		lexPost("t4", "", now, nil),
	}

	groups := LexicalClusters(posts, 0.5, 2)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"t1", "t2"}, groups[0].TweetIDs)
}

func TestLexicalClustersThresholdExcludes(t *testing.T) {
	now := time.Now()
	posts := []*models.Post{
		lexPost("t1", "Exchange X lists TOKEN", now, nil),
		lexPost("t2", "Exchange outage resolved after repairs", now, nil),
	}

	groups := LexicalClusters(posts, 0.5, 2)
	assert.Empty(t, groups)
}

func TestEmbeddingClusters(t *testing.T) {
	now := time.Now()
	posts := []*models.Post{
		lexPost("t1", "", now, []float32{1, 0, 0}),
		lexPost("t2", "", now, []float32{0.99, 0.1, 0}),
		lexPost("t3", "", now, []float32{0, 1, 0}),
		lexPost("t4", "", now, nil),
	}

	groups := EmbeddingClusters(posts, 0.9, 2, 3)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"t1", "t2"}, groups[0].TweetIDs)
}

func TestEmbeddingClustersSpanFilter(t *testing.T) {
	now := time.Now()
	posts := []*models.Post{
		lexPost("t1", "", now.Add(-5*24*time.Hour), []float32{1, 0}),
		lexPost("t2", "", now, []float32{1, 0}),
	}

	groups := EmbeddingClusters(posts, 0.9, 2, 3)
	assert.Empty(t, groups)
}

func TestEmbeddingClustersTransitiveClosure(t *testing.T) {
	now := time.Now()
	// t1~t2 and t2~t3 link, t1~t3 alone would not.
	posts := []*models.Post{
		lexPost("t1", "", now, []float32{1, 0}),
		lexPost("t2", "", now, []float32{0.9, 0.43589}),
		lexPost("t3", "", now, []float32{0.62, 0.78459}),
	}

	groups := EmbeddingClusters(posts, 0.89, 2, 3)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].TweetIDs, 3)
}
