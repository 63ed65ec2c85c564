package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/models"
)

func testCluster(id int64, headline string, tweetCount int, firstSeen time.Time) *models.Cluster {
	return &models.Cluster{
		ID:                 id,
		NormalizedHeadline: &headline,
		TweetCount:         tweetCount,
		FirstSeenAt:        firstSeen,
		IsActive:           true,
	}
}

func TestCandidateGroupsDirect(t *testing.T) {
	clusters := []*models.Cluster{
		testCluster(1, "Exchange X lists TOKEN", 5, time.Now()),
		testCluster(2, "Regulator fines Bank Y", 3, time.Now()),
	}

	groups := candidateGroups(clusters, 100)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestCandidateGroupsIndexed(t *testing.T) {
	now := time.Now()
	clusters := []*models.Cluster{
		testCluster(1, "Exchange X lists TOKEN for spot trading", 5, now),
		testCluster(2, "TOKEN spot trading live on Exchange X", 4, now),
		testCluster(3, "Regulator fines Bank Y over disclosures", 3, now),
		testCluster(4, "Protocol Z ships mainnet upgrade", 2, now),
	}

	// directLimit below len forces the inverted-index path.
	groups := candidateGroups(clusters, 2)
	require.Len(t, groups, 1)

	var ids []int64
	for _, cl := range groups[0] {
		ids = append(ids, cl.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestCandidateGroupsOneSharedTokenNotEnough(t *testing.T) {
	now := time.Now()
	clusters := []*models.Cluster{
		testCluster(1, "Exchange lists TOKEN", 5, now),
		testCluster(2, "Exchange outage resolved", 4, now),
		testCluster(3, "Protocol ships upgrade", 2, now),
	}

	groups := candidateGroups(clusters, 2)
	assert.Empty(t, groups)
}

func TestBatchGroupsPacking(t *testing.T) {
	now := time.Now()
	small := []*models.Cluster{
		testCluster(1, "headline one", 1, now),
		testCluster(2, "headline two", 1, now),
	}
	big := []*models.Cluster{
		testCluster(3, string(make([]byte, 200)), 1, now),
		testCluster(4, string(make([]byte, 200)), 1, now),
	}

	batches := batchGroups([][]*models.Cluster{small, big}, 100)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
}

func TestBatchGroupsNeverSplitsAGroup(t *testing.T) {
	now := time.Now()
	group := []*models.Cluster{
		testCluster(1, string(make([]byte, 300)), 1, now),
		testCluster(2, string(make([]byte, 300)), 1, now),
	}

	// The group alone exceeds the budget but must still go out whole.
	batches := batchGroups([][]*models.Cluster{group}, 100)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestPickMergeTarget(t *testing.T) {
	early := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(15 * time.Minute)

	tests := []struct {
		name     string
		clusters []*models.Cluster
		wantID   int64
	}{
		{
			name: "larger count wins",
			clusters: []*models.Cluster{
				testCluster(10, "a", 9, early),
				testCluster(11, "b", 12, late),
			},
			wantID: 11,
		},
		{
			name: "earlier first seen breaks count tie",
			clusters: []*models.Cluster{
				testCluster(10, "a", 9, late),
				testCluster(11, "b", 9, early),
			},
			wantID: 11,
		},
		{
			name: "lower id is final tiebreaker",
			clusters: []*models.Cluster{
				testCluster(12, "a", 9, early),
				testCluster(11, "b", 9, early),
			},
			wantID: 11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantID, pickMergeTarget(tt.clusters).ID)
		})
	}
}
