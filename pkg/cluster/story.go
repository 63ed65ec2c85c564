package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// Score ranks one cluster for the story feed. Freshness decays with an
// 18-hour half-life-ish constant; volume and engagement contribute
// logarithmically; net negative feedback penalizes.
func Score(tweetCount, uniqueUserCount int, lastSeenAt time.Time, totalEngagement float64, feedback models.FeedbackCounts, now time.Time) float64 {
	hours := now.Sub(lastSeenAt).Hours()
	if hours < 0 {
		hours = 0
	}
	freshness := math.Exp(-hours / 18)

	users := uniqueUserCount
	if users < 1 {
		users = 1
	}
	volume := math.Log(1 + float64(tweetCount)*float64(users))
	engagement := math.Log(1 + totalEngagement)

	return 120*freshness + 18*volume + 3*engagement - 8*feedback.Penalty()
}

// StoryQuery bounds one feed read.
type StoryQuery struct {
	Hours          int
	OnlyCandidates bool
	Limit          int
}

// StoryReader builds the ranked story feed.
type StoryReader struct {
	clusters *store.ClusterStore
	cfg      *config.StoryConfig
}

// NewStoryReader creates a story reader.
func NewStoryReader(clusters *store.ClusterStore, cfg *config.StoryConfig) *StoryReader {
	return &StoryReader{clusters: clusters, cfg: cfg}
}

// Stories returns the scored, ranked feed. Ties break toward higher tweet
// count, then higher unique-user count, then newer last_seen_at.
func (r *StoryReader) Stories(ctx context.Context, q StoryQuery) ([]models.StoryView, error) {
	hours := q.Hours
	if hours <= 0 {
		hours = r.cfg.DefaultLookbackHours
	}
	limit := q.Limit
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	if limit > r.cfg.MaxLimit {
		limit = r.cfg.MaxLimit
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := r.clusters.StoryRows(ctx, since, q.OnlyCandidates)
	if err != nil {
		return nil, fmt.Errorf("loading story rows: %w", err)
	}

	now := time.Now()
	stories := make([]models.StoryView, 0, len(rows))
	for _, row := range rows {
		stories = append(stories, models.StoryView{
			ClusterID:           row.Cluster.ID,
			Headline:            row.Cluster.Headline(),
			Facts:               row.Cluster.NormalizedFacts,
			TweetCount:          row.Cluster.TweetCount,
			UniqueUserCount:     row.Cluster.UniqueUserCount,
			FirstSeenAt:         row.Cluster.FirstSeenAt,
			LastSeenAt:          row.Cluster.LastSeenAt,
			TotalEngagement:     row.TotalEngagement,
			Feedback:            row.Feedback,
			IsStoryCandidate:    row.Cluster.IsStoryCandidate,
			Score:               Score(row.Cluster.TweetCount, row.Cluster.UniqueUserCount, row.Cluster.LastSeenAt, row.TotalEngagement, row.Feedback, now),
			SampleTweetIDs:      row.SampleTweetIDs,
			SampleAuthorHandles: row.SampleHandles,
		})
	}

	sort.SliceStable(stories, func(i, j int) bool {
		a, b := stories[i], stories[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TweetCount != b.TweetCount {
			return a.TweetCount > b.TweetCount
		}
		if a.UniqueUserCount != b.UniqueUserCount {
			return a.UniqueUserCount > b.UniqueUserCount
		}
		return a.LastSeenAt.After(b.LastSeenAt)
	})

	if len(stories) > limit {
		stories = stories[:limit]
	}
	return stories, nil
}
