package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
	"github.com/tideline/tideline/pkg/vectormath"
)

// Recomputer rebuilds a cluster's aggregate stats from its current members
// after any membership change. Blocked accounts never count toward size,
// unique users, or candidacy.
type Recomputer struct {
	posts    *store.PostStore
	clusters *store.ClusterStore
	filter   Filter
	cfg      *config.ClusterConfig
	blocked  map[string]bool
}

// NewRecomputer creates a recomputer. blockedAccounts come from the ingest
// configuration.
func NewRecomputer(posts *store.PostStore, clusters *store.ClusterStore, filter Filter, cfg *config.ClusterConfig, blockedAccounts []string) *Recomputer {
	blocked := make(map[string]bool, len(blockedAccounts))
	for _, h := range blockedAccounts {
		blocked[strings.ToLower(strings.TrimPrefix(h, "@"))] = true
	}
	return &Recomputer{posts: posts, clusters: clusters, filter: filter, cfg: cfg, blocked: blocked}
}

// Recompute reloads the cluster's members and persists fresh stats. A
// cluster with zero non-blocked members goes inactive.
func (r *Recomputer) Recompute(ctx context.Context, clusterID int64) error {
	members, err := r.clusters.MemberPosts(ctx, clusterID, 0)
	if err != nil {
		return fmt.Errorf("loading members of cluster %d: %w", clusterID, err)
	}

	visible := make([]*models.Post, 0, len(members))
	for _, p := range members {
		if !r.blocked[strings.ToLower(p.AuthorHandle)] {
			visible = append(visible, p)
		}
	}

	if len(visible) == 0 {
		cluster, err := r.clusters.Get(ctx, clusterID)
		if err != nil {
			return err
		}
		stats := models.ClusterStats{
			FirstSeenAt:        cluster.FirstSeenAt,
			LastSeenAt:         cluster.LastSeenAt,
			NormalizedHeadline: cluster.NormalizedHeadline,
			NormalizedFacts:    cluster.NormalizedFacts,
		}
		return r.clusters.UpdateStats(ctx, clusterID, stats, false, false, nil)
	}

	stats := buildStats(visible)
	candidate := r.isCandidate(visible, stats)
	centroid := memberCentroid(visible)

	return r.clusters.UpdateStats(ctx, clusterID, stats, candidate, true, centroid)
}

// buildStats derives the aggregate snapshot from non-blocked members: the
// headline comes from the strongest-engagement member that carries one.
func buildStats(members []*models.Post) models.ClusterStats {
	stats := models.ClusterStats{
		TweetCount:  len(members),
		FirstSeenAt: members[0].TweetCreatedAt,
		LastSeenAt:  members[0].TweetCreatedAt,
	}

	users := make(map[string]bool)
	var headlineOwner *models.Post
	for _, p := range members {
		users[strings.ToLower(p.AuthorHandle)] = true
		if p.TweetCreatedAt.Before(stats.FirstSeenAt) {
			stats.FirstSeenAt = p.TweetCreatedAt
		}
		if p.TweetCreatedAt.After(stats.LastSeenAt) {
			stats.LastSeenAt = p.TweetCreatedAt
		}
		if p.NormalizedHeadline == nil || *p.NormalizedHeadline == "" {
			continue
		}
		if headlineOwner == nil || p.Engagement() > headlineOwner.Engagement() {
			headlineOwner = p
		}
	}
	stats.UniqueUserCount = len(users)

	if headlineOwner != nil {
		stats.HeadlineTweetID = headlineOwner.TweetID
		stats.NormalizedHeadline = headlineOwner.NormalizedHeadline
		stats.NormalizedFacts = headlineOwner.NormalizedFacts
	}
	return stats
}

// isCandidate applies the story-candidacy rule: size thresholds plus the
// promo/spam and low-information filters.
func (r *Recomputer) isCandidate(members []*models.Post, stats models.ClusterStats) bool {
	if stats.TweetCount < r.cfg.MinTweets || stats.UniqueUserCount < r.cfg.MinUsers {
		return false
	}

	content := Content{Facts: stats.NormalizedFacts}
	if stats.NormalizedHeadline != nil {
		content.Headline = *stats.NormalizedHeadline
	}
	for _, p := range members {
		content.MemberTexts = append(content.MemberTexts, p.FullText)
		content.AuthorHandles = append(content.AuthorHandles, p.AuthorHandle)
	}

	return !r.filter.IsPromoSpam(content) && !r.filter.IsLowInformation(content)
}

// memberCentroid averages the members' embeddings; members without an
// embedding are skipped.
func memberCentroid(members []*models.Post) []float32 {
	var vectors [][]float32
	for _, p := range members {
		if len(p.HeadlineEmbedding) > 0 {
			vectors = append(vectors, p.HeadlineEmbedding)
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	return vectormath.Mean(vectors)
}
