package models

import "time"

// Cluster is a long-lived story grouping maintained by the sync and curate
// workers. A non-nil MergedIntoClusterID implies IsActive = false and always
// points at a cluster that has itself not been merged away (single hop).
type Cluster struct {
	ID                  int64      `json:"id"`
	FirstSeenAt         time.Time  `json:"first_seen_at"`
	LastSeenAt          time.Time  `json:"last_seen_at"`
	NormalizedHeadline  *string    `json:"normalized_headline,omitempty"`
	NormalizedFacts     []string   `json:"normalized_facts,omitempty"`
	TweetCount          int        `json:"tweet_count"`
	UniqueUserCount     int        `json:"unique_user_count"`
	IsStoryCandidate    bool       `json:"is_story_candidate"`
	IsActive            bool       `json:"is_active"`
	MergedIntoClusterID *int64     `json:"merged_into_cluster_id,omitempty"`
	Centroid            []float32  `json:"-"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	ReviewedAt          *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Headline returns the cluster headline or an empty string when unset.
func (c *Cluster) Headline() string {
	if c.NormalizedHeadline == nil {
		return ""
	}
	return *c.NormalizedHeadline
}

// ClusterMember assigns one post to exactly one cluster. The post id is the
// primary key, so a post can never belong to two clusters at once.
type ClusterMember struct {
	TweetID   string    `json:"tweet_id"`
	ClusterID int64     `json:"cluster_id"`
	AddedAt   time.Time `json:"added_at"`
}

// ClusterMerge is an append-only record of one directional merge.
type ClusterMerge struct {
	ID              int64     `json:"id"`
	SourceClusterID int64     `json:"source_cluster_id"`
	TargetClusterID int64     `json:"target_cluster_id"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClusterStats is the recomputed aggregate snapshot of a cluster after a
// membership change.
type ClusterStats struct {
	TweetCount      int
	UniqueUserCount int
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	// HeadlineTweetID is the member with the strongest engagement among
	// those carrying a normalized headline; empty when no member has one.
	HeadlineTweetID    string
	NormalizedHeadline *string
	NormalizedFacts    []string
}
