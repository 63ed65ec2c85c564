package models

import "time"

// StoryView is one row of the story read model consumed by the feed API.
type StoryView struct {
	ClusterID          int64          `json:"cluster_id"`
	Headline           string         `json:"headline"`
	Facts              []string       `json:"facts,omitempty"`
	TweetCount         int            `json:"tweet_count"`
	UniqueUserCount    int            `json:"unique_user_count"`
	FirstSeenAt        time.Time      `json:"first_seen_at"`
	LastSeenAt         time.Time      `json:"last_seen_at"`
	TotalEngagement    float64        `json:"total_engagement"`
	Feedback           FeedbackCounts `json:"feedback"`
	IsStoryCandidate   bool           `json:"is_story_candidate"`
	Score              float64        `json:"score"`
	SampleTweetIDs     []string       `json:"sample_tweet_ids,omitempty"`
	SampleAuthorHandles []string      `json:"sample_author_handles,omitempty"`
}

// ClusterDetail is the full cluster view: the cluster row, its current
// members, and the merge trail that folded other clusters into it.
type ClusterDetail struct {
	Cluster  *Cluster       `json:"cluster"`
	Members  []*Post        `json:"members"`
	MergedIn []ClusterMerge `json:"merged_in,omitempty"`
	Feedback FeedbackCounts `json:"feedback"`
}
