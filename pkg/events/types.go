// Package events defines the pipeline's job kinds and their payloads, and
// the Emitter that turns domain occurrences into queued jobs. Delivery is
// at-least-once via the jobs table; consumers must tolerate duplicates.
package events

// Job kinds processed by the worker pool.
const (
	// KindIngestAccounts pulls recent posts from the tracked account list.
	KindIngestAccounts = "ingest.accounts"

	// KindIngestKeywords pulls recent posts matching the keyword query.
	KindIngestKeywords = "ingest.keywords"

	// KindPostPreprocess runs the enrich → normalize → embed chain for one
	// post. Emitted once per inserted post and once per canonical post left
	// unnormalized by an earlier failed run.
	KindPostPreprocess = "post.preprocess"

	// KindClusterSync recomputes embedding components over the active
	// window and reconciles them into persistent clusters.
	KindClusterSync = "cluster.sync"

	// KindClusterCurate merges near-duplicate active clusters.
	KindClusterCurate = "cluster.curate"

	// KindClusterReview re-validates one cluster's membership with the
	// chat model. Emitted by sync for new or substantially grown clusters.
	KindClusterReview = "cluster.review"

	// KindClusterBackfill re-embeds posts whose headline predates the
	// current embedding configuration.
	KindClusterBackfill = "cluster.backfill"
)

// Preprocess emission reasons.
const (
	// ReasonIngested marks a post freshly inserted by an ingest run.
	ReasonIngested = "ingested"

	// ReasonRetry marks a canonical post swept up by the unnormalized
	// backstop at the end of an ingest run.
	ReasonRetry = "retry"

	// ReasonBackfill marks a post re-emitted by a backfill run; the
	// preprocess chain re-normalizes and re-embeds it.
	ReasonBackfill = "backfill"
)

// PreprocessPayload is the payload for post.preprocess jobs.
type PreprocessPayload struct {
	PostID string `json:"post_id"` // tweet id
	Reason string `json:"reason"`  // ingested, retry, or backfill
}

// ReviewPayload is the payload for cluster.review jobs.
type ReviewPayload struct {
	ClusterID int64 `json:"cluster_id"`
}

// BackfillPayload is the payload for cluster.backfill jobs.
type BackfillPayload struct {
	// Limit caps the number of posts re-embedded in one run.
	Limit int `json:"limit,omitempty"`

	// LookbackHours bounds how far back candidates are considered.
	LookbackHours int `json:"lookback_hours,omitempty"`

	// AllTweets considers every unembedded post in the window instead of
	// only latest-version originals.
	AllTweets bool `json:"all_tweets,omitempty"`
}
