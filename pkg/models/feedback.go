package models

import "time"

// FeedbackKind is the closed set of reader feedback labels on a cluster.
type FeedbackKind string

const (
	FeedbackUseful     FeedbackKind = "useful"
	FeedbackNoise      FeedbackKind = "noise"
	FeedbackBadCluster FeedbackKind = "bad_cluster"
)

// Valid reports whether k is a member of the closed feedback set.
func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackUseful, FeedbackNoise, FeedbackBadCluster:
		return true
	}
	return false
}

// ClusterFeedback is one reader feedback submission against a cluster.
type ClusterFeedback struct {
	ID          string       `json:"id"`
	ClusterID   int64        `json:"cluster_id"`
	Feedback    FeedbackKind `json:"feedback"`
	SubmittedBy *string      `json:"submitted_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// FeedbackCounts aggregates feedback per cluster for the story read model.
type FeedbackCounts struct {
	Useful     int `json:"useful"`
	Noise      int `json:"noise"`
	BadCluster int `json:"bad_cluster"`
}

// Penalty is the score penalty term: max(0, noise + bad_cluster - useful).
func (f FeedbackCounts) Penalty() float64 {
	p := float64(f.Noise + f.BadCluster - f.Useful)
	if p < 0 {
		return 0
	}
	return p
}
