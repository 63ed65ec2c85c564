package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

const detailMemberLimit = 100

// ClusterService serves cluster detail reads and feedback submissions.
type ClusterService struct {
	clusters *store.ClusterStore
	feedback *store.FeedbackStore
}

// NewClusterService creates a cluster service.
func NewClusterService(clusters *store.ClusterStore, feedback *store.FeedbackStore) *ClusterService {
	return &ClusterService{clusters: clusters, feedback: feedback}
}

// Detail returns one cluster with its current members, merge trail, and
// feedback rollup.
func (s *ClusterService) Detail(ctx context.Context, clusterID int64) (*models.ClusterDetail, error) {
	cl, err := s.clusters.Get(ctx, clusterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	members, err := s.clusters.MemberPosts(ctx, clusterID, detailMemberLimit)
	if err != nil {
		return nil, fmt.Errorf("loading members of cluster %d: %w", clusterID, err)
	}
	merges, err := s.clusters.MergesInto(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("loading merge trail of cluster %d: %w", clusterID, err)
	}
	counts, err := s.feedback.Counts(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("loading feedback for cluster %d: %w", clusterID, err)
	}

	return &models.ClusterDetail{
		Cluster:  cl,
		Members:  members,
		MergedIn: merges,
		Feedback: counts,
	}, nil
}

// SubmitFeedback records one reader feedback label against a cluster.
func (s *ClusterService) SubmitFeedback(ctx context.Context, clusterID int64, kind models.FeedbackKind, submittedBy *string) (*models.ClusterFeedback, error) {
	if !kind.Valid() {
		return nil, NewValidationError("feedback", fmt.Sprintf("unknown label %q", kind))
	}

	if _, err := s.clusters.Get(ctx, clusterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return s.feedback.Insert(ctx, clusterID, kind, submittedBy)
}
