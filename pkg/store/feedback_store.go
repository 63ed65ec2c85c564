package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tideline/tideline/pkg/models"
)

// FeedbackStore persists reader feedback labels on clusters.
type FeedbackStore struct {
	pool *pgxpool.Pool
}

// NewFeedbackStore creates a feedback repository over the given pool.
func NewFeedbackStore(pool *pgxpool.Pool) *FeedbackStore {
	return &FeedbackStore{pool: pool}
}

// Insert records one feedback submission and returns it.
func (s *FeedbackStore) Insert(ctx context.Context, clusterID int64, kind models.FeedbackKind, submittedBy *string) (*models.ClusterFeedback, error) {
	fb := &models.ClusterFeedback{
		ID:          uuid.NewString(),
		ClusterID:   clusterID,
		Feedback:    kind,
		SubmittedBy: submittedBy,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cluster_feedback (id, cluster_id, feedback, submitted_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		fb.ID, clusterID, string(kind), submittedBy).Scan(&fb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting feedback for cluster %d: %w", clusterID, err)
	}
	return fb, nil
}

// Counts aggregates feedback for a single cluster.
func (s *FeedbackStore) Counts(ctx context.Context, clusterID int64) (models.FeedbackCounts, error) {
	var c models.FeedbackCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE feedback = 'useful'),
		       COUNT(*) FILTER (WHERE feedback = 'noise'),
		       COUNT(*) FILTER (WHERE feedback = 'bad_cluster')
		FROM cluster_feedback
		WHERE cluster_id = $1`, clusterID).Scan(&c.Useful, &c.Noise, &c.BadCluster)
	if err != nil {
		return c, fmt.Errorf("counting feedback for cluster %d: %w", clusterID, err)
	}
	return c, nil
}
