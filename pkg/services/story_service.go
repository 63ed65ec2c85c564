package services

import (
	"context"

	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/models"
)

// StoryService serves the ranked story feed.
type StoryService struct {
	reader *cluster.StoryReader
}

// NewStoryService creates a story service.
func NewStoryService(reader *cluster.StoryReader) *StoryService {
	return &StoryService{reader: reader}
}

// List returns the scored feed. Zero values take the configured defaults.
func (s *StoryService) List(ctx context.Context, hours, limit int, onlyCandidates bool) ([]models.StoryView, error) {
	if hours < 0 {
		return nil, NewValidationError("hours", "must not be negative")
	}
	if limit < 0 {
		return nil, NewValidationError("limit", "must not be negative")
	}
	return s.reader.Stories(ctx, cluster.StoryQuery{
		Hours:          hours,
		OnlyCandidates: onlyCandidates,
		Limit:          limit,
	})
}
