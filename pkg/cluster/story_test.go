package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tideline/tideline/pkg/models"
)

func TestScoreReferenceValue(t *testing.T) {
	now := time.Now()
	feedback := models.FeedbackCounts{Useful: 1, Noise: 2, BadCluster: 0}

	got := Score(6, 4, now.Add(-2*time.Hour), 500, feedback, now)
	assert.InDelta(t, 176.6, got, 1.0)
}

func TestScoreFreshnessDecays(t *testing.T) {
	now := time.Now()
	fresh := Score(6, 4, now.Add(-1*time.Hour), 500, models.FeedbackCounts{}, now)
	stale := Score(6, 4, now.Add(-20*time.Hour), 500, models.FeedbackCounts{}, now)
	assert.Greater(t, fresh, stale)
}

func TestScoreFutureLastSeenClamps(t *testing.T) {
	now := time.Now()
	future := Score(6, 4, now.Add(time.Hour), 500, models.FeedbackCounts{}, now)
	current := Score(6, 4, now, 500, models.FeedbackCounts{}, now)
	assert.InDelta(t, current, future, 1e-9)
}

func TestScoreZeroUsersCountsAsOne(t *testing.T) {
	now := time.Now()
	zero := Score(6, 0, now, 0, models.FeedbackCounts{}, now)
	one := Score(6, 1, now, 0, models.FeedbackCounts{}, now)
	assert.InDelta(t, one, zero, 1e-9)
}

func TestScoreNetPositiveFeedbackHasNoPenalty(t *testing.T) {
	now := time.Now()
	neutral := Score(6, 4, now, 500, models.FeedbackCounts{}, now)
	positive := Score(6, 4, now, 500, models.FeedbackCounts{Useful: 5, Noise: 1}, now)
	assert.InDelta(t, neutral, positive, 1e-9)
}
