package services

import (
	"context"

	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunService serves the operator health view over function runs and the
// manual backfill trigger.
type RunService struct {
	runs    *store.RunStore
	emitter *events.Emitter
}

// NewRunService creates a run service.
func NewRunService(runs *store.RunStore, emitter *events.Emitter) *RunService {
	return &RunService{runs: runs, emitter: emitter}
}

// Recent returns the latest runs, newest first, optionally filtered to one
// function id.
func (s *RunService) Recent(ctx context.Context, functionID string, limit int) ([]*models.FunctionRun, error) {
	if limit < 0 {
		return nil, NewValidationError("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return s.runs.Recent(ctx, functionID, limit)
}

// TriggerBackfill enqueues a cluster.backfill job. Returns the job id and
// whether a new job was actually inserted (false when one is already
// pending or running).
func (s *RunService) TriggerBackfill(ctx context.Context, payload events.BackfillPayload) (int64, bool, error) {
	if payload.Limit < 0 {
		return 0, false, NewValidationError("limit", "must not be negative")
	}
	if payload.LookbackHours < 0 {
		return 0, false, NewValidationError("lookback_hours", "must not be negative")
	}
	return s.emitter.EmitBackfill(ctx, payload)
}
