package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tideline/tideline/pkg/models"
)

// RunStore records worker function invocations for the operator health
// view. Writes here are best-effort: a failed status write is warned and
// never masks the underlying pipeline error.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a function-run repository over the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Start records the beginning of a function invocation and returns the run id.
func (s *RunStore) Start(ctx context.Context, functionID string) string {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO function_runs (id, function_id, state)
		VALUES ($1, $2, 'running')`, id, functionID)
	if err != nil {
		slog.Warn("Failed to record function run start", "function_id", functionID, "error", err)
	}
	return id
}

// Finish records the terminal state of a function invocation. details may
// be nil; runErr may be nil for completed runs.
func (s *RunStore) Finish(ctx context.Context, runID string, state models.RunState, details map[string]any, runErr error) {
	var detailsJSON []byte
	if len(details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			slog.Warn("Failed to encode function run details", "run_id", runID, "error", err)
		}
	}
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE function_runs
		SET state = $2, details = $3, error_message = $4, finished_at = now()
		WHERE id = $1`, runID, string(state), detailsJSON, errMsg)
	if err != nil {
		slog.Warn("Failed to record function run finish", "run_id", runID, "error", err)
	}
}

// Recent returns the latest runs, newest first, optionally filtered by
// function id.
func (s *RunStore) Recent(ctx context.Context, functionID string, limit int) ([]*models.FunctionRun, error) {
	query := `
		SELECT id, function_id, state, details, error_message, started_at, finished_at
		FROM function_runs`
	args := []any{}
	if functionID != "" {
		query += ` WHERE function_id = $1`
		args = append(args, functionID)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying function runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.FunctionRun
	for rows.Next() {
		var r models.FunctionRun
		var details []byte
		var started time.Time
		if err := rows.Scan(&r.ID, &r.FunctionID, &r.State, &details, &r.ErrorMessage, &started, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.StartedAt = started
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, fmt.Errorf("decoding details for run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
