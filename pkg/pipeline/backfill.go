package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// FunctionBackfill is the function id recorded around backfill runs.
const FunctionBackfill = "cluster-backfill"

// Backfiller re-emits preprocess for posts in the lookback window that are
// missing an embedding. It does no embedding itself; the preprocess chain
// carries the work with the backfill reason set.
type Backfiller struct {
	posts   *store.PostStore
	runs    *store.RunStore
	emitter *events.Emitter
	cfg     *config.ClusterConfig
}

// NewBackfiller creates a backfiller.
func NewBackfiller(posts *store.PostStore, runs *store.RunStore, emitter *events.Emitter, cfg *config.ClusterConfig) *Backfiller {
	return &Backfiller{posts: posts, runs: runs, emitter: emitter, cfg: cfg}
}

// HandleBackfill processes one cluster.backfill job.
func (b *Backfiller) HandleBackfill(ctx context.Context, job *models.Job) error {
	var payload events.BackfillPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding backfill payload: %w", err)
	}

	runID := b.runs.Start(ctx, FunctionBackfill)
	details, err := b.run(ctx, payload)
	if err != nil {
		b.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	b.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

func (b *Backfiller) run(ctx context.Context, payload events.BackfillPayload) (map[string]any, error) {
	limit := payload.Limit
	if limit <= 0 {
		limit = b.cfg.BackfillLimit
	}
	lookback := payload.LookbackHours
	if lookback <= 0 {
		lookback = b.cfg.BackfillLookbackHours
	}

	since := time.Now().Add(-time.Duration(lookback) * time.Hour)
	candidates, err := b.posts.BackfillCandidates(ctx, since, limit, payload.AllTweets)
	if err != nil {
		return nil, fmt.Errorf("loading backfill candidates: %w", err)
	}

	details := map[string]any{
		"candidates":     len(candidates),
		"limit":          limit,
		"lookback_hours": lookback,
		"all_tweets":     payload.AllTweets,
	}

	emitted := 0
	for _, postID := range candidates {
		if err := b.emitter.EmitPreprocess(ctx, postID, events.ReasonBackfill); err != nil {
			return details, err
		}
		emitted++
	}
	details["emitted"] = emitted

	slog.Info("Backfill completed", "candidates", len(candidates), "emitted", emitted)
	return details, nil
}
