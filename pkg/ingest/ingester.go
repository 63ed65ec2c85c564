// Package ingest implements the two scheduled fetch workers: the author
// watch-list batcher and the keyword searcher. Both funnel results through
// the same dedupe → upsert → media parse → preprocess emission path.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/metrics"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/source"
	"github.com/tideline/tideline/pkg/store"
)

// Function ids recorded around ingest invocations.
const (
	FunctionIngestAccounts = "ingest-accounts"
	FunctionIngestKeywords = "ingest-keywords"
)

// Ingester pulls posts from the search provider and lands them in the
// post store.
type Ingester struct {
	source    source.Client
	posts     *store.PostStore
	runs      *store.RunStore
	emitter   *events.Emitter
	cfg       *config.IngestConfig
	skipHosts []string
}

// NewIngester creates an ingester. skipHosts is shared with the URL
// enricher so skip-listed links are never stored in the first place.
func NewIngester(src source.Client, posts *store.PostStore, runs *store.RunStore, emitter *events.Emitter, cfg *config.IngestConfig, skipHosts []string) *Ingester {
	return &Ingester{
		source:    src,
		posts:     posts,
		runs:      runs,
		emitter:   emitter,
		cfg:       cfg,
		skipHosts: skipHosts,
	}
}

// HandleAccounts processes one ingest.accounts job: the handle list is
// partitioned into union queries issued sequentially with an inter-batch
// delay. Failed batches are recorded without failing the run unless every
// batch failed.
func (g *Ingester) HandleAccounts(ctx context.Context, _ *models.Job) error {
	runID := g.runs.Start(ctx, FunctionIngestAccounts)

	queries := batchHandles(g.cfg.Handles, g.cfg.HandleBatchSize)
	var tweets []source.Tweet
	var batchErrors []string

	for i, query := range queries {
		if i > 0 {
			select {
			case <-ctx.Done():
				g.runs.Finish(ctx, runID, models.RunStateFailed, nil, ctx.Err())
				return ctx.Err()
			case <-time.After(g.cfg.InterBatchDelay):
			}
		}

		page, err := g.source.Search(ctx, query, "")
		if err != nil {
			slog.Warn("Account batch failed", "batch", i, "error", err)
			batchErrors = append(batchErrors, fmt.Sprintf("batch %d: %v", i, err))
			continue
		}
		tweets = append(tweets, page.Tweets...)
	}

	if len(queries) > 0 && len(batchErrors) == len(queries) {
		err := fmt.Errorf("all %d account batches failed", len(queries))
		g.runs.Finish(ctx, runID, models.RunStateFailed, map[string]any{"batch_errors": batchErrors}, err)
		return err
	}

	details, err := g.process(ctx, tweets)
	details["batch_errors"] = batchErrors
	if err != nil {
		g.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	g.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

// HandleKeywords processes one ingest.keywords job: a fixed multi-keyword
// query paginated by a configured page count.
func (g *Ingester) HandleKeywords(ctx context.Context, _ *models.Job) error {
	runID := g.runs.Start(ctx, FunctionIngestKeywords)

	query := keywordQuery(g.cfg.Keywords)
	if query == "" {
		g.runs.Finish(ctx, runID, models.RunStateCompleted, map[string]any{"skipped": "no keywords configured"}, nil)
		return nil
	}

	var tweets []source.Tweet
	cursor := ""
	for page := 0; page < g.cfg.KeywordPages; page++ {
		result, err := g.source.Search(ctx, query, cursor)
		if err != nil {
			g.runs.Finish(ctx, runID, models.RunStateFailed, nil, err)
			return fmt.Errorf("keyword search page %d: %w", page, err)
		}
		tweets = append(tweets, result.Tweets...)
		if !result.HasNextPage || result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	details, err := g.process(ctx, tweets)
	if err != nil {
		g.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	g.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

// process dedupes, upserts, parses media for fresh inserts, and emits
// preprocess events for every ingested post whose canonical head is still
// unnormalized.
func (g *Ingester) process(ctx context.Context, tweets []source.Tweet) (map[string]any, error) {
	details := map[string]any{"fetched": len(tweets)}

	byID := make(map[string]*source.Tweet, len(tweets))
	order := make([]string, 0, len(tweets))
	for i := range tweets {
		t := &tweets[i]
		if t.ID == "" {
			continue
		}
		if _, ok := byID[t.ID]; !ok {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}

	var rows []*models.Post
	for _, id := range order {
		p, err := toPost(byID[id])
		if err != nil {
			slog.Warn("Skipping unconvertible tweet", "tweet_id", id, "error", err)
			continue
		}
		rows = append(rows, p)
	}
	details["deduped"] = len(rows)

	var insertedIDs []string
	chunkSize := g.cfg.UpsertBatchSize
	if chunkSize <= 0 {
		chunkSize = 50
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		ids, err := g.posts.UpsertBatch(ctx, rows[start:end])
		if err != nil {
			details["inserted"] = len(insertedIDs)
			return details, fmt.Errorf("upserting posts: %w", err)
		}
		insertedIDs = append(insertedIDs, ids...)
	}
	details["inserted"] = len(insertedIDs)
	metrics.AddPostsIngested(len(insertedIDs))

	// Media and URLs only for rows this run actually inserted.
	for _, id := range insertedIDs {
		t := byID[id]
		if t == nil {
			continue
		}
		if urls := extractURLs(t, g.skipHosts); len(urls) > 0 {
			if err := g.posts.UpsertURLs(ctx, id, urls); err != nil {
				slog.Warn("Storing post urls failed", "tweet_id", id, "error", err)
			}
		}
		if images := extractImages(t); len(images) > 0 {
			if err := g.posts.UpsertImages(ctx, id, images); err != nil {
				slog.Warn("Storing post images failed", "tweet_id", id, "error", err)
			}
		}
		if videos := extractVideos(t); len(videos) > 0 {
			if err := g.posts.UpsertVideos(ctx, id, videos); err != nil {
				slog.Warn("Storing post videos failed", "tweet_id", id, "error", err)
			}
		}
	}

	// The backstop sweep covers posts from earlier runs whose preprocess
	// never completed, not just this run's inserts.
	pending, err := g.posts.UnnormalizedCanonical(ctx, order)
	if err != nil {
		return details, fmt.Errorf("finding unnormalized posts: %w", err)
	}

	inserted := make(map[string]bool, len(insertedIDs))
	for _, id := range insertedIDs {
		inserted[id] = true
	}
	emitted := 0
	for _, id := range pending {
		reason := events.ReasonRetry
		if inserted[id] {
			reason = events.ReasonIngested
		}
		if err := g.emitter.EmitPreprocess(ctx, id, reason); err != nil {
			slog.Warn("Emitting preprocess failed", "tweet_id", id, "error", err)
			continue
		}
		emitted++
	}
	details["preprocess_emitted"] = emitted

	slog.Info("Ingest run processed",
		"fetched", len(tweets), "deduped", len(rows),
		"inserted", len(insertedIDs), "preprocess_emitted", emitted)
	return details, nil
}
