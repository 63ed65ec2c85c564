// Package pipeline drives the per-post preprocess chain and the manual
// embedding backfill, both as queue job handlers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tideline/tideline/pkg/embed"
	"github.com/tideline/tideline/pkg/enrich"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/jobs"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/normalize"
	"github.com/tideline/tideline/pkg/store"
)

// FunctionPreprocess is the function id recorded around preprocess runs.
const FunctionPreprocess = "post-preprocess"

// Preprocessor runs the per-post chain: URL enrichment, image
// classification, image summaries, normalization, embedding. Each stage is
// a memoized queue step, so a retried job resumes after the last committed
// stage instead of re-running it.
type Preprocessor struct {
	queue      *jobs.Queue
	posts      *store.PostStore
	runs       *store.RunStore
	urls       *enrich.URLEnricher
	images     *enrich.ImageEnricher
	normalizer *normalize.Normalizer
	embedder   *embed.Service
}

// NewPreprocessor wires the preprocess chain.
func NewPreprocessor(queue *jobs.Queue, posts *store.PostStore, runs *store.RunStore, urls *enrich.URLEnricher, images *enrich.ImageEnricher, normalizer *normalize.Normalizer, embedder *embed.Service) *Preprocessor {
	return &Preprocessor{
		queue:      queue,
		posts:      posts,
		runs:       runs,
		urls:       urls,
		images:     images,
		normalizer: normalizer,
		embedder:   embedder,
	}
}

// HandlePreprocess processes one post.preprocess job.
func (p *Preprocessor) HandlePreprocess(ctx context.Context, job *models.Job) error {
	var payload events.PreprocessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding preprocess payload: %w", err)
	}

	runID := p.runs.Start(ctx, FunctionPreprocess)
	details, err := p.process(ctx, job, payload)
	if err != nil {
		p.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	p.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

func (p *Preprocessor) process(ctx context.Context, job *models.Job, payload events.PreprocessPayload) (map[string]any, error) {
	postID := payload.PostID
	details := map[string]any{"post_id": postID, "reason": payload.Reason}

	urlsEnriched, err := jobs.RunStep(ctx, p.queue, job.ID, "enrich_urls", func(ctx context.Context) (int, error) {
		return p.urls.EnrichPost(ctx, postID)
	})
	if err != nil {
		return details, fmt.Errorf("enriching urls for %s: %w", postID, err)
	}
	details["urls_enriched"] = urlsEnriched

	classified, err := jobs.RunStep(ctx, p.queue, job.ID, "classify_images", func(ctx context.Context) (int, error) {
		return p.images.ClassifyPost(ctx, postID)
	})
	if err != nil {
		return details, fmt.Errorf("classifying images for %s: %w", postID, err)
	}
	details["images_classified"] = classified

	summarized, err := jobs.RunStep(ctx, p.queue, job.ID, "summarize_images", func(ctx context.Context) (int, error) {
		post, err := p.posts.Get(ctx, postID)
		if err != nil {
			return 0, err
		}
		return p.images.SummarizePost(ctx, postID, post.FullText)
	})
	if err != nil {
		return details, fmt.Errorf("summarizing images for %s: %w", postID, err)
	}
	details["images_summarized"] = summarized

	backfill := payload.Reason == events.ReasonBackfill

	normalized, err := jobs.RunStep(ctx, p.queue, job.ID, "normalize", func(ctx context.Context) (*normalize.Outcome, error) {
		return p.normalizer.NormalizePost(ctx, postID, backfill)
	})
	if err != nil {
		return details, fmt.Errorf("normalizing %s: %w", postID, err)
	}
	if normalized.Skipped {
		details["normalize_skipped"] = normalized.SkipReason
		// A post with nothing to embed completes here; re-delivery would
		// skip the same way, so there is no point retrying.
		if normalized.SkipReason == "no_text_to_embed" {
			slog.Info("Preprocess skipped", "post_id", postID, "reason", normalized.SkipReason)
			return details, nil
		}
	}

	embedded, err := jobs.RunStep(ctx, p.queue, job.ID, "embed", func(ctx context.Context) (*embed.Outcome, error) {
		return p.embedder.EmbedPost(ctx, postID, backfill)
	})
	if err != nil {
		return details, fmt.Errorf("embedding %s: %w", postID, err)
	}
	if embedded.Skipped {
		details["embed_skipped"] = embedded.SkipReason
	} else {
		details["embedded_dimensions"] = embedded.Dimensions
	}

	slog.Debug("Preprocess completed", "post_id", postID,
		"urls", urlsEnriched, "images", classified, "summaries", summarized)
	return details, nil
}
