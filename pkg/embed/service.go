package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/metrics"
	"github.com/tideline/tideline/pkg/store"
)

// TransientError marks an embedding failure worth retrying (timeouts, rate
// limits, server errors).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Outcome reports what one embedding call did.
type Outcome struct {
	Skipped    bool
	SkipReason string
	Dimensions int
}

// Service embeds post headlines and stores the vectors.
type Service struct {
	provider Provider
	posts    *store.PostStore
	cfg      *config.EmbedConfig
}

// NewService creates the embedding service.
func NewService(provider Provider, posts *store.PostStore, cfg *config.EmbedConfig) *Service {
	return &Service{provider: provider, posts: posts, cfg: cfg}
}

// fallbackTextRunes caps the raw-text fallback fed to the embedder when a
// post has no normalized headline.
const fallbackTextRunes = 240

var whitespaceRE = regexp.MustCompile(`\s+`)

// truncateRunes caps s at n runes without splitting a multibyte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// EmbedPost embeds one post's headline, falling back to the leading post
// text when the headline is empty. Skips posts that already carry an
// embedding unless backfill is requested, and posts with nothing to embed.
func (s *Service) EmbedPost(ctx context.Context, postID string, backfill bool) (*Outcome, error) {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading post %s: %w", postID, err)
	}

	if len(post.HeadlineEmbedding) > 0 && !backfill {
		return &Outcome{Skipped: true, SkipReason: "already_embedded"}, nil
	}

	text := ""
	if post.NormalizedHeadline != nil {
		text = collapse(*post.NormalizedHeadline)
	}
	if text == "" {
		text = truncateRunes(collapse(post.FullText), fallbackTextRunes)
	}
	if text == "" {
		return &Outcome{Skipped: true, SkipReason: "no_text_to_embed"}, nil
	}

	vector, err := s.embedWithRetry(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding post %s: %w", postID, err)
	}
	if len(vector) != s.cfg.Dimensions {
		return nil, fmt.Errorf("embedding post %s: provider returned %d dimensions, want %d",
			postID, len(vector), s.cfg.Dimensions)
	}

	if err := s.posts.SetEmbedding(ctx, postID, vector); err != nil {
		return nil, err
	}
	return &Outcome{Dimensions: len(vector)}, nil
}

// embedWithRetry retries transient provider failures with capped backoff.
func (s *Service) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		vector, err := s.provider.Embed(ctx, text)
		if err == nil {
			metrics.ObserveEmbeddingCall(s.cfg.Provider, "ok")
			return vector, nil
		}
		metrics.ObserveEmbeddingCall(s.cfg.Provider, "error")
		lastErr = err

		var transient *TransientError
		if !errors.As(err, &transient) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt == s.cfg.MaxRetries {
			break
		}

		delay := s.cfg.RetryBaseDelay << (attempt - 1)
		if delay > 30*time.Second || delay <= 0 {
			delay = 30 * time.Second
		}
		slog.Warn("Embedding retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
