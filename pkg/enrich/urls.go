package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tideline/tideline/pkg/store"
)

// URLEnricher fills in readable content for a post's pending URLs. Every
// row gets exactly one outcome write: extracted text, the unreadable
// sentinel, or a terminal error sentinel. Rows are never retried once
// content is set.
type URLEnricher struct {
	fetcher *Fetcher
	posts   *store.PostStore
}

// NewURLEnricher creates a URL enricher.
func NewURLEnricher(fetcher *Fetcher, posts *store.PostStore) *URLEnricher {
	return &URLEnricher{fetcher: fetcher, posts: posts}
}

// EnrichPost processes every content-less URL of one post and stamps the
// post url-enriched. Returns the number of URLs processed.
func (e *URLEnricher) EnrichPost(ctx context.Context, postID string) (int, error) {
	urls, err := e.posts.PendingURLs(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("loading pending urls for %s: %w", postID, err)
	}

	for _, u := range urls {
		content, rawHTML := e.enrichOne(ctx, u.URL)
		if err := e.posts.SetURLContent(ctx, u.ID, content, rawHTML); err != nil {
			return 0, fmt.Errorf("storing content for url %d: %w", u.ID, err)
		}
	}

	if err := e.posts.MarkURLEnriched(ctx, postID); err != nil {
		return 0, err
	}
	return len(urls), nil
}

// enrichOne fetches and extracts a single URL. Failures return a sentinel
// so the row is terminal either way.
func (e *URLEnricher) enrichOne(ctx context.Context, target string) (content string, rawHTML *string) {
	html, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		slog.Warn("URL fetch failed", "url", target, "error", err)
		return store.ContentSentinelErrorPrefix + err.Error(), nil
	}

	text := ExtractReadable(html)
	if text == "" {
		slog.Debug("No readable content extracted", "url", target)
		return store.ContentSentinelUnreadable, &html
	}
	return text, &html
}
