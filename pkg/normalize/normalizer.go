// Package normalize turns a raw post plus its enriched context into a
// one-line headline and a list of atomic facts via a JSON-only chat call.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/llm"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// Limits applied after extraction.
const (
	MaxHeadlineLen    = 240
	MaxFacts          = 12
	maxURLContexts    = 3
	maxURLExcerptLen  = 1500
	neutralHeadline   = "No notable development"
	completionTokens  = 700
)

const systemPrompt = `You normalize social-media posts into a headline and atomic facts for news deduplication.

Rules:
- Use ONLY claims present in the input. Do not speculate or add outside knowledge.
- Each fact must be atomic and independently meaningful.
- Preserve tickers (like $AAPL) and numbers exactly as written.
- The headline is one short declarative sentence.
- If no factual development is present, return an empty fact list and a short neutral headline.

Respond with a JSON object: {"headline": string, "facts": [string, ...]}`

// result is the JSON shape the model must return.
type result struct {
	Headline string   `json:"headline"`
	Facts    []string `json:"facts"`
}

// Outcome reports what one normalization did.
type Outcome struct {
	Skipped    bool
	SkipReason string
	Headline   string
	FactCount  int
}

// Normalizer produces normalized headlines and facts for posts.
type Normalizer struct {
	client llm.Client
	posts  *store.PostStore
	cfg    *config.NormalizeConfig
}

// NewNormalizer creates a normalizer over the configured chat client.
func NewNormalizer(client llm.Client, posts *store.PostStore, cfg *config.NormalizeConfig) *Normalizer {
	return &Normalizer{client: client, posts: posts, cfg: cfg}
}

// NormalizePost normalizes one post. Skips when the post already carries a
// headline (unless backfill) or when there is no text and no image summary
// to work from.
func (n *Normalizer) NormalizePost(ctx context.Context, postID string, backfill bool) (*Outcome, error) {
	post, err := n.posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading post %s: %w", postID, err)
	}

	if post.NormalizedHeadline != nil && !backfill {
		return &Outcome{Skipped: true, SkipReason: "already_normalized"}, nil
	}

	urlContexts, err := n.posts.URLContexts(ctx, postID, maxURLContexts)
	if err != nil {
		return nil, fmt.Errorf("loading url contexts for %s: %w", postID, err)
	}
	imageSummaries, err := n.posts.ImageSummaries(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading image summaries for %s: %w", postID, err)
	}

	if collapse(post.FullText) == "" && len(imageSummaries) == 0 {
		return &Outcome{Skipped: true, SkipReason: "no_text_to_embed"}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	response, err := n.client.Complete(callCtx, []llm.Message{
		llm.TextMessage(llm.RoleSystem, systemPrompt),
		llm.TextMessage(llm.RoleUser, buildPrompt(post, urlContexts, imageSummaries)),
	}, llm.Options{JSONMode: true, MaxTokens: completionTokens, Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("normalization call for %s: %w", postID, err)
	}

	var parsed result
	if err := llm.ExtractJSON(response, &parsed); err != nil {
		return nil, fmt.Errorf("normalization response for %s: %w", postID, err)
	}

	headline, facts := Validate(parsed.Headline, parsed.Facts, post.FullText)
	if err := n.posts.SetNormalized(ctx, postID, headline, facts); err != nil {
		return nil, err
	}

	slog.Debug("Post normalized", "post_id", postID, "facts", len(facts))
	return &Outcome{Headline: headline, FactCount: len(facts)}, nil
}

// buildPrompt assembles the user message: post text, quoted text, linked
// article excerpts, and image summaries.
func buildPrompt(post *models.Post, urlContexts, imageSummaries []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Post by @%s:\n%s\n", post.AuthorHandle, post.FullText)

	if post.QuotedText != nil && *post.QuotedText != "" {
		fmt.Fprintf(&b, "\nQuoted post:\n%s\n", *post.QuotedText)
	}

	for i, content := range urlContexts {
		fmt.Fprintf(&b, "\nLinked article %d:\n%s\n", i+1, truncateRunes(content, maxURLExcerptLen))
	}

	for _, summary := range imageSummaries {
		fmt.Fprintf(&b, "\nAttached image: %s\n", summary)
	}

	return b.String()
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// truncateRunes caps s at n runes. Cutting on a byte offset could split a
// multibyte rune and produce invalid UTF-8, which Postgres rejects.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Validate applies the post-extraction rules: the headline is collapsed and
// capped at 240 chars, falling back to the first fact, then the post text,
// then the fixed neutral string; facts are trimmed, exact-deduped, and
// capped at 12.
func Validate(headline string, facts []string, rawText string) (string, []string) {
	cleaned := make([]string, 0, len(facts))
	seen := make(map[string]bool)
	for _, f := range facts {
		f = collapse(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		cleaned = append(cleaned, f)
		if len(cleaned) == MaxFacts {
			break
		}
	}

	h := collapse(headline)
	if h == "" && len(cleaned) > 0 {
		h = cleaned[0]
	}
	if h == "" {
		h = collapse(rawText)
	}
	if h == "" {
		h = neutralHeadline
	}
	h = truncateRunes(h, MaxHeadlineLen)
	return h, cleaned
}
