// Package source implements the post search client the ingest workers pull
// from: bearer-authenticated recent search with query and cursor pagination.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/tideline/tideline/pkg/config"
)

// Tweet is one search result in the provider's wire shape. Fields not
// consumed by ingest are intentionally absent; RawJSON preserves the full
// provider payload for the posts table.
type Tweet struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`

	Author struct {
		UserName string `json:"userName"`
	} `json:"author"`

	ViewCount     int `json:"viewCount"`
	LikeCount     int `json:"likeCount"`
	RetweetCount  int `json:"retweetCount"`
	QuoteCount    int `json:"quoteCount"`
	BookmarkCount int `json:"bookmarkCount"`
	ReplyCount    int `json:"replyCount"`

	IsReply        bool   `json:"isReply"`
	RetweetedID    string `json:"retweeted_tweet_id,omitempty"`
	InReplyToID    string `json:"inReplyToId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`

	QuotedTweet *struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"quoted_tweet,omitempty"`

	RetweetedTweet *struct {
		ID string `json:"id"`
	} `json:"retweeted_tweet,omitempty"`

	Entities struct {
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`

	ExtendedEntities struct {
		Media []Media `json:"media"`
	} `json:"extendedEntities"`

	// RawJSON is the tweet object exactly as the provider returned it.
	RawJSON json.RawMessage `json:"-"`
}

// Media is one attachment in a tweet's extended entities.
type Media struct {
	Type          string `json:"type"` // photo | video | animated_gif
	MediaURLHTTPS string `json:"media_url_https"`
	VideoInfo     *struct {
		DurationMillis int `json:"duration_millis"`
		Variants       []struct {
			Bitrate     int    `json:"bitrate"`
			ContentType string `json:"content_type"`
			URL         string `json:"url"`
		} `json:"variants"`
	} `json:"video_info,omitempty"`
}

// ParsedCreatedAt decodes the provider's creation timestamp. The provider
// uses the classic ruby-date format; RFC3339 is accepted as a fallback.
func (t *Tweet) ParsedCreatedAt() (time.Time, error) {
	if ts, err := time.Parse(time.RubyDate, t.CreatedAt); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing tweet %s created_at %q: %w", t.ID, t.CreatedAt, err)
	}
	return ts, nil
}

// IsQuote reports whether the tweet quotes another.
func (t *Tweet) IsQuote() bool { return t.QuotedTweet != nil }

// IsRetweet reports whether the tweet is a retweet.
func (t *Tweet) IsRetweet() bool { return t.RetweetedTweet != nil }

// QuotedText returns the quoted tweet's text, if any.
func (t *Tweet) QuotedText() string {
	if t.QuotedTweet == nil {
		return ""
	}
	return t.QuotedTweet.Text
}

// Page is one page of search results.
type Page struct {
	Tweets      []Tweet
	HasNextPage bool
	NextCursor  string
}

// Client searches recent posts.
type Client interface {
	Search(ctx context.Context, query, cursor string) (*Page, error)
}

type httpClient struct {
	cfg    *config.SourceConfig
	apiKey string
	http   *http.Client
}

// NewClient builds a search client from the source configuration. The
// bearer token is read from the configured environment variable.
func NewClient(cfg *config.SourceConfig) (Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("post source: environment variable %s is not set", cfg.APIKeyEnv)
	}
	return &httpClient{
		cfg:    cfg,
		apiKey: apiKey,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// searchResponse is the provider's page envelope. Tweets are kept raw so
// each object can be both decoded and preserved verbatim.
type searchResponse struct {
	Tweets      []json.RawMessage `json:"tweets"`
	HasNextPage bool              `json:"has_next_page"`
	NextCursor  string            `json:"next_cursor"`
	Message     string            `json:"message,omitempty"`
}

// Search fetches one page of results, retrying rate limits and transient
// failures with provider-supplied Retry-After when present.
func (c *httpClient) Search(ctx context.Context, query, cursor string) (*Page, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("queryType", "Latest")
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint := c.cfg.BaseURL + "/twitter/tweet/advanced_search?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		page, retryAfter, err := c.fetchPage(ctx, endpoint)
		if err == nil {
			return page, nil
		}
		lastErr = err

		var transient *transientError
		if !errors.As(err, &transient) || attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.retryDelay(attempt, retryAfter)
		slog.Warn("Search retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (c *httpClient) fetchPage(ctx context.Context, endpoint string) (*Page, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &transientError{fmt.Errorf("search request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, &transientError{fmt.Errorf("reading search response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")),
			&transientError{fmt.Errorf("search failed with status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("decoding search response: %w", err)
	}

	page := &Page{HasNextPage: parsed.HasNextPage, NextCursor: parsed.NextCursor}
	for _, raw := range parsed.Tweets {
		var t Tweet
		if err := json.Unmarshal(raw, &t); err != nil {
			slog.Warn("Skipping undecodable tweet", "error", err)
			continue
		}
		t.RawJSON = raw
		page.Tweets = append(page.Tweets, t)
	}
	return page, 0, nil
}

func (c *httpClient) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	const maxDelay = 30 * time.Second
	if retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	d := c.cfg.RetryBaseDelay << (attempt - 1)
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
