// Package llm provides the chat-completion client used by the normalizer,
// the image pipeline, the curator, and the reviewer, plus the tolerant JSON
// extraction all of them share.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/metrics"
)

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part is one content part of a message: text, or an image by URL or data URI.
type Part struct {
	Text     string
	ImageURL string
}

// Message is one chat turn. Text-only messages set Text; multimodal messages
// set Parts instead.
type Message struct {
	Role  string
	Text  string
	Parts []Part
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Text: text}
}

// Options tune one completion call.
type Options struct {
	// JSONMode requests a JSON-object response format.
	JSONMode bool

	// MaxTokens caps the completion length; 0 leaves the provider default.
	MaxTokens int

	// Temperature is sent as-is. Deterministic callers pass 0.
	Temperature float64
}

// Client produces one chat completion per call.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

const (
	defaultMaxRetries = 3
	retryBaseDelay    = 2 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// httpClient talks to an OpenAI-compatible chat completions endpoint.
// Both supported provider types (openrouter, portkey) speak this shape and
// differ only in base URL and auth headers.
type httpClient struct {
	provider *config.ProviderConfig
	apiKey   string
	baseURL  string
	http     *http.Client
}

// NewClient builds a chat client from a provider entry. The API key is read
// from the entry's environment variable at construction time.
func NewClient(provider *config.ProviderConfig) (Client, error) {
	if !provider.ChatType().IsValid() {
		return nil, fmt.Errorf("unsupported chat provider type: %s", provider.Type)
	}

	apiKey := os.Getenv(provider.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("chat provider %s: environment variable %s is not set", provider.Type, provider.APIKeyEnv)
	}

	baseURL := provider.BaseURL
	if baseURL == "" {
		switch provider.ChatType() {
		case config.ChatProviderTypeOpenRouter:
			baseURL = "https://openrouter.ai/api/v1"
		case config.ChatProviderTypePortkey:
			baseURL = "https://api.portkey.ai/v1"
		}
	}

	return &httpClient{
		provider: provider,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Wire types for the OpenAI-compatible chat completions API.

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []wirePart
}

type wirePart struct {
	Type     string        `json:"type"` // text | image_url
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireRequest struct {
	Model          string              `json:"model"`
	Messages       []wireMessage       `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *wireResponseFormat `json:"response_format,omitempty"`
}

type wireResponseFormat struct {
	Type string `json:"type"` // json_object
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one chat completion request, retrying rate limits and
// server errors with capped exponential backoff.
func (c *httpClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := wireRequest{
		Model:       c.provider.Model,
		Messages:    encodeMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.JSONMode {
		req.ResponseFormat = &wireResponseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= defaultMaxRetries; attempt++ {
		content, retryAfter, err := c.doRequest(ctx, body)
		if err == nil {
			metrics.ObserveLLMCall(c.provider.Type, "ok")
			return content, nil
		}
		metrics.ObserveLLMCall(c.provider.Type, "error")
		lastErr = err

		var transient *transientError
		if !errors.As(err, &transient) || attempt == defaultMaxRetries {
			break
		}

		delay := retryDelay(attempt, retryAfter)
		slog.Warn("Chat completion retrying",
			"provider", c.provider.Type, "model", c.provider.Model,
			"attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (c *httpClient) doRequest(ctx context.Context, body []byte) (content string, retryAfter time.Duration, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", 0, &transientError{fmt.Errorf("completion request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", 0, &transientError{fmt.Errorf("reading completion response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", parseRetryAfter(resp.Header.Get("Retry-After")),
			&transientError{fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 300))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed wireResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", 0, fmt.Errorf("decoding completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", 0, fmt.Errorf("completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, 0, nil
}

// setAuth applies the provider's auth headers. Portkey authenticates with
// its own key header plus a virtual key that selects the upstream provider.
func (c *httpClient) setAuth(req *http.Request) {
	switch c.provider.ChatType() {
	case config.ChatProviderTypePortkey:
		req.Header.Set("x-portkey-api-key", c.apiKey)
		if c.provider.VirtualKeyEnv != "" {
			if vk := os.Getenv(c.provider.VirtualKeyEnv); vk != "" {
				req.Header.Set("x-portkey-virtual-key", vk)
			}
		}
	default:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func encodeMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, wireMessage{Role: m.Role, Content: m.Text})
			continue
		}
		parts := make([]wirePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.ImageURL != "" {
				parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: p.ImageURL}})
			} else {
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			}
		}
		out = append(out, wireMessage{Role: m.Role, Content: parts})
	}
	return out
}

// transientError marks failures worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// retryDelay honors Retry-After when present, otherwise backs off
// exponentially with a cap.
func retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > maxRetryDelay {
			return maxRetryDelay
		}
		return retryAfter
	}
	d := retryBaseDelay << (attempt - 1)
	if d > maxRetryDelay || d <= 0 {
		return maxRetryDelay
	}
	return d
}

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
