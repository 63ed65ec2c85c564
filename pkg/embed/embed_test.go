package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/config"
)

func testEmbedConfig() *config.EmbedConfig {
	return &config.EmbedConfig{
		Provider:       "openai-embedding",
		Dimensions:     4,
		TaskType:       "CLUSTERING",
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
}

func TestOpenAIProviderEmbed(t *testing.T) {
	var gotReq embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer embed-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3, 0.4]}]}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider(&config.ProviderConfig{
		Kind:    config.ProviderKindEmbedding,
		Type:    "openai",
		Model:   "text-embedding-3-small",
		BaseURL: srv.URL,
	}, testEmbedConfig(), "embed-key")

	vec, err := p.Embed(context.Background(), "Fed holds rates steady")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
	assert.Equal(t, "text-embedding-3-small", gotReq.Model)
	assert.Equal(t, 4, gotReq.Dimensions)
}

func TestOpenAIProviderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newOpenAIProvider(&config.ProviderConfig{Type: "openai", BaseURL: srv.URL}, testEmbedConfig(), "k")
	_, err := p.Embed(context.Background(), "text")
	var transient *TransientError
	assert.ErrorAs(t, err, &transient)
}

// fakeProvider fails a fixed number of times before succeeding.
type fakeProvider struct {
	failures int
	err      error
	calls    int
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

func TestTruncateRunesMultibyte(t *testing.T) {
	long := strings.Repeat("a", fallbackTextRunes-1) + "é" + strings.Repeat("b", 20)
	got := truncateRunes(collapse(long), fallbackTextRunes)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, fallbackTextRunes, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é"))

	short := "Fed holds rates steady"
	assert.Equal(t, short, truncateRunes(short, fallbackTextRunes))
}

func TestEmbedWithRetryTransient(t *testing.T) {
	p := &fakeProvider{failures: 2, err: &TransientError{errors.New("rate limited")}}
	s := NewService(p, nil, testEmbedConfig())

	vec, err := s.embedWithRetry(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 3, p.calls)
}

func TestEmbedWithRetryHardFailure(t *testing.T) {
	p := &fakeProvider{failures: 10, err: errors.New("invalid model")}
	s := NewService(p, nil, testEmbedConfig())

	_, err := s.embedWithRetry(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestEmbedWithRetryExhausted(t *testing.T) {
	p := &fakeProvider{failures: 10, err: &TransientError{errors.New("overloaded")}}
	s := NewService(p, nil, testEmbedConfig())

	_, err := s.embedWithRetry(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
}
