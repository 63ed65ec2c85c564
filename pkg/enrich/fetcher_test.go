package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/config"
)

func testEnrichConfig(proxyEndpoint string) *config.EnrichConfig {
	cfg := config.DefaultEnrichConfig()
	cfg.FetchTimeout = 5 * time.Second
	cfg.ScrapingProxyEndpoint = proxyEndpoint
	return cfg
}

func TestFetchDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewFetcher(testEnrichConfig(""))
	html, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", html)
}

func TestFetchProxyFallback(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer target.Close()

	proxyCalls := 0
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyCalls++
		assert.Equal(t, "proxy-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, target.URL, r.URL.Query().Get("url"))
		w.Write([]byte("<html>via proxy</html>"))
	}))
	defer proxy.Close()

	t.Setenv("SCRAPING_PROXY_API_KEY", "proxy-key")
	f := NewFetcher(testEnrichConfig(proxy.URL))

	html, err := f.Fetch(context.Background(), target.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>via proxy</html>", html)
	assert.Equal(t, 1, proxyCalls)
}

func TestFetchPremiumFallback(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer target.Close()

	proxyCalls := 0
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyCalls++
		if r.URL.Query().Get("premium") != "true" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html>premium</html>"))
	}))
	defer proxy.Close()

	t.Setenv("SCRAPING_PROXY_API_KEY", "proxy-key")
	f := NewFetcher(testEnrichConfig(proxy.URL))

	html, err := f.Fetch(context.Background(), target.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>premium</html>", html)
	assert.Equal(t, 2, proxyCalls)
}

func TestFetchNoProxyConfigured(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer target.Close()

	t.Setenv("SCRAPING_PROXY_API_KEY", "")
	f := NewFetcher(testEnrichConfig(""))

	_, err := f.Fetch(context.Background(), target.URL)
	assert.Error(t, err)
}
