// Package enrich populates post context: readable text extracted from
// linked URLs and classifications/summaries for attached images.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/tideline/tideline/pkg/config"
)

// Fetcher retrieves page HTML with a browser-like user agent, falling back
// to a scraping proxy (then its premium rendering mode) when the direct
// fetch fails and a proxy credential is configured.
type Fetcher struct {
	cfg      *config.EnrichConfig
	proxyKey string
	http     *http.Client
}

// NewFetcher creates a fetcher. The proxy credential is resolved once; an
// empty value disables the fallback tiers.
func NewFetcher(cfg *config.EnrichConfig) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		proxyKey: os.Getenv(cfg.ScrapingProxyKeyEnv),
		http:     &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Fetch returns the page HTML for target, trying direct → proxy → premium
// proxy. The last error is returned when every tier fails.
func (f *Fetcher) Fetch(ctx context.Context, target string) (string, error) {
	html, err := f.fetchDirect(ctx, target)
	if err == nil {
		return html, nil
	}
	if f.proxyKey == "" || f.cfg.ScrapingProxyEndpoint == "" {
		return "", err
	}

	slog.Debug("Direct fetch failed, trying scraping proxy", "url", target, "error", err)
	html, proxyErr := f.fetchViaProxy(ctx, target, false)
	if proxyErr == nil {
		return html, nil
	}

	slog.Debug("Proxy fetch failed, trying premium mode", "url", target, "error", proxyErr)
	html, premiumErr := f.fetchViaProxy(ctx, target, true)
	if premiumErr == nil {
		return html, nil
	}
	return "", fmt.Errorf("all fetch tiers failed: %w", premiumErr)
}

func (f *Fetcher) fetchDirect(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return f.readResponse(req)
}

func (f *Fetcher) fetchViaProxy(ctx context.Context, target string, premium bool) (string, error) {
	params := url.Values{}
	params.Set("api_key", f.proxyKey)
	params.Set("url", target)
	if premium {
		params.Set("premium", "true")
		params.Set("render", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.cfg.ScrapingProxyEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building proxy request: %w", err)
	}
	return f.readResponse(req)
}

func (f *Fetcher) readResponse(req *http.Request) (string, error) {
	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", req.URL.Redacted(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", req.URL.Redacted(), err)
	}
	return string(body), nil
}
