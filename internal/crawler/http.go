package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPFetcher retrieves pages with a plain HTTP client. Suitable for
// server-rendered product pages; use BrowserFetcher for JS-heavy storefronts.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewHTTPFetcher creates an HTTPFetcher from config.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultConfig().UserAgent
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultConfig().MaxBodyBytes
	}
	return &HTTPFetcher{
		client:       &http.Client{Timeout: cfg.Timeout},
		userAgent:    ua,
		maxBodyBytes: maxBody,
	}
}

// Fetch retrieves the raw HTML for a URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// Close is a no-op for the HTTP fetcher.
func (f *HTTPFetcher) Close() error {
	return nil
}
