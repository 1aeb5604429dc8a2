package crawler

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"prodintel/internal/logging"
)

// BrowserFetcher renders pages through a headless Chrome instance so that
// JS-hydrated storefronts yield their full DOM. The browser is launched
// lazily on first Fetch and reused until Close.
type BrowserFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	cfg     Config
}

// NewBrowserFetcher creates a BrowserFetcher. No browser is launched yet.
func NewBrowserFetcher(cfg Config) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg}
}

func (f *BrowserFetcher) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	url, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	logging.Crawler("headless browser started at %s", url)
	f.browser = browser
	return browser, nil
}

// Fetch navigates to the URL, waits for the page to load, and returns the
// rendered HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	browser, err := f.ensureStarted(ctx)
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if f.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			return "", fmt.Errorf("set user agent: %w", err)
		}
	}

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load: %w", err)
	}

	rendered, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return rendered, nil
}

// Close shuts down the browser if one was launched.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
