// Package crawler turns a product URL into clean text, structured product
// facts, and a quality score. Fetching is pluggable: a plain HTTP client by
// default, or a headless browser for pages that only render under JavaScript.
package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prodintel/internal/logging"
	"prodintel/internal/types"
)

// Extraction is the result of crawling one product page.
type Extraction struct {
	// Text is the cleaned page text.
	Text string

	// Facts are the structured product facts pulled from the page.
	Facts types.IntelligenceData

	// QualityScore estimates extraction quality in [0, 1].
	QualityScore float64

	// Chunks are snippet-sized slices of Text for knowledge ingestion.
	Chunks []string
}

// Crawler extracts product intelligence from a URL.
type Crawler interface {
	Extract(ctx context.Context, url string) (*Extraction, error)
}

// PageFetcher retrieves the raw HTML for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// Config controls fetching and chunking.
type Config struct {
	RenderJS     bool
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	ChunkSize    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		UserAgent:    "Mozilla/5.0 (compatible; prodintel/1.0)",
		MaxBodyBytes: 2 << 20,
		ChunkSize:    800,
	}
}

// Extractor is the default Crawler implementation: fetch, parse, extract.
type Extractor struct {
	fetcher PageFetcher
	cfg     Config
}

// New creates an Extractor, choosing the fetcher from config.
func New(cfg Config) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}

	var fetcher PageFetcher
	if cfg.RenderJS {
		fetcher = NewBrowserFetcher(cfg)
	} else {
		fetcher = NewHTTPFetcher(cfg)
	}
	return &Extractor{fetcher: fetcher, cfg: cfg}
}

// NewWithFetcher creates an Extractor with an explicit fetcher.
func NewWithFetcher(fetcher PageFetcher, cfg Config) *Extractor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	return &Extractor{fetcher: fetcher, cfg: cfg}
}

// Extract fetches the page and derives text, facts, and chunks.
func (e *Extractor) Extract(ctx context.Context, url string) (*Extraction, error) {
	timer := logging.StartTimer(logging.CategoryCrawler, "Extract")
	defer timer.StopWithThreshold(10 * time.Second)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	html, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	page, err := parsePage(html)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	facts := extractFacts(page)
	text := page.CleanText()
	result := &Extraction{
		Text:         text,
		Facts:        facts,
		QualityScore: scoreQuality(page, facts),
		Chunks:       chunkText(text, e.cfg.ChunkSize),
	}

	logging.Crawler("extracted %s: %d chars, %d chunks, quality=%.2f",
		url, len(text), len(result.Chunks), result.QualityScore)
	return result, nil
}

// Close releases the underlying fetcher.
func (e *Extractor) Close() error {
	return e.fetcher.Close()
}

// chunkText splits text into roughly chunkSize-character pieces on paragraph
// boundaries, merging short paragraphs and splitting oversized ones.
func chunkText(text string, chunkSize int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for len(p) > chunkSize*2 {
			cut := chunkSize
			if idx := strings.LastIndex(p[:chunkSize], ". "); idx > chunkSize/2 {
				cut = idx + 1
			}
			flush()
			chunks = append(chunks, strings.TrimSpace(p[:cut]))
			p = strings.TrimSpace(p[cut:])
		}
		if current.Len() > 0 && current.Len()+len(p) > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}
