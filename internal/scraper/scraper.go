// Package scraper fetches product pages and extracts price observations.
// Persistence is the caller's responsibility; the only side effect here is
// the network call.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pricewatch/internal/metrics"
	"pricewatch/pkg/logger"
	domain "pricewatch/pkg/types"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "pricewatch/1.0"
	defaultMaxBody   = 4 << 20
)

// Fetcher turns a tracked product into a raw observation.
type Fetcher interface {
	Fetch(ctx context.Context, product *domain.Product) (*domain.RawObservation, error)
}

// Engine implements Fetcher over plain HTTP.
type Engine struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	selectors []string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithHTTPClient overrides the default HTTP client. Used to inject the
// otelhttp transport and in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Engine) {
		e.client = hc
	}
}

// WithUserAgent sets the outgoing User-Agent header.
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		e.userAgent = ua
	}
}

// WithMaxBodyBytes caps how much of a page is read.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Engine) {
		e.maxBody = n
	}
}

// WithPriceSelectors appends extra class-name fragments tried during
// fallback extraction, after the built-in set.
func WithPriceSelectors(sel []string) Option {
	return func(e *Engine) {
		e.selectors = append(e.selectors, sel...)
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNowFunc overrides the observation clock for testing.
func WithNowFunc(f func() time.Time) Option {
	return func(e *Engine) {
		e.nowFunc = f
	}
}

// NewEngine creates a scraper engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		maxBody:   defaultMaxBody,
		selectors: defaultSelectors(),
		logger:    logger.Discard(),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch retrieves the product page and extracts price, availability, and
// title. Missing optional fields (title, currency) fall back to the
// product's stored values; a missing price is a ParseError.
func (e *Engine) Fetch(ctx context.Context, product *domain.Product) (*domain.RawObservation, error) {
	start := e.nowFunc()

	obs, err := e.fetch(ctx, product)

	metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScrapesTotal.WithLabelValues(FailureKind(err)).Inc()
		return nil, err
	}
	metrics.ScrapesTotal.WithLabelValues("ok").Inc()
	return obs, nil
}

func (e *Engine) fetch(ctx context.Context, product *domain.Product) (*domain.RawObservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, product.SourceURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", product.SourceURL, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: product.SourceURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &NotFoundError{URL: product.SourceURL, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &BlockedError{URL: product.SourceURL, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &NetworkError{URL: product.SourceURL, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &ParseError{
			URL:    product.SourceURL,
			Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, &NetworkError{URL: product.SourceURL, Err: err}
	}

	if looksBlocked(body) {
		return nil, &BlockedError{URL: product.SourceURL, StatusCode: resp.StatusCode}
	}

	ext, err := extract(body, e.selectors)
	if err != nil {
		e.logger.Debug("extraction failed",
			"url", product.SourceURL,
			"error", err,
		)
		return nil, &ParseError{URL: product.SourceURL, Reason: err.Error()}
	}

	obs := &domain.RawObservation{
		Price:      ext.price,
		Currency:   ext.currency,
		Available:  ext.available,
		Title:      ext.title,
		ObservedAt: e.nowFunc().UTC(),
	}
	if obs.Currency == "" {
		obs.Currency = product.Currency
	}
	if obs.Title == "" {
		obs.Title = product.Title
	}
	return obs, nil
}

// Anti-bot interstitials come back with status 200, so the body itself is
// the only signal. Markers are phrases from interstitial pages, not bare
// words like "captcha" that legitimate pages embed in script tags.
var blockedMarkers = [][]byte{
	[]byte("robot check"),
	[]byte("access denied"),
	[]byte("verify you are a human"),
	[]byte("unusual traffic from your"),
	[]byte("enter the characters you see below"),
}

func looksBlocked(body []byte) bool {
	probe := body
	if len(probe) > 16384 {
		probe = probe[:16384]
	}
	lower := bytes.ToLower(probe)
	for _, m := range blockedMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}
