package scraper

import (
	"errors"
	"fmt"
)

// NetworkError covers transport failures and server errors. Retryable with
// backoff up to the task's attempt cap.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("network error fetching %s: status %d", e.URL, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError means the page loaded but no price could be extracted, which
// usually means the page structure changed. Retried a bounded number of
// times, then escalated for manual review.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error on %s: %s", e.URL, e.Reason)
}

// BlockedError means the retailer rejected us as a bot. Triggers backoff
// escalation on the retailer's limiter.
type BlockedError struct {
	URL        string
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by retailer at %s (status %d)", e.URL, e.StatusCode)
}

// NotFoundError means the product page is gone. Terminal: the product is
// marked inactive, never retried.
type NotFoundError struct {
	URL        string
	StatusCode int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product not found at %s (status %d)", e.URL, e.StatusCode)
}

// FailureKind returns the metrics label for a scrape error.
func FailureKind(err error) string {
	var (
		netErr     *NetworkError
		parseErr   *ParseError
		blockedErr *BlockedError
		missingErr *NotFoundError
	)
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &blockedErr):
		return "blocked"
	case errors.As(err, &missingErr):
		return "not_found"
	default:
		return "other"
	}
}
