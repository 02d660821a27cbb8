// Package ratelimit enforces per-retailer politeness limits: a token
// bucket per retailer plus an exponential failure backoff policy shared by
// the queue's retry scheduling.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/metrics"
)

// Limits is the token bucket configuration for one retailer.
type Limits struct {
	PerMinute int
	Burst     int
}

// Limiter manages per-retailer token buckets and failure streaks. Safe for
// concurrent use by many workers; the bucket is the only state shared
// across workers for a given retailer.
type Limiter struct {
	mu        sync.RWMutex
	retailers map[string]*retailerState

	defaults Limits
	base     time.Duration
	ceiling  time.Duration
	nowFunc  func() time.Time
	randFunc func() float64
}

type retailerState struct {
	mu        sync.Mutex
	bucket    *rate.Limiter
	limits    Limits
	streak    int
	lastDelay time.Duration
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithNowFunc overrides the time function for testing.
func WithNowFunc(f func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = f
	}
}

// WithRandFunc overrides the jitter source for testing. The function must
// return values in [0, 1).
func WithRandFunc(f func() float64) Option {
	return func(l *Limiter) {
		l.randFunc = f
	}
}

// New creates a Limiter. defaults applies to retailers without a
// registered override; base and ceiling bound the failure backoff.
func New(defaults Limits, base, ceiling time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		retailers: make(map[string]*retailerState),
		defaults:  defaults,
		base:      base,
		ceiling:   ceiling,
		nowFunc:   time.Now,
		randFunc:  rand.Float64,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register sets retailer-specific bucket limits. Unchanged limits are a
// no-op so callers can register on every scrape; changed limits replace
// the bucket and its accumulated tokens. Zero fields fall back to the
// defaults.
func (l *Limiter) Register(retailerID string, lim Limits) {
	if lim.PerMinute <= 0 {
		lim.PerMinute = l.defaults.PerMinute
	}
	if lim.Burst <= 0 {
		lim.Burst = l.defaults.Burst
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.retailers[retailerID]
	if !ok {
		st = &retailerState{}
		l.retailers[retailerID] = st
	}
	st.mu.Lock()
	if st.limits != lim {
		st.bucket = newBucket(lim)
		st.limits = lim
	}
	st.mu.Unlock()
}

// Acquire blocks until the retailer's bucket allows a request or ctx is
// canceled.
func (l *Limiter) Acquire(ctx context.Context, retailerID string) error {
	st := l.state(retailerID)

	st.mu.Lock()
	bucket := st.bucket
	st.mu.Unlock()

	start := l.nowFunc()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for retailer %s: %w", retailerID, err)
	}
	metrics.RateLimitWaitSeconds.Observe(l.nowFunc().Sub(start).Seconds())
	return nil
}

// OnFailure records a failed attempt against the retailer and returns the
// delay before the next try: base * 2^(n-1) with jitter in [0.5, 1.5),
// capped at the ceiling. n is the larger of the task's attempt number and
// the retailer's consecutive-failure streak, and the returned delay never
// shrinks while the streak lasts.
func (l *Limiter) OnFailure(retailerID string, attempt int) time.Duration {
	return l.nextDelay(retailerID, attempt, 0)
}

// OnBlocked records an anti-bot rejection. Escalates one doubling harder
// than a plain failure so blocked retailers cool off sooner.
func (l *Limiter) OnBlocked(retailerID string, attempt int) time.Duration {
	return l.nextDelay(retailerID, attempt, 1)
}

// OnSuccess resets the retailer's failure streak.
func (l *Limiter) OnSuccess(retailerID string) {
	st := l.state(retailerID)
	st.mu.Lock()
	st.streak = 0
	st.lastDelay = 0
	st.mu.Unlock()
}

func (l *Limiter) nextDelay(retailerID string, attempt, extra int) time.Duration {
	st := l.state(retailerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.streak++
	exp := st.streak
	if attempt > exp {
		exp = attempt
	}
	exp += extra

	delay := expBackoff(l.base, l.ceiling, exp)
	delay = time.Duration(float64(delay) * (0.5 + l.randFunc()))
	if delay > l.ceiling {
		delay = l.ceiling
	}
	if delay < st.lastDelay {
		delay = st.lastDelay
	}
	st.lastDelay = delay
	return delay
}

func (l *Limiter) state(retailerID string) *retailerState {
	l.mu.RLock()
	st, ok := l.retailers[retailerID]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok = l.retailers[retailerID]; ok {
		return st
	}
	st = &retailerState{bucket: newBucket(l.defaults), limits: l.defaults}
	l.retailers[retailerID] = st
	return st
}

func newBucket(lim Limits) *rate.Limiter {
	perMinute := lim.PerMinute
	if perMinute <= 0 {
		perMinute = 1
	}
	burst := lim.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// expBackoff doubles base exp-1 times, stopping at ceiling.
func expBackoff(base, ceiling time.Duration, exp int) time.Duration {
	delay := base
	for i := 1; i < exp; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
