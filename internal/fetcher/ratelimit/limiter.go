// Package ratelimit provides a per-host token bucket so repeated fetches
// against one publisher stay polite.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds rate limiter settings.
type Config struct {
	// RPS is the sustained request rate per host. Zero or negative means
	// unlimited.
	RPS float64
	// Burst is the bucket size per host. Values below 1 are raised to 1.
	Burst int
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until the host of rawURL has a token available, or the context
// ends. Unparseable URLs share a single bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
