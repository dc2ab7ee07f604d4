// Package ratelimit paces browser navigations per host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	logger       *zap.Logger
}

// Config holds rate limiter configuration. A non-positive DefaultRPS
// disables pacing.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	Logger       *zap.Logger
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		logger:       logger,
	}
}

// Wait blocks until a token is available for the locator's host, respecting
// the context.
func (l *Limiter) Wait(ctx context.Context, locator string) error {
	host := hostOf(locator)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.logger.Debug("navigation paced", zap.String("host", host), zap.Duration("waited", waited))
	}
	return nil
}

func hostOf(locator string) string {
	u, err := url.Parse(locator)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
