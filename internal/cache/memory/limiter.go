package memory

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var _ domain.RateLimiter = (*RateLimiter)(nil)

// RateLimiter keeps one token bucket per key. Buckets idle for longer than
// their window are evicted.
type RateLimiter struct {
	buckets *gocache.Cache
}

// NewRateLimiter creates an empty in-process RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: gocache.New(10*time.Minute, 20*time.Minute)}
}

// Allow admits up to limit requests per window for key, refilling evenly.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		return false, fmt.Errorf("memory: rate limit %s: window must be positive", key)
	}
	k := fmt.Sprintf("%s|%d|%d", key, limit, window)
	var l *rate.Limiter
	if v, ok := rl.buckets.Get(k); ok {
		l = v.(*rate.Limiter)
	} else {
		l = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		if err := rl.buckets.Add(k, l, 2*window); err != nil {
			// Lost a race with another caller; use theirs.
			if v, ok := rl.buckets.Get(k); ok {
				l = v.(*rate.Limiter)
			}
		}
	}
	rl.buckets.Set(k, l, 2*window)
	return l.Allow(), nil
}
