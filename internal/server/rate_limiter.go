package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter returns a token bucket holding burst tokens and refilling
// burst tokens per interval. A non-positive burst returns nil, which allow
// treats as unlimited.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 {
		return nil
	}

	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	limit := rate.Limit(float64(cfg.Burst) / interval.Seconds())
	return rate.NewLimiter(limit, cfg.Burst)
}

func allow(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}
