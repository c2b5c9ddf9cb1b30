package utils

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between expensive calls (browser launches)
type RateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	delay    time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new RateLimiter with the given minimum spacing
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{
		delay: delay,
		now:   time.Now,
	}
}

// Wait blocks until enough time has passed since the last call, or ctx ends
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.delay <= 0 {
		r.lastCall = r.now()
		return nil
	}

	elapsed := r.now().Sub(r.lastCall)
	if elapsed < r.delay {
		timer := time.NewTimer(r.delay - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastCall = r.now()
	return nil
}
