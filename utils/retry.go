package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"farecraft/models"
)

// RetryPolicy bounds one request flow. Transient failures back off exponentially,
// an auth failure escalates once, anything else stops immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnBackoff observes every delay before it is slept.
	OnBackoff func(retry int, d time.Duration)
}

// DefaultRetryPolicy is 3 attempts, 1s base, 10s cap, jittered.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the delay before retry n (n starts at 1).
// With jitter the delay lies in [d/2, d), so delays strictly increase until the cap.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 1 {
		half := d / 2
		d = half + time.Duration(rand.Int63n(int64(half)))
	}
	return d
}

// Retry runs op under policy p. On an AuthExpired failure it calls escalate once
// (forcing new trust tokens) and retries; a second AuthExpired is returned as is.
// Attempts never exceed MaxAttempts+1.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error), escalate func(ctx context.Context) error, logger *Logger) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	transient := 0
	escalated := false
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("request flow aborted: %w", err)
		}

		res, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("Attempt %d succeeded", attempt)
			}
			return res, nil
		}

		switch models.KindOf(err) {
		case models.KindTransient:
			transient++
			if transient >= maxAttempts {
				return zero, models.Transient(err, "maximum retries exceeded (%d attempts)", transient)
			}
			delay := p.Backoff(transient)
			if p.OnBackoff != nil {
				p.OnBackoff(transient, delay)
			}
			logger.Warn("Attempt %d failed (%v), retrying after %v", attempt, err, delay)
			if serr := sleep(ctx, delay); serr != nil {
				return zero, fmt.Errorf("request flow aborted during backoff: %w", serr)
			}

		case models.KindAuthExpired:
			if escalated || escalate == nil {
				return zero, err
			}
			escalated = true
			logger.Warn("Attempt %d rejected trust tokens (%v), regenerating", attempt, err)
			if eerr := escalate(ctx); eerr != nil {
				return zero, eerr
			}

		default:
			logger.Error("Attempt %d failed permanently: %v", attempt, err)
			return zero, err
		}
	}
}

// SleepContext sleeps for d or until ctx ends
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
