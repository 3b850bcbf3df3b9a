package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter paces operations on a fixed tick with optional positive jitter.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	ch       <-chan time.Time
}

// NewLimiter creates a limiter allowing rps operations per second. Jitter is
// clamped to [0, 1]. If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return NewIntervalLimiter(time.Duration(float64(time.Second)/rps), jitter)
}

// NewIntervalLimiter creates a limiter that releases one operation per
// interval. The first tick arrives one interval after construction. A
// non-positive interval yields a limiter that never blocks.
func NewIntervalLimiter(interval time.Duration, jitter float64) *Limiter {
	if interval <= 0 {
		return &Limiter{}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	ticker := time.NewTicker(interval)
	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Interval reports the tick length, zero for a non-blocking limiter.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next tick or until the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
	}

	if l.jitter <= 0 {
		return nil
	}

	// Negative draws fall back to the plain tick; a ticker cannot fire early.
	factor := (rand.Float64() * 2) - 1.0
	extra := time.Duration(float64(l.interval) * l.jitter * factor)
	if extra <= 0 {
		return nil
	}

	timer := time.NewTimer(extra)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases any resources associated with the limiter.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
