package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds concurrent sends and spaces their starts. A Limiter is
// immutable; reconfiguration swaps in a new one.
type Limiter struct {
	sem  *semaphore.Weighted
	pace *rate.Limiter
}

func NewLimiter(maxConcurrent int, minInterval time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	pace := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		pace = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(maxConcurrent)), pace: pace}
}

// Acquire blocks until a send may start. Waiters are admitted in arrival
// order. The returned release must be called once the send finishes.
//
// Acquire only gives up when ctx is done, so the error it returns is always
// ctx.Err(). A pace slot that would land after the ctx deadline is still
// waited for until the deadline actually passes.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := l.waitPace(ctx); err != nil {
		l.sem.Release(1)
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

func (l *Limiter) waitPace(ctx context.Context) error {
	r := l.pace.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
