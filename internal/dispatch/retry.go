package dispatch

import (
	"time"

	"github.com/google/uuid"
)

type phase int

const (
	phaseSending phase = iota
	phaseBackoff
	phaseSent
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseSending:
		return "sending"
	case phaseBackoff:
		return "backoff"
	case phaseSent:
		return "sent"
	case phaseFailed:
		return "failed"
	}
	return "unknown"
}

type chainKey struct {
	userID         int64
	notificationID int64
}

// retryState is one delivery chain: sending -> (backoff -> sending)* ->
// sent|failed. attempt counts retries already scheduled.
type retryState struct {
	chainID        string
	notificationID int64
	userID         int64

	maxRetries int
	base       time.Duration

	attempt int
	phase   phase
	nextAt  time.Time
	lastErr error
}

func newRetryState(userID, notificationID int64, maxRetries int, base time.Duration) *retryState {
	return &retryState{
		chainID:        uuid.NewString(),
		notificationID: notificationID,
		userID:         userID,
		maxRetries:     maxRetries,
		base:           base,
		phase:          phaseSending,
	}
}

func (r *retryState) onSuccess() {
	r.phase = phaseSent
	r.lastErr = nil
}

// onFailure moves the chain to backoff and returns the delay before the next
// send, or retry=false when the chain is exhausted.
func (r *retryState) onFailure(err error, now time.Time) (delay time.Duration, retry bool) {
	r.lastErr = err
	if r.attempt >= r.maxRetries {
		r.phase = phaseFailed
		return 0, false
	}
	delay = r.base << r.attempt
	r.attempt++
	r.phase = phaseBackoff
	r.nextAt = now.Add(delay)
	return delay, true
}

// resume is called once the backoff elapsed.
func (r *retryState) resume() {
	if r.phase == phaseBackoff {
		r.phase = phaseSending
	}
}

func (r *retryState) terminal() bool { return r.phase == phaseSent || r.phase == phaseFailed }
