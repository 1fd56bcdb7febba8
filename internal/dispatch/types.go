package dispatch

import (
	"errors"
	"time"
)

const (
	DefaultMaxConcurrent = 1000
	DefaultMinInterval   = 50 * time.Millisecond
	DefaultRetryBase     = 200 * time.Millisecond
	DefaultMaxRetries    = 3
	DefaultSendTimeout   = 10 * time.Second
)

// errAdmission wraps a failure to get a send slot. Nothing was sent, so it
// never counts against the retry budget.
var errAdmission = errors.New("dispatch: not admitted")

// Config controls delivery. Zero fields take the defaults above, except
// MaxRetries where 0 means "no retries".
type Config struct {
	MaxConcurrent int
	MinInterval   time.Duration
	RetryBase     time.Duration
	MaxRetries    int
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeFailed
	// OutcomeSkipped means a chain for the same notification was in flight.
	OutcomeSkipped
	// OutcomeCanceled leaves the notification pending for the next poll.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// Report summarises one poll.
type Report struct {
	Pending  int
	Sent     int
	Failed   int
	Skipped  int
	Canceled int
}

const (
	EventSent   = "dispatch.sent"
	EventRetry  = "dispatch.retry"
	EventFailed = "dispatch.failed"
)

// DeliveryEvent is the Data of dispatch events.
type DeliveryEvent struct {
	ChainID        string        `json:"chain_id"`
	NotificationID int64         `json:"notification_id"`
	UserID         int64         `json:"user_id"`
	Attempt        int           `json:"attempt"`
	Delay          time.Duration `json:"delay,omitempty"`
	Error          string        `json:"error,omitempty"`
}
