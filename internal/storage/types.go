package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" / "sqlite3": SQLite database file at Path
//   - "postgres" / "postgresql": server at DSN
//
// An empty Driver means sqlite.
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means 5s
	MaxOpenConns int           // postgres only; 0 means 10
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ParseAction accepts buy/sell in any case.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	}
	return "", false
}

// AnyCurrency disables currency filtering for an alert.
const AnyCurrency = "ANY"

// AlertDraft is a fully collected alert that has not been stored yet.
// MaxAmount is +Inf when the user set no upper bound.
type AlertDraft struct {
	UserID        int64
	Action        Action
	Currency      string
	Premium       float64
	PaymentMethod string
	MinAmount     float64
	MaxAmount     float64
	CreatedAt     time.Time // zero means now
}

func (d AlertDraft) Validate() error {
	if d.Action != ActionBuy && d.Action != ActionSell {
		return fmt.Errorf("invalid action %q", d.Action)
	}
	if strings.TrimSpace(d.Currency) == "" {
		return errors.New("currency is required")
	}
	if math.IsNaN(d.Premium) || math.IsInf(d.Premium, 0) {
		return errors.New("premium must be finite")
	}
	if math.IsNaN(d.MinAmount) || math.IsInf(d.MinAmount, 0) || d.MinAmount < 0 {
		return errors.New("min amount must be a finite number >= 0")
	}
	if math.IsNaN(d.MaxAmount) || math.IsInf(d.MaxAmount, -1) || d.MaxAmount < d.MinAmount {
		return errors.New("max amount must be >= min amount")
	}
	return nil
}

type Alert struct {
	ID            int64
	UserID        int64
	Action        Action
	Currency      string
	Premium       float64
	PaymentMethod string
	MinAmount     float64
	MaxAmount     float64 // +Inf when unbounded
	Active        bool
	CreatedAt     time.Time
}

func (a Alert) Unbounded() bool { return math.IsInf(a.MaxAmount, 1) }

type NotificationStatus int

const (
	NotificationPending NotificationStatus = 0
	NotificationSent    NotificationStatus = 1
	NotificationFailed  NotificationStatus = 2
)

func (s NotificationStatus) String() string {
	switch s {
	case NotificationPending:
		return "pending"
	case NotificationSent:
		return "sent"
	case NotificationFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Notification is a message queued by the order matcher for one user.
type Notification struct {
	ID      int64
	UserID  int64
	OrderID string
	Message string
	Status  NotificationStatus
}

type AlertStore interface {
	CreateAlert(ctx context.Context, d AlertDraft) (int64, error)
	// GetAlertsForUser filters by is_active when isActive is non-nil.
	GetAlertsForUser(ctx context.Context, userID int64, isActive *bool) ([]Alert, error)
	GetAlert(ctx context.Context, userID, alertID int64) (Alert, error)
	DeleteAlert(ctx context.Context, userID, alertID int64) (int64, error)
	// SetActive only touches the row when its state differs from active.
	SetActive(ctx context.Context, userID, alertID int64, active bool) (int64, error)
	SetActiveAll(ctx context.Context, userID int64, active bool) (int64, error)
	// ExtendExpiry resets created_at to now+days and re-enables the alert.
	ExtendExpiry(ctx context.Context, userID, alertID int64, days int, now time.Time) (int64, error)
	GetExpiredActiveAlerts(ctx context.Context, cutoff time.Time) ([]Alert, error)
}

type NotificationStore interface {
	// EnqueueNotification is idempotent per (userID, orderID); created is
	// false when the pair was already queued.
	EnqueueNotification(ctx context.Context, userID int64, orderID, message string) (id int64, created bool, err error)
	GetNotification(ctx context.Context, id int64) (Notification, error)
	GetPendingNotifications(ctx context.Context) ([]Notification, error)
	MarkNotificationSent(ctx context.Context, id int64) (int64, error)
	MarkNotificationFailed(ctx context.Context, id int64) (int64, error)
}

// Store is the persistence API used by the bot.
type Store interface {
	AlertStore
	NotificationStore
	Close() error
}
