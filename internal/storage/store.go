package storage

import (
	"database/sql"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	logx "satsalert/pkg/logx"
)

type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// q rebinds a '?' query for the active driver.
func (s *sqlStore) q(query string) string { return s.db.Rebind(query) }

type alertRow struct {
	ID            int64           `db:"alert_id"`
	UserID        int64           `db:"user_id"`
	Action        string          `db:"action"`
	Currency      string          `db:"currency"`
	Premium       float64         `db:"premium"`
	PaymentMethod string          `db:"payment_method"`
	MinAmount     float64         `db:"min_amount"`
	MaxAmount     sql.NullFloat64 `db:"max_amount"`
	IsActive      int             `db:"is_active"`
	CreatedAt     string          `db:"created_at"`
}

const alertColumns = `alert_id, user_id, action, currency, premium, payment_method, min_amount, max_amount, is_active, created_at`

func (r alertRow) toAlert() (Alert, error) {
	created, err := ParseTime(r.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	maxAmount := math.Inf(1)
	if r.MaxAmount.Valid {
		maxAmount = r.MaxAmount.Float64
	}
	return Alert{
		ID:            r.ID,
		UserID:        r.UserID,
		Action:        Action(r.Action),
		Currency:      r.Currency,
		Premium:       r.Premium,
		PaymentMethod: r.PaymentMethod,
		MinAmount:     r.MinAmount,
		MaxAmount:     maxAmount,
		Active:        r.IsActive == 1,
		CreatedAt:     created,
	}, nil
}

func toAlerts(rows []alertRow) ([]Alert, error) {
	out := make([]Alert, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAlert()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// maxAmountParam maps the unbounded +Inf to SQL NULL.
func maxAmountParam(v float64) sql.NullFloat64 {
	if math.IsInf(v, 1) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type notificationRow struct {
	ID      int64  `db:"notification_id"`
	UserID  int64  `db:"user_id"`
	OrderID string `db:"order_id"`
	Message string `db:"message"`
	Sent    int    `db:"sent"`
}

const notificationColumns = `notification_id, user_id, order_id, message, sent`

func (r notificationRow) toNotification() Notification {
	return Notification{
		ID:      r.ID,
		UserID:  r.UserID,
		OrderID: r.OrderID,
		Message: r.Message,
		Status:  NotificationStatus(r.Sent),
	}
}
