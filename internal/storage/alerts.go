package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *sqlStore) CreateAlert(ctx context.Context, d AlertDraft) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if err := d.Validate(); err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`
		INSERT INTO alerts (user_id, action, currency, premium, payment_method, min_amount, max_amount, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		RETURNING alert_id`),
		d.UserID, string(d.Action), d.Currency, d.Premium, d.PaymentMethod,
		d.MinAmount, maxAmountParam(d.MaxAmount), FormatTime(created),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	return id, nil
}

func (s *sqlStore) GetAlertsForUser(ctx context.Context, userID int64, isActive *bool) ([]Alert, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ?`
	args := []any{userID}
	if isActive != nil {
		query += ` AND is_active = ?`
		args = append(args, boolInt(*isActive))
	}
	query += ` ORDER BY alert_id`

	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return toAlerts(rows)
}

func (s *sqlStore) GetAlert(ctx context.Context, userID, alertID int64) (Alert, error) {
	if s == nil || s.db == nil {
		return Alert{}, ErrDisabled
	}
	var row alertRow
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT `+alertColumns+` FROM alerts WHERE user_id = ? AND alert_id = ?`),
		userID, alertID)
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	if err != nil {
		return Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return row.toAlert()
}

func (s *sqlStore) DeleteAlert(ctx context.Context, userID, alertID int64) (int64, error) {
	return s.exec(ctx, "delete alert",
		`DELETE FROM alerts WHERE user_id = ? AND alert_id = ?`, userID, alertID)
}

func (s *sqlStore) SetActive(ctx context.Context, userID, alertID int64, active bool) (int64, error) {
	return s.exec(ctx, "set active",
		`UPDATE alerts SET is_active = ? WHERE user_id = ? AND alert_id = ? AND is_active = ?`,
		boolInt(active), userID, alertID, boolInt(!active))
}

func (s *sqlStore) SetActiveAll(ctx context.Context, userID int64, active bool) (int64, error) {
	return s.exec(ctx, "set active all",
		`UPDATE alerts SET is_active = ? WHERE user_id = ? AND is_active = ?`,
		boolInt(active), userID, boolInt(!active))
}

func (s *sqlStore) ExtendExpiry(ctx context.Context, userID, alertID int64, days int, now time.Time) (int64, error) {
	return s.exec(ctx, "extend alert",
		`UPDATE alerts SET created_at = ?, is_active = 1 WHERE user_id = ? AND alert_id = ?`,
		FormatTime(ExtendedCreatedAt(now, days)), userID, alertID)
}

func (s *sqlStore) GetExpiredActiveAlerts(ctx context.Context, cutoff time.Time) ([]Alert, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var rows []alertRow
	err := s.db.SelectContext(ctx, &rows,
		s.q(`SELECT `+alertColumns+` FROM alerts WHERE is_active = 1 AND created_at < ? ORDER BY alert_id`),
		FormatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("expired alerts: %w", err)
	}
	return toAlerts(rows)
}

func (s *sqlStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
