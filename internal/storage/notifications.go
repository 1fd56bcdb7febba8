package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *sqlStore) EnqueueNotification(ctx context.Context, userID int64, orderID, message string) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`
		INSERT INTO notifications (user_id, order_id, message, sent)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (user_id, order_id) WHERE order_id <> '' DO NOTHING
		RETURNING notification_id`),
		userID, orderID, message,
	).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("enqueue notification: %w", err)
	}

	err = s.db.GetContext(ctx, &id,
		s.q(`SELECT notification_id FROM notifications WHERE user_id = ? AND order_id = ?`),
		userID, orderID)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue notification: %w", err)
	}
	return id, false, nil
}

func (s *sqlStore) GetNotification(ctx context.Context, id int64) (Notification, error) {
	if s == nil || s.db == nil {
		return Notification{}, ErrDisabled
	}
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT `+notificationColumns+` FROM notifications WHERE notification_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return row.toNotification(), nil
}

func (s *sqlStore) GetPendingNotifications(ctx context.Context) ([]Notification, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		s.q(`SELECT `+notificationColumns+` FROM notifications WHERE sent = ? ORDER BY notification_id`),
		int(NotificationPending))
	if err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNotification())
	}
	return out, nil
}

// MarkNotificationSent and MarkNotificationFailed only move a pending row;
// a second transition affects zero rows.
func (s *sqlStore) MarkNotificationSent(ctx context.Context, id int64) (int64, error) {
	return s.markNotification(ctx, id, NotificationSent)
}

func (s *sqlStore) MarkNotificationFailed(ctx context.Context, id int64) (int64, error) {
	return s.markNotification(ctx, id, NotificationFailed)
}

func (s *sqlStore) markNotification(ctx context.Context, id int64, to NotificationStatus) (int64, error) {
	return s.exec(ctx, "mark notification "+to.String(),
		`UPDATE notifications SET sent = ? WHERE notification_id = ? AND sent = ?`,
		int(to), id, int(NotificationPending))
}
