package store

import (
	"context"
	"fmt"
	"time"
)

// PostMessage records a notification message on a channel, optionally scoped
// to a product record.
func (s *Store) PostMessage(ctx context.Context, channel, subject, body string, productID *int64) error {
	_, err := s.q().ExecContext(ctx,
		"INSERT INTO channel_message (channel, subject, body, product_id) VALUES (?, ?, ?, ?)",
		channel, subject, body, productID)
	if err != nil {
		return &WriteError{Op: "post message", Err: err}
	}
	return nil
}

// CountRecentNotifications counts notifications with the same subject and
// channel inside the window, for rate limiting repeats.
func (s *Store) CountRecentNotifications(ctx context.Context, subject, channel string, window time.Duration) (int, error) {
	since := time.Now().UTC().Add(-window)
	var count int
	err := s.q().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notification_history WHERE subject = ? AND channel = ? AND created_at >= ?",
		subject, channel, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent notifications: %w", err)
	}
	return count, nil
}

// RecordNotification appends to the notification history.
func (s *Store) RecordNotification(ctx context.Context, subject, channel string) error {
	_, err := s.q().ExecContext(ctx,
		"INSERT INTO notification_history (subject, channel) VALUES (?, ?)", subject, channel)
	if err != nil {
		return &WriteError{Op: "record notification", Err: err}
	}
	return nil
}

// CleanupNotifications prunes history older than the retention window.
func (s *Store) CleanupNotifications(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	if _, err := s.q().ExecContext(ctx,
		"DELETE FROM notification_history WHERE created_at < ?", cutoff); err != nil {
		return &WriteError{Op: "cleanup notifications", Err: err}
	}
	return nil
}
