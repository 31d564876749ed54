package db

import (
	"context"

	"ms-booking/internal/models"
)

const inboxSize = 50

// SaveNotification inserts n unless a row with the same dedupe key exists.
// It reports whether the row was new.
func (d *DB) SaveNotification(ctx context.Context, n *models.Notification) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(n).
		On("CONFLICT (dedupe_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, persistence(err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, persistence(err)
	}
	return inserted == 1, nil
}

// NotificationsForUser returns the user's latest in-app notifications,
// newest first.
func (d *DB) NotificationsForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	err := d.Bun.NewSelect().
		Model(&out).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(inboxSize).
		Scan(ctx)
	if err != nil {
		return nil, persistence(err)
	}
	return out, nil
}
