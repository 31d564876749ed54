package db

import (
	"context"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the bookings and notifications tables from the bun
// models. Production databases are migrated with internal/database/migrations;
// this is used by tests and local sqlite runs.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*models.Booking)(nil), (*models.Notification)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table failed: %w", err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_space_window_idx").
		IfNotExists().
		Column("space_id", "start_time", "end_time").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index failed: %w", err)
	}
	return nil
}
