// Package repo implements the data persistence layer for the receipt
// ledger, backed by GORM. This file provides repository helpers for the
// ReminderNotifyState model used to implement notification cooldowns.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erauner/autodoist-events/internal/domain"
)

// GetLastReminderNotify returns the last confirmed notification time for
// (taskID, mode), or nil when none was ever recorded.
func GetLastReminderNotify(ctx context.Context, db *gorm.DB, taskID, mode string) (*time.Time, error) {
	var rec domain.ReminderNotifyState
	err := db.WithContext(ctx).
		Where("task_id = ? AND mode = ?", taskID, mode).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec.LastSentAt, nil
}

// TouchReminderNotify records sentAt as the last confirmed notification for
// (taskID, mode), overwriting any prior value. Callers invoke this only
// after a confirmed successful delivery; the cooldown gate reads it.
func TouchReminderNotify(ctx context.Context, db *gorm.DB, taskID, mode string, sentAt time.Time) error {
	rec := &domain.ReminderNotifyState{
		TaskID:     taskID,
		Mode:       mode,
		LastSentAt: sentAt,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "mode"}},
		DoUpdates: clause.Assignments(map[string]any{"last_sent_at": sentAt}),
	}).Create(rec).Error
}
