// Package repo implements the data persistence layer for the receipt
// ledger, backed by GORM. This file provides small aggregate/statistics
// queries used primarily for conditional responses (e.g., ETag generation)
// in the HTTP layer. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/erauner/autodoist-events/internal/domain"
)

// ReceiptsStats returns aggregate metadata for the receipt ledger: the total
// number of rows and the maximum ReceivedAt timestamp among them.
//
// When the ledger is empty, the returned count is 0 and maxReceivedAt is nil.
//
// Return values:
//   - count:         total receipts
//   - maxReceivedAt: pointer to the greatest ReceivedAt, or nil if no rows
//   - err:           database error, if any
func ReceiptsStats(ctx context.Context, db *gorm.DB) (count int64, maxReceivedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.EventReceipt{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest received_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		ReceivedAt time.Time
	}
	if err = q.Select("received_at").Order("received_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.ReceivedAt, nil
}
