// Package repo implements the data persistence layer for the receipt
// ledger, backed by GORM. This file provides repository functions for the
// ActionOutcome model, the per-side-effect audit trail.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erauner/autodoist-events/internal/domain"
)

// RecordAction inserts an outcome row for the composite key
// (delivery_id, action_type, target_id), or overwrites result and meta when
// the key already exists. Redelivered work therefore updates its audit row
// in place instead of duplicating it.
func RecordAction(ctx context.Context, db *gorm.DB, deliveryID, ruleName, actionType, targetType, targetID, result string, meta *string) error {
	rec := &domain.ActionOutcome{
		DeliveryID: deliveryID,
		RuleName:   ruleName,
		ActionType: actionType,
		TargetType: targetType,
		TargetID:   targetID,
		Result:     result,
		Meta:       meta,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "delivery_id"}, {Name: "action_type"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"result": result,
			"meta":   meta,
		}),
	}).Create(rec).Error
}

// ListActions returns every outcome recorded for deliveryID in insertion
// order. It returns an empty slice when nothing was recorded. On DB error,
// it returns the error.
func ListActions(ctx context.Context, db *gorm.DB, deliveryID string) ([]domain.ActionOutcome, error) {
	var out []domain.ActionOutcome
	err := db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("id asc").
		Find(&out).Error
	return out, err
}
