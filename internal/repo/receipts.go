// Package repo implements the data persistence layer for the receipt
// ledger, backed by GORM. This file provides repository functions for the
// EventReceipt model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a receipt is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertReceipt(ctx, db, deliveryID, fields) -> (isNew, *domain.EventReceipt, error)
//     First sight inserts with attempt_count=1; redelivery bumps the counter
//     and returns the row as the previous attempt left it.
//
//   - MarkStatus(ctx, db, deliveryID, status, summary, lastErr) -> error
//     Unconditional status/summary/error overwrite; last writer wins.
//
//   - GetReceipt(ctx, db, deliveryID) -> *domain.EventReceipt, error
//     Fetches a single receipt, or ErrNotFound if missing.
//
//   - ListReceipts(ctx, db, limit) -> []domain.EventReceipt, error
//     Returns the most recent receipts, newest first.
//
// This repository is designed to be wrapped by the pipeline service
// (see services.Pipeline) which owns the delivery state machine.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erauner/autodoist-events/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ReceiptFields carries the denormalized identity and initial status written
// on first sight of a delivery. On redelivery none of it survives into the
// stored row; only attempt_count changes.
type ReceiptFields struct {
	EventName   string
	UserID      *string
	TriggeredAt *string
	EntityType  string
	EntityID    *string
	ProjectID   *string
	Status      string
	PayloadHash string
}

// UpsertReceipt inserts a receipt for deliveryID or, if one exists,
// increments attempt_count and leaves the rest of the stored row untouched.
// It returns whether this call performed the first-ever insert, plus the
// full current row; on redelivery the row still carries the status the
// previous attempt ended in, which is what duplicate detection keys on.
func UpsertReceipt(ctx context.Context, db *gorm.DB, deliveryID string, fields ReceiptFields) (bool, *domain.EventReceipt, error) {
	rec := &domain.EventReceipt{
		DeliveryID:   deliveryID,
		EventName:    fields.EventName,
		UserID:       fields.UserID,
		TriggeredAt:  fields.TriggeredAt,
		EntityType:   fields.EntityType,
		EntityID:     fields.EntityID,
		ProjectID:    fields.ProjectID,
		Status:       fields.Status,
		AttemptCount: 1,
		PayloadHash:  fields.PayloadHash,
		ReceivedAt:   time.Now().UTC(),
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "delivery_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}),
	}).Create(rec).Error
	if err != nil {
		return false, nil, err
	}

	var cur domain.EventReceipt
	if err := db.WithContext(ctx).Where("delivery_id = ?", deliveryID).First(&cur).Error; err != nil {
		return false, nil, err
	}
	return cur.AttemptCount == 1, &cur, nil
}

// MarkStatus overwrites the mutable receipt fields for deliveryID. A nil
// summary or lastErr clears the stored column. If no row exists it returns
// ErrNotFound.
func MarkStatus(ctx context.Context, db *gorm.DB, deliveryID, status string, summary, lastErr *string) error {
	res := db.WithContext(ctx).
		Model(&domain.EventReceipt{}).
		Where("delivery_id = ?", deliveryID).
		Updates(map[string]any{
			"status":     status,
			"summary":    summary,
			"last_error": lastErr,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetReceipt fetches a single receipt by delivery id. If the record does not
// exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetReceipt(ctx context.Context, db *gorm.DB, deliveryID string) (*domain.EventReceipt, error) {
	var rec domain.EventReceipt
	err := db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReceipts returns up to limit receipts ordered by first-sight time
// descending (most recent first). It returns an empty slice when the ledger
// is empty. On DB error, it returns the error.
func ListReceipts(ctx context.Context, db *gorm.DB, limit int) ([]domain.EventReceipt, error) {
	var out []domain.EventReceipt
	err := db.WithContext(ctx).
		Order("received_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
