// Package domain defines the persistence models for webhook receipts,
// recorded action outcomes, and reminder cooldown state. These types are
// mapped with GORM and form the audit trail of the events worker.
package domain

import "time"

// Receipt statuses. A receipt starts in StatusReceived and ends each
// processing attempt in exactly one terminal status.
const (
	StatusReceived          = "received"
	StatusRejectedSignature = "rejected_signature"
	StatusBadRequest        = "bad_request"
	StatusProcessing        = "processing"
	StatusProcessed         = "processed"
	StatusError             = "error"
	StatusIgnoredDisabled   = "ignored_disabled"
	StatusIgnoredAllowlist  = "ignored_allowlist"
)

// Results recorded per executed (or skipped) side effect.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// EventReceipt is the durable record of one webhook delivery, keyed by the
// sender-supplied delivery id. Redelivery of the same id never creates a
// second row; it increments AttemptCount and overwrites the mutable fields.
//
// Fields:
//   - DeliveryID: sender-supplied primary key, never generated locally.
//   - EventName / UserID / TriggeredAt / EntityType / EntityID / ProjectID:
//     denormalized event identity for querying.
//   - Status: one of the Status* constants above.
//   - AttemptCount: 1 on first sight, incremented per redelivery.
//   - LastError: failure message from the most recent errored attempt.
//   - Summary: JSON-encoded outcome metadata written on completion.
//   - PayloadHash: SHA-256 of the raw body, for spotting body drift
//     across redeliveries of the same id.
//   - ReceivedAt: timestamp of first sighting, immutable thereafter.
type EventReceipt struct {
	DeliveryID   string    `json:"delivery_id"            gorm:"type:TEXT NOT NULL;primaryKey"`
	EventName    string    `json:"event_name"             gorm:"type:TEXT NOT NULL;index:idx_receipt_event"`
	UserID       *string   `json:"user_id,omitempty"      gorm:"type:TEXT"`
	TriggeredAt  *string   `json:"triggered_at,omitempty" gorm:"type:TEXT"`
	EntityType   string    `json:"entity_type"            gorm:"type:TEXT NOT NULL"`
	EntityID     *string   `json:"entity_id,omitempty"    gorm:"type:TEXT"`
	ProjectID    *string   `json:"project_id,omitempty"   gorm:"type:TEXT"`
	Status       string    `json:"status"                 gorm:"type:TEXT NOT NULL;index:idx_receipt_status"`
	AttemptCount int       `json:"attempt_count"          gorm:"type:INTEGER NOT NULL;default:1"`
	LastError    *string   `json:"last_error,omitempty"   gorm:"type:TEXT"`
	Summary      *string   `json:"summary,omitempty"      gorm:"type:TEXT"`
	PayloadHash  string    `json:"payload_hash"           gorm:"type:TEXT NOT NULL"`
	ReceivedAt   time.Time `json:"received_at"            gorm:"type:DATETIME NOT NULL;index:idx_receipt_received"`
}

// TableName implements the GORM tabler interface.
func (EventReceipt) TableName() string { return "event_receipts" }

// ActionOutcome records one side effect decided for a delivery. The
// composite key (delivery_id, action_type, target_id) is unique: recording
// the same action for the same delivery again overwrites Result and Meta
// instead of inserting a duplicate row.
//
// Fields:
//   - ID: autoincrement surrogate key; rows are read back in insertion
//     order via this column.
//   - DeliveryID: the receipt this outcome belongs to.
//   - RuleName: rule that planned the action.
//   - ActionType: one of delete_comment, delete_task, notify_webhook.
//   - TargetType / TargetID: the remote entity acted upon.
//   - Result: one of the Result* constants above.
//   - Meta: JSON-encoded action metadata (reasons, counts, payload info).
type ActionOutcome struct {
	ID         uint      `json:"id"             gorm:"primaryKey;autoIncrement"`
	DeliveryID string    `json:"delivery_id"    gorm:"type:TEXT NOT NULL;index:idx_outcome_delivery;uniqueIndex:ux_outcome_delivery_action_target,priority:1"`
	RuleName   string    `json:"rule_name"      gorm:"type:TEXT NOT NULL"`
	ActionType string    `json:"action_type"    gorm:"type:TEXT NOT NULL;uniqueIndex:ux_outcome_delivery_action_target,priority:2"`
	TargetType string    `json:"target_type"    gorm:"type:TEXT NOT NULL"`
	TargetID   string    `json:"target_id"      gorm:"type:TEXT NOT NULL;uniqueIndex:ux_outcome_delivery_action_target,priority:3"`
	Result     string    `json:"result"         gorm:"type:TEXT NOT NULL"`
	Meta       *string   `json:"meta,omitempty" gorm:"type:TEXT"`
	CreatedAt  time.Time `json:"created_at"     gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (ActionOutcome) TableName() string { return "action_outcomes" }

// ReminderNotifyState stores the last confirmed notification time per
// (task, policy mode). It backs the reminder cooldown gate and is advanced
// only after a delivery confirmed by the notification endpoint.
type ReminderNotifyState struct {
	TaskID     string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Mode       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	LastSentAt time.Time `gorm:"type:DATETIME NOT NULL"`
}

// TableName implements the GORM tabler interface.
func (ReminderNotifyState) TableName() string { return "reminder_notify_state" }
