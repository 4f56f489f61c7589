// Package services – TriggerService
//
// This file implements the internal policy trigger: an operator-facing dry
// run of the focus policy over the full active task list, optionally
// delivering the resulting nudge. Each run writes an audit receipt under a
// synthetic internal- delivery id so policy behavior stays inspectable
// through the same ledger as webhook traffic, and a confirmed send records
// a notify_webhook outcome under that id. Unlike the reminder rule, a
// trigger send never advances the reminder cooldown.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erauner/autodoist-events/internal/config"
	"github.com/erauner/autodoist-events/internal/domain"
	"github.com/erauner/autodoist-events/internal/policy"
	"github.com/erauner/autodoist-events/internal/repo"
	"github.com/erauner/autodoist-events/internal/rules"
)

// TriggerRequest is the body of an internal trigger call.
type TriggerRequest struct {
	Source  string `json:"source"`
	Deliver bool   `json:"deliver"`
}

// TriggerDelivery reports whether the nudge went out. WebhookStatus is set
// only when a post was attempted and got an HTTP answer. Reason is set only
// when no post was attempted at all.
type TriggerDelivery struct {
	Sent          bool   `json:"sent"`
	WebhookStatus *int   `json:"webhook_status,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// TriggerResult is what the internal endpoint reports.
type TriggerResult struct {
	Decision policy.Decision
	Delivery TriggerDelivery
	AuditID  string
}

// TriggerService evaluates the focus policy outside the webhook path.
type TriggerService struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Todoist rules.TaskClient

	// Now is a test seam; nil means time.Now.
	Now func() time.Time
}

// NewTriggerService wires a TriggerService.
func NewTriggerService(db *gorm.DB, cfg *config.Config, todoist rules.TaskClient) *TriggerService {
	return &TriggerService{DB: db, Cfg: cfg, Todoist: todoist}
}

func (s *TriggerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run evaluates the policy over all active tasks and, when asked and
// allowed, posts the nudge. The returned error covers task listing and
// ledger failures; a failed webhook post is reported as Sent=false with the
// failure kept in the audit summary.
func (s *TriggerService) Run(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = policy.SourceCron
	}

	tasks, err := s.Todoist.ListAllActiveTasks(ctx)
	if err != nil {
		return nil, err
	}

	loc := s.Cfg.Location()
	nowLocal := s.now().In(loc)

	var focus, nextActions []policy.TaskContext
	for i := range tasks {
		tc := rules.NormalizeTask(tasks[i].ID, &tasks[i], loc)
		switch {
		case tc.HasLabel(policy.FocusLabel):
			focus = append(focus, tc)
		case tc.HasLabel(policy.NextActionLabel):
			nextActions = append(nextActions, tc)
		}
	}

	input := policy.Input{
		Source:          source,
		NowLocal:        nowLocal,
		FocusTasks:      focus,
		NextActionTasks: nextActions,
		Config: policy.Config{
			RequireFocusForReminder: s.Cfg.Reminder.RequireFocusLabel,
			AllowedHourStart:        s.Cfg.AllowedHourStart,
			AllowedHourEnd:          s.Cfg.AllowedHourEnd,
		},
	}
	decision := policy.Evaluate(input)

	delivery := TriggerDelivery{}
	summary := map[string]any{"source": source, "decision": decision}
	switch {
	case !decision.ShouldNotify:
		delivery.Reason = "skip_decision"
	case !req.Deliver:
		delivery.Reason = "deliver_not_requested"
	case s.Cfg.Reminder.WebhookURL == "":
		delivery.Reason = "missing_webhook_url"
	case s.Cfg.Reminder.WebhookToken == "":
		delivery.Reason = "missing_webhook_token"
	default:
		channel := s.Cfg.Reminder.Channel
		if channel == "" {
			channel = "discord"
		}
		message := policy.BuildMessage(decision, input)
		payload := policy.BuildHookPayload(message, s.Cfg.Reminder.To, channel, "Focus Follow-up")
		payload["meta"] = map[string]any{
			"source":         "autodoist-events-worker",
			"trigger_source": source,
			"policy_mode":    decision.Mode,
			"policy_reason":  decision.Reason,
			"triggered_at":   nowLocal.Format(time.RFC3339),
		}

		status, postErr := s.Todoist.PostWebhook(ctx, s.Cfg.Reminder.WebhookURL, payload, s.Cfg.Reminder.WebhookToken)
		if postErr != nil {
			summary["webhook_error"] = postErr.Error()
		} else {
			delivery.WebhookStatus = &status
			delivery.Sent = status >= 200 && status <= 299
		}
	}
	summary["delivery"] = delivery

	auditID := "internal-" + uuid.NewString()
	if _, _, err := repo.UpsertReceipt(ctx, s.DB, auditID, repo.ReceiptFields{
		EventName:   "internal:trigger",
		EntityType:  "policy_run",
		Status:      domain.StatusReceived,
		PayloadHash: triggerHash(source, req.Deliver),
	}); err != nil {
		return nil, err
	}
	if err := repo.MarkStatus(ctx, s.DB, auditID, domain.StatusProcessed, jsonString(summary), nil); err != nil {
		return nil, err
	}
	if delivery.Sent {
		meta := map[string]any{
			"trigger_source": source,
			"policy_mode":    decision.Mode,
			"webhook_status": *delivery.WebhookStatus,
		}
		if err := repo.RecordAction(ctx, s.DB, auditID, "internal_trigger", rules.ActionNotifyWebhook, "webhook", s.Cfg.Reminder.WebhookURL, domain.ResultSuccess, jsonString(meta)); err != nil {
			return nil, err
		}
	}

	return &TriggerResult{Decision: decision, Delivery: delivery, AuditID: auditID}, nil
}

func triggerHash(source string, deliver bool) string {
	b, _ := json.Marshal(map[string]any{"source": source, "deliver": deliver})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
