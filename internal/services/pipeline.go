// Package services – PipelineService
//
// This file implements the webhook delivery pipeline: authenticate the raw
// body, record a receipt, short-circuit duplicates and gated deliveries,
// then plan and execute rule actions while recording one outcome row per
// side effect. Every terminal path leaves the receipt in a final status;
// nothing is retried here because the sender redelivers with the same id
// and the ledger's idempotent writes keep that safe.
package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/erauner/autodoist-events/internal/config"
	"github.com/erauner/autodoist-events/internal/domain"
	"github.com/erauner/autodoist-events/internal/observability"
	"github.com/erauner/autodoist-events/internal/repo"
	"github.com/erauner/autodoist-events/internal/rules"
	"github.com/erauner/autodoist-events/internal/webhook"
)

// OutcomeKind classifies how a delivery terminated. Handlers map kinds to
// status codes and response bodies.
type OutcomeKind int

const (
	OutcomeRejectedSignature OutcomeKind = iota
	OutcomeBadJSON
	OutcomeMissingEventName
	OutcomeDuplicate
	OutcomeIgnored
	OutcomeProcessed
	OutcomeFailed
)

// DeliveryOutcome is the pipeline's terminal report for one delivery.
// Status is set for OutcomeIgnored; Outcomes for OutcomeProcessed. Err
// carries the internal failure (or a best-effort ledger write failure on
// the reject paths) for the handler to log; it is never sent to clients.
type DeliveryOutcome struct {
	DeliveryID string
	Kind       OutcomeKind
	Status     string
	Outcomes   []map[string]any
	Err        error
}

// PipelineService processes inbound webhook deliveries end to end.
type PipelineService struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Todoist rules.TaskClient
	Rules   []rules.Rule

	// Now is a test seam for the cooldown touch; nil means time.Now.
	Now func() time.Time
}

// NewPipelineService wires the pipeline with the rule set enabled by cfg.
func NewPipelineService(db *gorm.DB, cfg *config.Config, todoist rules.TaskClient) *PipelineService {
	return &PipelineService{
		DB:      db,
		Cfg:     cfg,
		Todoist: todoist,
		Rules:   rules.Registry(cfg.Rules),
	}
}

func (s *PipelineService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ProcessDelivery runs the delivery state machine over one raw body. It
// always returns a terminal outcome; panics are left to the HTTP recovery
// layer.
func (s *PipelineService) ProcessDelivery(ctx context.Context, deliveryID string, rawBody []byte, signature string) *DeliveryOutcome {
	sum := sha256.Sum256(rawBody)
	payloadHash := hex.EncodeToString(sum[:])

	if !webhook.VerifySignature(rawBody, signature, s.Cfg.WebhookSecret) {
		// Persisted despite failing auth, keyed by the sender-supplied id,
		// so replay of forged-signature attempts stays visible.
		_, _, err := repo.UpsertReceipt(ctx, s.DB, deliveryID, unknownReceipt(domain.StatusRejectedSignature, payloadHash))
		return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeRejectedSignature, Status: domain.StatusRejectedSignature, Err: err})
	}

	payload, decodeErr := decodeEnvelope(rawBody)
	if decodeErr != nil {
		_, _, err := repo.UpsertReceipt(ctx, s.DB, deliveryID, unknownReceipt(domain.StatusBadRequest, payloadHash))
		return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeBadJSON, Status: domain.StatusBadRequest, Err: err})
	}

	event := rules.ParseEvent(payload, deliveryID)
	if event.EventName == "" {
		// Nothing identifiable to record.
		return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeMissingEventName})
	}

	isNew, receipt, err := repo.UpsertReceipt(ctx, s.DB, deliveryID, repo.ReceiptFields{
		EventName:   event.EventName,
		UserID:      event.UserID,
		TriggeredAt: event.TriggeredAt,
		EntityType:  "task",
		EntityID:    event.TaskID,
		ProjectID:   event.ProjectID,
		Status:      domain.StatusReceived,
		PayloadHash: payloadHash,
	})
	if err != nil {
		return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeFailed, Err: err})
	}

	// Status survives the upsert, so processed here means a prior attempt
	// already finished this delivery.
	if !isNew && receipt.Status == domain.StatusProcessed {
		return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeDuplicate})
	}

	if ignored := s.applyGates(ctx, deliveryID, event); ignored != nil {
		return s.terminal(ignored)
	}

	outcomes, err := s.runRules(ctx, deliveryID, event)
	if err != nil {
		msg := err.Error()
		if markErr := repo.MarkStatus(ctx, s.DB, deliveryID, domain.StatusError, nil, &msg); markErr != nil {
			err = fmt.Errorf("%w (mark error: %v)", err, markErr)
		}
		return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeFailed, Err: err})
	}
	return s.terminal(&DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeProcessed, Status: domain.StatusProcessed, Outcomes: outcomes})
}

// applyGates checks the static gates in order and returns the terminal
// ignored outcome for the first one that trips, marking the receipt as it
// goes. A nil return means the delivery proceeds to rule evaluation.
func (s *PipelineService) applyGates(ctx context.Context, deliveryID string, event rules.TodoistWebhookEvent) *DeliveryOutcome {
	ignored := func(status string, summary map[string]any) *DeliveryOutcome {
		out := &DeliveryOutcome{DeliveryID: deliveryID, Kind: OutcomeIgnored, Status: status}
		out.Err = repo.MarkStatus(ctx, s.DB, deliveryID, status, jsonString(summary), nil)
		return out
	}

	if !s.Cfg.Enabled {
		return ignored(domain.StatusIgnoredDisabled, map[string]any{"enabled": false})
	}
	userID := deref(event.UserID)
	if len(s.Cfg.AllowedUserIDs) > 0 && !contains(s.Cfg.AllowedUserIDs, userID) {
		return ignored(domain.StatusIgnoredAllowlist, map[string]any{"reason": "user_id"})
	}
	projectID := deref(event.ProjectID)
	if projectID != "" && len(s.Cfg.DeniedProjectIDs) > 0 && contains(s.Cfg.DeniedProjectIDs, projectID) {
		return ignored(domain.StatusIgnoredAllowlist, map[string]any{"reason": "denied_project"})
	}
	if len(s.Cfg.AllowedProjectIDs) > 0 && !contains(s.Cfg.AllowedProjectIDs, projectID) {
		return ignored(domain.StatusIgnoredAllowlist, map[string]any{"reason": "project_id"})
	}
	return nil
}

// runRules marks the receipt processing, evaluates each enabled rule, and
// executes or dry-run-records the planned actions. Any error aborts the
// whole delivery; the caller marks the error status.
func (s *PipelineService) runRules(ctx context.Context, deliveryID string, event rules.TodoistWebhookEvent) ([]map[string]any, error) {
	if err := repo.MarkStatus(ctx, s.DB, deliveryID, domain.StatusProcessing, nil, nil); err != nil {
		return nil, err
	}

	rc := rules.RuleContext{Config: s.Cfg, DB: s.DB, Todoist: s.Todoist, Now: s.Now}
	outcomes := make([]map[string]any, 0, len(s.Rules))
	for _, rule := range s.Rules {
		if !rule.Matches(event) {
			continue
		}
		actions, planMeta, err := rule.Plan(ctx, rc, event)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}

		executed := 0
		for _, action := range actions {
			if s.Cfg.DryRun {
				meta := cloneMeta(action.Meta)
				meta["reason"] = "dry_run"
				if err := repo.RecordAction(ctx, s.DB, deliveryID, rule.Name(), action.Type, action.TargetType, action.TargetID, domain.ResultSkipped, jsonString(meta)); err != nil {
					return nil, err
				}
				observability.ObserveRuleAction(rule.Name(), domain.ResultSkipped)
				continue
			}
			if err := s.executeAction(ctx, action); err != nil {
				observability.ObserveRuleAction(rule.Name(), domain.ResultFailed)
				return nil, fmt.Errorf("rule %s: %s %s: %w", rule.Name(), action.Type, action.TargetID, err)
			}
			executed++
			if err := repo.RecordAction(ctx, s.DB, deliveryID, rule.Name(), action.Type, action.TargetType, action.TargetID, domain.ResultSuccess, jsonString(action.Meta)); err != nil {
				return nil, err
			}
			observability.ObserveRuleAction(rule.Name(), domain.ResultSuccess)
		}

		outcome := map[string]any{"rule": rule.Name()}
		for k, v := range planMeta {
			outcome[k] = v
		}
		outcome["deleted"] = executed
		outcomes = append(outcomes, outcome)
	}

	summary := map[string]any{"rules_triggered": len(outcomes)}
	if len(outcomes) > 0 {
		summary["outcomes"] = outcomes
	}
	if err := repo.MarkStatus(ctx, s.DB, deliveryID, domain.StatusProcessed, jsonString(summary), nil); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// executeAction performs one remote side effect. A confirmed webhook send
// also advances the per-(task, mode) cooldown; deletes and failed sends do
// not touch it.
func (s *PipelineService) executeAction(ctx context.Context, action rules.Action) error {
	switch action.Type {
	case rules.ActionDeleteComment:
		return s.Todoist.DeleteComment(ctx, action.TargetID)
	case rules.ActionDeleteTask:
		return s.Todoist.DeleteTask(ctx, action.TargetID)
	case rules.ActionNotifyWebhook:
		status, err := s.Todoist.PostWebhook(ctx, action.TargetID, action.Meta["payload"], s.Cfg.Reminder.WebhookToken)
		if err != nil {
			return err
		}
		if status < 200 || status > 299 {
			return fmt.Errorf("notification webhook returned status %d", status)
		}
		taskID, _ := action.Meta["task_id"].(string)
		mode, _ := action.Meta["policy_mode"].(string)
		if taskID != "" && mode != "" {
			return repo.TouchReminderNotify(ctx, s.DB, taskID, mode, s.now())
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// terminal tallies the delivery metric before handing the outcome back.
func (s *PipelineService) terminal(out *DeliveryOutcome) *DeliveryOutcome {
	observability.ObserveDelivery(metricStatus(out))
	return out
}

func metricStatus(out *DeliveryOutcome) string {
	switch out.Kind {
	case OutcomeRejectedSignature:
		return domain.StatusRejectedSignature
	case OutcomeBadJSON:
		return domain.StatusBadRequest
	case OutcomeMissingEventName:
		return "missing_event_name"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeIgnored:
		return out.Status
	case OutcomeProcessed:
		return domain.StatusProcessed
	default:
		return domain.StatusError
	}
}

// decodeEnvelope parses the raw body as a single JSON object, keeping
// numbers as json.Number so large numeric ids survive verbatim. Trailing
// non-whitespace content is rejected.
func decodeEnvelope(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing content after JSON envelope")
	}
	return payload, nil
}

func unknownReceipt(status, payloadHash string) repo.ReceiptFields {
	return repo.ReceiptFields{
		EventName:   "unknown",
		EntityType:  "unknown",
		Status:      status,
		PayloadHash: payloadHash,
	}
}

func jsonString(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		fallback := "{}"
		return &fallback
	}
	s := string(b)
	return &s
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
