package rules

import (
	"context"
	"strings"
	"time"

	"github.com/erauner/autodoist-events/internal/policy"
	"github.com/erauner/autodoist-events/internal/repo"
	"github.com/erauner/autodoist-events/internal/todoist"
)

// ReminderNotify forwards a fired reminder to the downstream focus hook,
// gated by the focus policy and a per-(task, mode) cooldown. The cooldown
// only advances after a confirmed send, which is the executor's job, so a
// suppressed or dry-run plan never blocks a later real one.
type ReminderNotify struct{}

func (ReminderNotify) Name() string { return "reminder_notify" }

func (ReminderNotify) Matches(event TodoistWebhookEvent) bool {
	return event.EventName == "reminder:fired" && event.TaskID != nil
}

func (ReminderNotify) Plan(ctx context.Context, rc RuleContext, event TodoistWebhookEvent) ([]Action, map[string]any, error) {
	if event.TaskID == nil {
		return nil, map[string]any{"reason": "missing_task_id"}, nil
	}
	taskID := *event.TaskID
	if rc.Config.Reminder.WebhookURL == "" {
		return nil, map[string]any{"reason": "missing_webhook_url", "task_id": taskID}, nil
	}
	if rc.Config.Reminder.WebhookToken == "" {
		return nil, map[string]any{"reason": "missing_webhook_token", "task_id": taskID}, nil
	}

	task, err := rc.Todoist.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	loc := rc.Config.Location()
	taskCtx := NormalizeTask(taskID, task, loc)
	hasFocus := taskCtx.HasLabel(policy.FocusLabel)
	nowLocal := rc.now().In(loc)

	policyCfg := policy.Config{
		RequireFocusForReminder: rc.Config.Reminder.RequireFocusLabel,
		// Reminders bypass the cron quiet-hours window.
		AllowedHourStart: 0,
		AllowedHourEnd:   24,
	}
	decision := policy.Evaluate(policy.Input{
		Source:       policy.SourceReminder,
		NowLocal:     nowLocal,
		ReminderTask: &taskCtx,
		Config:       policyCfg,
	})
	if !decision.ShouldNotify {
		return nil, map[string]any{"reason": decision.Reason, "task_id": taskID, "mode": decision.Mode}, nil
	}

	last, err := repo.GetLastReminderNotify(ctx, rc.DB, taskID, decision.Mode)
	if err != nil {
		return nil, nil, err
	}
	cooldown := time.Duration(rc.Config.Reminder.CooldownMinutes) * time.Minute
	if last != nil && cooldown > 0 && nowLocal.Sub(*last) < cooldown {
		return nil, map[string]any{
			"reason":           "cooldown_active",
			"task_id":          taskID,
			"mode":             decision.Mode,
			"cooldown_minutes": rc.Config.Reminder.CooldownMinutes,
			"last_sent_at_ms":  last.UnixMilli(),
		}, nil
	}

	projectID := strOf(event.ProjectID)
	if projectID == "" {
		projectID = task.ProjectID
	}

	// Pre-due reminders steer prep behavior, not execution, so the message
	// mode may diverge from the policy mode that gated the send.
	messageDecision := decision
	if taskCtx.DueDatetimeLocal != nil && taskCtx.DueDatetimeLocal.After(nowLocal) {
		messageDecision.Mode = policy.ModePrepWindow
		messageDecision.Reason = "reminder_before_due_datetime"
	} else if taskCtx.DueDate != nil && taskCtx.DueDate.After(localMidnight(nowLocal)) {
		messageDecision.Mode = policy.ModePrepWindow
		messageDecision.Reason = "reminder_before_due_date"
	}

	channel := rc.Config.Reminder.Channel
	if channel == "" {
		channel = "discord"
	}
	msgInput := policy.Input{
		Source:       policy.SourceReminder,
		NowLocal:     nowLocal,
		FocusTasks:   []policy.TaskContext{taskCtx},
		ReminderTask: &taskCtx,
		Config:       policyCfg,
	}
	message := policy.BuildMessage(messageDecision, msgInput)
	payload := policy.BuildHookPayload(message, rc.Config.Reminder.To, channel, "Focus Follow-up")
	payload["meta"] = map[string]any{
		"source":         "autodoist-events-worker",
		"event_name":     event.EventName,
		"task_id":        taskID,
		"project_id":     anyOrNil(projectID),
		"reminder_id":    ptrOrNil(event.ReminderID),
		"triggered_at":   ptrOrNil(event.TriggeredAt),
		"policy_mode":    decision.Mode,
		"policy_reason":  decision.Reason,
		"message_mode":   messageDecision.Mode,
		"message_reason": messageDecision.Reason,
	}

	action := Action{
		Type:       ActionNotifyWebhook,
		TargetType: "webhook",
		TargetID:   rc.Config.Reminder.WebhookURL,
		Meta: map[string]any{
			"task_id":          taskID,
			"event_name":       event.EventName,
			"policy_mode":      decision.Mode,
			"message_mode":     messageDecision.Mode,
			"cooldown_minutes": rc.Config.Reminder.CooldownMinutes,
			"payload":          payload,
		},
	}

	return []Action{action}, map[string]any{
		"task_id":          taskID,
		"reminder_id":      ptrOrNil(event.ReminderID),
		"webhook_url_set":  true,
		"has_focus_label":  hasFocus,
		"policy_mode":      decision.Mode,
		"policy_reason":    decision.Reason,
		"message_mode":     messageDecision.Mode,
		"message_reason":   messageDecision.Reason,
		"cooldown_minutes": rc.Config.Reminder.CooldownMinutes,
		"dry_run":          rc.Config.DryRun,
	}, nil
}

// NormalizeTask builds the policy view of a fetched task: labels lower-cased
// and deduplicated, due fields parsed into loc, blank content falling back to
// taskID. Malformed due values read as absent.
func NormalizeTask(taskID string, task *todoist.Task, loc *time.Location) policy.TaskContext {
	content := strings.TrimSpace(task.Content)
	if content == "" {
		content = taskID
	}

	var labels []string
	seen := make(map[string]struct{})
	for _, l := range task.Labels {
		s := strings.ToLower(strings.TrimSpace(l))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		labels = append(labels, s)
	}

	var dueDate, dueDT *time.Time
	if task.Due != nil {
		dueDate = parseDueDate(task.Due.Date)
		dueDT = parseDueDatetime(task.Due.Datetime, loc)
	}

	return policy.TaskContext{
		ID:               taskID,
		Content:          content,
		Labels:           labels,
		ProjectID:        task.ProjectID,
		DueDate:          dueDate,
		DueDatetimeLocal: dueDT,
		URL:              task.URL,
	}
}

func parseDueDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return &d
}

func parseDueDatetime(value string, loc *time.Location) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.In(loc)
		return &t
	}
	// Naive timestamps are read as local wall time.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", v, loc); err == nil {
		return &t
	}
	return nil
}

// localMidnight maps an instant to its calendar date as a UTC midnight,
// comparable with parseDueDate results.
func localMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func anyOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ptrOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
