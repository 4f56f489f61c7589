package rules

import (
	"context"
	"strings"
)

// RecurringClearComments deletes a recurring task's comments when the task
// completes, so the next occurrence starts clean. Comments whose content
// starts with a configured keep-marker survive.
type RecurringClearComments struct{}

func (RecurringClearComments) Name() string { return "recurring_clear_comments_on_completion" }

func (RecurringClearComments) Matches(event TodoistWebhookEvent) bool {
	return completedTaskEvent(event)
}

func (RecurringClearComments) Plan(ctx context.Context, rc RuleContext, event TodoistWebhookEvent) ([]Action, map[string]any, error) {
	if event.TaskID == nil {
		return nil, map[string]any{"reason": "missing_task_id"}, nil
	}
	taskID := *event.TaskID

	task, err := rc.Todoist.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if !isRecurring(task) {
		return nil, map[string]any{"reason": "not_recurring", "task_id": taskID}, nil
	}

	comments, err := rc.Todoist.ListCommentsForTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	markers := lowerMarkers(rc.Config.KeepMarkers)
	var actions []Action
	kept := 0
	for _, comment := range comments {
		content := strings.ToLower(strings.TrimSpace(comment.Content))
		if hasAnyPrefix(content, markers) {
			kept++
			continue
		}
		actions = append(actions, Action{
			Type:       ActionDeleteComment,
			TargetType: "comment",
			TargetID:   comment.ID,
			Meta:       map[string]any{"task_id": taskID},
		})
	}

	capHit := false
	if len(actions) > rc.Config.MaxDeleteComments {
		actions = actions[:rc.Config.MaxDeleteComments]
		capHit = true
	}

	return actions, map[string]any{
		"task_id":      taskID,
		"is_recurring": true,
		"kept_count":   kept,
		"delete_count": len(actions),
		"cap_hit":      capHit,
		"dry_run":      rc.Config.DryRun,
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
