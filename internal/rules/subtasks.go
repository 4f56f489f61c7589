package rules

import (
	"context"
	"strings"
)

// RecurringPurgeSubtasks deletes the open subtasks under a recurring task
// when it completes. Descendants are discovered from the project's active
// tasks, so already-completed subtasks are untouched.
type RecurringPurgeSubtasks struct{}

func (RecurringPurgeSubtasks) Name() string { return "recurring_purge_subtasks_on_completion" }

func (RecurringPurgeSubtasks) Matches(event TodoistWebhookEvent) bool {
	return completedTaskEvent(event)
}

func (RecurringPurgeSubtasks) Plan(ctx context.Context, rc RuleContext, event TodoistWebhookEvent) ([]Action, map[string]any, error) {
	if event.TaskID == nil {
		return nil, map[string]any{"reason": "missing_task_id"}, nil
	}
	taskID := *event.TaskID
	if strOf(event.ProjectID) == "" {
		return nil, map[string]any{"reason": "missing_project_id", "task_id": taskID}, nil
	}

	parent, err := rc.Todoist.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if !isRecurring(parent) {
		return nil, map[string]any{"reason": "not_recurring", "task_id": taskID}, nil
	}

	tasks, err := rc.Todoist.ListActiveTasksForProject(ctx, *event.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	byParent := make(map[string][]string)
	for _, t := range tasks {
		if t.ID == "" || t.ParentID == nil {
			continue
		}
		parentID := strings.TrimSpace(*t.ParentID)
		if parentID == "" {
			continue
		}
		byParent[parentID] = append(byParent[parentID], t.ID)
	}

	var descendants []string
	stack := []string{taskID}
	seen := make(map[string]struct{})
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range byParent[cur] {
			if child == taskID {
				continue
			}
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			descendants = append(descendants, child)
			stack = append(stack, child)
		}
	}

	// Reverse discovery order so leaves delete before their parents.
	actions := make([]Action, 0, len(descendants))
	for i := len(descendants) - 1; i >= 0; i-- {
		actions = append(actions, Action{
			Type:       ActionDeleteTask,
			TargetType: "task",
			TargetID:   descendants[i],
		})
	}

	capHit := false
	if len(actions) > rc.Config.MaxDeleteSubtasks {
		actions = actions[:rc.Config.MaxDeleteSubtasks]
		capHit = true
	}

	return actions, map[string]any{
		"task_id":        taskID,
		"is_recurring":   true,
		"subtasks_found": len(descendants),
		"delete_count":   len(actions),
		"cap_hit":        capHit,
		"dry_run":        rc.Config.DryRun,
	}, nil
}
