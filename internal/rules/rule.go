// Package rules holds the declarative automations evaluated against inbound
// Todoist webhook events. A rule only plans side effects; executing them and
// recording outcomes is the pipeline's job, which keeps plans inspectable
// under dry-run.
package rules

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/erauner/autodoist-events/internal/config"
	"github.com/erauner/autodoist-events/internal/todoist"
)

// Action types the executor knows how to perform.
const (
	ActionDeleteComment = "delete_comment"
	ActionDeleteTask    = "delete_task"
	ActionNotifyWebhook = "notify_webhook"
)

// Action is one planned remote side effect.
type Action struct {
	Type       string
	TargetType string
	TargetID   string
	Meta       map[string]any
}

// TaskClient is the slice of the Todoist API that rules read and the
// executor writes. *todoist.Client satisfies it.
type TaskClient interface {
	GetTask(ctx context.Context, taskID string) (*todoist.Task, error)
	ListCommentsForTask(ctx context.Context, taskID string) ([]todoist.Comment, error)
	ListActiveTasksForProject(ctx context.Context, projectID string) ([]todoist.Task, error)
	ListAllActiveTasks(ctx context.Context) ([]todoist.Task, error)
	DeleteComment(ctx context.Context, commentID string) error
	DeleteTask(ctx context.Context, taskID string) error
	PostWebhook(ctx context.Context, endpoint string, payload any, bearerToken string) (int, error)
}

// RuleContext carries the collaborators a rule may use while planning.
type RuleContext struct {
	Config  *config.Config
	DB      *gorm.DB
	Todoist TaskClient
	Now     func() time.Time // test seam; nil means time.Now
}

func (rc RuleContext) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

// Rule matches events and plans actions. Plan returns the actions plus the
// metadata that lands in the receipt summary; a nil action slice with a
// "reason" key is a normal planning outcome, not an error.
type Rule interface {
	Name() string
	Matches(event TodoistWebhookEvent) bool
	Plan(ctx context.Context, rc RuleContext, event TodoistWebhookEvent) ([]Action, map[string]any, error)
}

// Registry returns the rules enabled by flags, in evaluation order.
func Registry(flags config.RuleFlags) []Rule {
	var out []Rule
	if flags.RecurringClearComments {
		out = append(out, RecurringClearComments{})
	}
	if flags.RecurringPurgeSubtasks {
		out = append(out, RecurringPurgeSubtasks{})
	}
	if flags.ReminderNotify {
		out = append(out, ReminderNotify{})
	}
	return out
}

// completedTaskEvent reports whether the event marks a task completion,
// either directly or as an update flagged with the completion intent.
func completedTaskEvent(event TodoistWebhookEvent) bool {
	if event.TaskID == nil {
		return false
	}
	if event.EventName == "item:completed" {
		return true
	}
	return event.EventName == "item:updated" && strOf(event.UpdateIntent) == "item_completed"
}

func strOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func isRecurring(task *todoist.Task) bool {
	return task != nil && task.Due != nil && task.Due.IsRecurring
}

func lowerMarkers(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		out = append(out, strings.ToLower(m))
	}
	return out
}
