package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/erauner/autodoist-events/internal/config"
	"github.com/erauner/autodoist-events/internal/todoist"
)

type fakeTaskClient struct {
	task    *todoist.Task
	taskErr error

	comments    []todoist.Comment
	commentsErr error

	projectTasks []todoist.Task
	allTasks     []todoist.Task

	deletedComments []string
	deletedTasks    []string

	postedURL     string
	postedPayload any
	postedBearer  string
	postStatus    int
	postErr       error
}

func (f *fakeTaskClient) GetTask(ctx context.Context, taskID string) (*todoist.Task, error) {
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	if f.task != nil {
		return f.task, nil
	}
	return &todoist.Task{ID: taskID, Due: &todoist.Due{IsRecurring: true}}, nil
}

func (f *fakeTaskClient) ListCommentsForTask(ctx context.Context, taskID string) ([]todoist.Comment, error) {
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.comments, nil
}

func (f *fakeTaskClient) ListActiveTasksForProject(ctx context.Context, projectID string) ([]todoist.Task, error) {
	return f.projectTasks, nil
}

func (f *fakeTaskClient) ListAllActiveTasks(ctx context.Context) ([]todoist.Task, error) {
	return f.allTasks, nil
}

func (f *fakeTaskClient) DeleteComment(ctx context.Context, commentID string) error {
	f.deletedComments = append(f.deletedComments, commentID)
	return nil
}

func (f *fakeTaskClient) DeleteTask(ctx context.Context, taskID string) error {
	f.deletedTasks = append(f.deletedTasks, taskID)
	return nil
}

func (f *fakeTaskClient) PostWebhook(ctx context.Context, endpoint string, payload any, bearerToken string) (int, error) {
	f.postedURL = endpoint
	f.postedPayload = payload
	f.postedBearer = bearerToken
	if f.postErr != nil {
		return 0, f.postErr
	}
	if f.postStatus == 0 {
		return 200, nil
	}
	return f.postStatus, nil
}

func ruleConfig() *config.Config {
	return &config.Config{
		KeepMarkers:       []string{"[openclaw:plan]"},
		MaxDeleteComments: 200,
		MaxDeleteSubtasks: 200,
		Reminder: config.ReminderConfig{
			WebhookURL:      "https://hook.example/agent",
			WebhookToken:    "hook-token",
			CooldownMinutes: 60,
			Timezone:        "UTC",
			Channel:         "discord",
			To:              "user:123",
		},
	}
}

func completionEvent(taskID, projectID string) TodoistWebhookEvent {
	return TodoistWebhookEvent{
		DeliveryID: "d1",
		EventName:  "item:completed",
		UserID:     optional("u1"),
		TaskID:     optional(taskID),
		ProjectID:  optional(projectID),
	}
}

func recurringFixture() *fakeTaskClient {
	return &fakeTaskClient{
		task: &todoist.Task{ID: "t1", Due: &todoist.Due{IsRecurring: true}},
		comments: []todoist.Comment{
			{ID: "1", Content: "[openclaw:plan] keep this"},
			{ID: "2", Content: "delete me"},
		},
		projectTasks: []todoist.Task{
			{ID: "parent", ProjectID: "p1"},
			{ID: "c1", ProjectID: "p1", ParentID: strp("parent")},
			{ID: "c2", ProjectID: "p1", ParentID: strp("parent")},
			{ID: "gc1", ProjectID: "p1", ParentID: strp("c1")},
		},
	}
}

func strp(s string) *string { return &s }

func TestRecurringClearComments_Matches(t *testing.T) {
	rule := RecurringClearComments{}

	if !rule.Matches(completionEvent("t1", "p1")) {
		t.Fatal("item:completed should match")
	}

	updated := completionEvent("t1", "p1")
	updated.EventName = "item:updated"
	updated.UpdateIntent = optional("item_completed")
	if !rule.Matches(updated) {
		t.Fatal("item:updated with completion intent should match")
	}

	updated.UpdateIntent = nil
	if rule.Matches(updated) {
		t.Fatal("plain item:updated should not match")
	}

	noTask := completionEvent("t1", "p1")
	noTask.TaskID = nil
	if rule.Matches(noTask) {
		t.Fatal("event without a task id should not match")
	}
}

func TestRecurringClearComments_KeepsMarkersAndDeletesOthers(t *testing.T) {
	rule := RecurringClearComments{}
	rc := RuleContext{Config: ruleConfig(), Todoist: recurringFixture()}

	actions, meta, err := rule.Plan(context.Background(), rc, completionEvent("t1", "p1"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 1 || actions[0].TargetID != "2" {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].Type != ActionDeleteComment || actions[0].TargetType != "comment" {
		t.Fatalf("action shape = %+v", actions[0])
	}
	if meta["kept_count"] != 1 || meta["delete_count"] != 1 || meta["cap_hit"] != false {
		t.Fatalf("meta = %+v", meta)
	}
	if meta["is_recurring"] != true {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestRecurringClearComments_NotRecurring(t *testing.T) {
	rule := RecurringClearComments{}
	client := recurringFixture()
	client.task = &todoist.Task{ID: "t1", Due: &todoist.Due{IsRecurring: false}}
	rc := RuleContext{Config: ruleConfig(), Todoist: client}

	actions, meta, err := rule.Plan(context.Background(), rc, completionEvent("t1", "p1"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 0 || meta["reason"] != "not_recurring" {
		t.Fatalf("actions=%v meta=%+v", actions, meta)
	}
}

func TestRecurringClearComments_CapTruncates(t *testing.T) {
	rule := RecurringClearComments{}
	cfg := ruleConfig()
	cfg.MaxDeleteComments = 1
	client := recurringFixture()
	client.comments = []todoist.Comment{
		{ID: "1", Content: "a"},
		{ID: "2", Content: "b"},
		{ID: "3", Content: "c"},
	}
	rc := RuleContext{Config: cfg, Todoist: client}

	actions, meta, err := rule.Plan(context.Background(), rc, completionEvent("t1", "p1"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 1 || meta["cap_hit"] != true || meta["delete_count"] != 1 {
		t.Fatalf("actions=%d meta=%+v", len(actions), meta)
	}
}

func TestRecurringClearComments_TaskFetchErrorPropagates(t *testing.T) {
	rule := RecurringClearComments{}
	client := &fakeTaskClient{taskErr: errors.New("boom")}
	rc := RuleContext{Config: ruleConfig(), Todoist: client}

	if _, _, err := rule.Plan(context.Background(), rc, completionEvent("t1", "p1")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecurringPurgeSubtasks_PlansRecursiveDeletes(t *testing.T) {
	rule := RecurringPurgeSubtasks{}
	rc := RuleContext{Config: ruleConfig(), Todoist: recurringFixture()}

	actions, meta, err := rule.Plan(context.Background(), rc, completionEvent("parent", "p1"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("actions = %+v", actions)
	}

	order := make(map[string]int, len(actions))
	for i, a := range actions {
		if a.Type != ActionDeleteTask || a.TargetType != "task" {
			t.Fatalf("action shape = %+v", a)
		}
		order[a.TargetID] = i
	}
	for _, id := range []string{"c1", "c2", "gc1"} {
		if _, ok := order[id]; !ok {
			t.Fatalf("missing delete for %s: %+v", id, actions)
		}
	}
	if order["gc1"] > order["c1"] {
		t.Fatalf("grandchild must delete before its parent: %+v", actions)
	}
	if meta["subtasks_found"] != 3 || meta["delete_count"] != 3 || meta["cap_hit"] != false {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestRecurringPurgeSubtasks_RespectsCap(t *testing.T) {
	rule := RecurringPurgeSubtasks{}
	cfg := ruleConfig()
	cfg.MaxDeleteSubtasks = 2
	rc := RuleContext{Config: cfg, Todoist: recurringFixture()}

	actions, meta, err := rule.Plan(context.Background(), rc, completionEvent("parent", "p1"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 2 || meta["cap_hit"] != true {
		t.Fatalf("actions=%d meta=%+v", len(actions), meta)
	}
	if meta["subtasks_found"] != 3 {
		t.Fatalf("subtasks_found should count pre-cap: %+v", meta)
	}
}

func TestRecurringPurgeSubtasks_MissingProject(t *testing.T) {
	rule := RecurringPurgeSubtasks{}
	rc := RuleContext{Config: ruleConfig(), Todoist: recurringFixture()}

	actions, meta, err := rule.Plan(context.Background(), rc, completionEvent("parent", ""))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 0 || meta["reason"] != "missing_project_id" {
		t.Fatalf("actions=%v meta=%+v", actions, meta)
	}
}

func TestRegistry_HonorsFlags(t *testing.T) {
	all := Registry(config.RuleFlags{RecurringClearComments: true, RecurringPurgeSubtasks: true, ReminderNotify: true})
	if len(all) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(all))
	}
	if all[0].Name() != "recurring_clear_comments_on_completion" ||
		all[1].Name() != "recurring_purge_subtasks_on_completion" ||
		all[2].Name() != "reminder_notify" {
		t.Fatalf("unexpected order: %v, %v, %v", all[0].Name(), all[1].Name(), all[2].Name())
	}

	none := Registry(config.RuleFlags{})
	if len(none) != 0 {
		t.Fatalf("expected no rules, got %d", len(none))
	}
}
