package policy

import (
	"strings"
	"testing"
	"time"
)

func TestHumanizeMode(t *testing.T) {
	cases := map[string]string{
		ModeActiveFocus: "Active Focus",
		ModePrepWindow:  "Active Focus Prep Window",
		ModeSkip:        "Skip",
	}
	for mode, want := range cases {
		if got := HumanizeMode(mode); got != want {
			t.Fatalf("HumanizeMode(%s) = %q, want %q", mode, got, want)
		}
	}
}

func TestBuildMessage_SkipIsEmpty(t *testing.T) {
	if msg := BuildMessage(Decision{Mode: ModeSkip, Reason: "outside_allowed_hours"}, Input{}); msg != "" {
		t.Fatalf("skip message = %q", msg)
	}
}

func TestBuildMessage_ActiveFocusWithDueAndURL(t *testing.T) {
	due := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	task := TaskContext{ID: "t1", Content: "Ship release", DueDatetimeLocal: &due, URL: "https://app.todoist.com/task/t1"}
	d := Decision{ShouldNotify: true, Mode: ModeActiveFocus, Reason: "reminder_focus_label", FocusTaskID: "t1"}
	msg := BuildMessage(d, Input{Source: SourceReminder, ReminderTask: &task})

	for _, want := range []string{"[Active Focus]", `"Ship release"`, "Due Mon 14:00.", "https://app.todoist.com/task/t1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}

func TestBuildMessage_PrepWindowDateOnly(t *testing.T) {
	due := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	task := TaskContext{ID: "t1", Content: "Quarterly review", DueDate: &due}
	d := Decision{ShouldNotify: true, Mode: ModePrepWindow, Reason: "reminder_before_due_date", FocusTaskID: "t1"}
	msg := BuildMessage(d, Input{ReminderTask: &task})

	if !strings.Contains(msg, "[Active Focus Prep Window]") || !strings.Contains(msg, "not due yet") {
		t.Fatalf("message %q", msg)
	}
	if !strings.Contains(msg, "Due Fri Mar 6.") {
		t.Fatalf("message %q missing date", msg)
	}
}

func TestBuildMessage_TetherListsCandidates(t *testing.T) {
	in := Input{
		NextActionTasks: []TaskContext{
			{ID: "n1", Content: "Call dentist"},
			{ID: "n2", Content: "  "},
		},
	}
	d := Decision{ShouldNotify: true, Mode: ModeNoFocusTether, Reason: "no_focus_candidates", CandidateTaskIDs: []string{"n1", "n2"}}
	msg := BuildMessage(d, in)

	if !strings.Contains(msg, `"Call dentist"`) {
		t.Fatalf("message %q missing candidate title", msg)
	}
	if !strings.Contains(msg, `"n2"`) {
		t.Fatalf("message %q should fall back to the id for blank content", msg)
	}
}

func TestBuildMessage_FallsBackToTaskID(t *testing.T) {
	task := TaskContext{ID: "t9", Content: "   "}
	d := Decision{ShouldNotify: true, Mode: ModeReminderDirect, Reason: "reminder_direct", FocusTaskID: "t9"}
	if msg := BuildMessage(d, Input{ReminderTask: &task}); !strings.Contains(msg, `"t9"`) {
		t.Fatalf("message %q", msg)
	}
}

func TestBuildHookPayload_OmitsEmptyRecipient(t *testing.T) {
	p := BuildHookPayload("hello", "", "discord", "Focus Follow-up")
	if _, ok := p["to"]; ok {
		t.Fatal("empty recipient should be omitted")
	}
	if p["message"] != "hello" || p["channel"] != "discord" || p["name"] != "Focus Follow-up" {
		t.Fatalf("payload = %+v", p)
	}

	p = BuildHookPayload("hello", "user:123", "discord", "Focus Follow-up")
	if p["to"] != "user:123" {
		t.Fatalf("payload = %+v", p)
	}
}
