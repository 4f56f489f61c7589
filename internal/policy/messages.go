package policy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var modeTitler = cases.Title(language.AmericanEnglish)

// HumanizeMode turns a mode constant into a headline, for example
// ACTIVE_FOCUS_PREP_WINDOW into "Active Focus Prep Window".
func HumanizeMode(mode string) string {
	return modeTitler.String(strings.ReplaceAll(strings.ToLower(mode), "_", " "))
}

// BuildMessage renders the outbound nudge text for a notify decision. Skip
// decisions render empty; callers should not build messages for them.
func BuildMessage(d Decision, in Input) string {
	if !d.ShouldNotify {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", HumanizeMode(d.Mode))
	task := subjectTask(d, in)

	switch d.Mode {
	case ModeActiveFocus:
		fmt.Fprintf(&b, "Stay with %q until it is done or consciously dropped.", taskTitle(task))
	case ModePrepWindow:
		fmt.Fprintf(&b, "%q is coming up but not due yet. Use this window to set up what it needs.", taskTitle(task))
	case ModeReminderDirect:
		fmt.Fprintf(&b, "Reminder fired for %q. Decide now: act on it or reschedule it.", taskTitle(task))
	case ModeNoFocusTether:
		fmt.Fprintf(&b, "No focus task is active. Pick one: %s.", candidateList(d, in))
	default:
		fmt.Fprintf(&b, "Heads up on %q.", taskTitle(task))
	}

	if task != nil {
		if task.DueDatetimeLocal != nil {
			fmt.Fprintf(&b, " Due %s.", task.DueDatetimeLocal.Format("Mon 15:04"))
		} else if task.DueDate != nil {
			fmt.Fprintf(&b, " Due %s.", task.DueDate.Format("Mon Jan 2"))
		}
		if task.URL != "" {
			b.WriteString(" ")
			b.WriteString(task.URL)
		}
	}
	return b.String()
}

// BuildHookPayload assembles the downstream hook body around a rendered
// message. An empty recipient is omitted so the hook falls back to its own
// default routing.
func BuildHookPayload(message, to, channel, name string) map[string]any {
	payload := map[string]any{
		"message": message,
		"channel": channel,
		"name":    name,
	}
	if to != "" {
		payload["to"] = to
	}
	return payload
}

// subjectTask picks the task the message is about: the reminder task when it
// matches the decision, then the decided focus task, then the first focus
// candidate.
func subjectTask(d Decision, in Input) *TaskContext {
	if in.ReminderTask != nil && (d.FocusTaskID == "" || in.ReminderTask.ID == d.FocusTaskID) {
		return in.ReminderTask
	}
	for i := range in.FocusTasks {
		if in.FocusTasks[i].ID == d.FocusTaskID {
			return &in.FocusTasks[i]
		}
	}
	if len(in.FocusTasks) > 0 {
		return &in.FocusTasks[0]
	}
	return nil
}

func taskTitle(t *TaskContext) string {
	if t == nil {
		return "your task"
	}
	if s := strings.TrimSpace(t.Content); s != "" {
		return s
	}
	return t.ID
}

func candidateList(d Decision, in Input) string {
	byID := make(map[string]string, len(in.NextActionTasks))
	for _, t := range in.NextActionTasks {
		byID[t.ID] = t.Content
	}
	parts := make([]string, 0, len(d.CandidateTaskIDs))
	for _, id := range d.CandidateTaskIDs {
		title := strings.TrimSpace(byID[id])
		if title == "" {
			title = id
		}
		parts = append(parts, fmt.Sprintf("%q", title))
	}
	if len(parts) == 0 {
		return "any next action"
	}
	return strings.Join(parts, ", ")
}
