// Package policy decides whether and how a focus nudge should be sent for a
// trigger (a fired reminder or a cron fallback sweep). Evaluation is a pure
// function over the task snapshot and the local clock; callers own all I/O.
package policy

import (
	"strings"
	"time"
)

// Decision modes. SKIP carries a reason explaining why nothing fires.
const (
	ModeSkip           = "SKIP"
	ModeActiveFocus    = "ACTIVE_FOCUS"
	ModeReminderDirect = "REMINDER_DIRECT"
	ModeNoFocusTether  = "NO_FOCUS_TETHER"
	ModePrepWindow     = "ACTIVE_FOCUS_PREP_WINDOW"
)

// Trigger sources. Any source other than reminder is treated as a cron-style
// sweep and subject to the allowed-hour window.
const (
	SourceReminder = "reminder"
	SourceCron     = "cron"
)

// Labels with policy meaning.
const (
	FocusLabel      = "focus"
	NextActionLabel = "next_action"
)

// No more than this many candidates are surfaced in a tether nudge.
const maxCandidateIDs = 3

// TaskContext is a normalized task snapshot. Labels must already be
// lower-cased and trimmed; due fields are nil when absent or unparsable.
type TaskContext struct {
	ID               string
	Content          string
	Labels           []string
	ProjectID        string
	DueDate          *time.Time
	DueDatetimeLocal *time.Time
	URL              string
}

// HasLabel reports whether the task carries the given label.
func (t TaskContext) HasLabel(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, l := range t.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Config is the gating sub-configuration for one evaluation. The hour window
// is half-open: a start of 9 and end of 18 allows 09:00 through 17:59.
type Config struct {
	RequireFocusForReminder bool
	AllowedHourStart        int
	AllowedHourEnd          int
}

// Input carries everything an evaluation may read.
type Input struct {
	Source          string
	NowLocal        time.Time
	FocusTasks      []TaskContext
	NextActionTasks []TaskContext
	ReminderTask    *TaskContext
	Config          Config
}

// Decision is the evaluation result. Field names follow the wire shape the
// internal trigger endpoint reports.
type Decision struct {
	ShouldNotify     bool     `json:"should_notify"`
	Mode             string   `json:"mode"`
	Reason           string   `json:"reason"`
	FocusTaskID      string   `json:"focus_task_id,omitempty"`
	CandidateTaskIDs []string `json:"candidate_task_ids,omitempty"`
}

// Evaluate runs the focus policy over in.
//
// Outside the allowed hour window everything skips. On the reminder path the
// fired task notifies directly, or as an active-focus nudge when it carries
// the focus label; RequireFocusForReminder turns the missing label into a
// skip. On the cron path an active focus task wins outright; otherwise
// next-action candidates are only surfaced on even hours so the fallback
// sweep does not nag every slot.
func Evaluate(in Input) Decision {
	hour := in.NowLocal.Hour()
	if hour < in.Config.AllowedHourStart || hour >= in.Config.AllowedHourEnd {
		return Decision{Mode: ModeSkip, Reason: "outside_allowed_hours"}
	}

	if in.Source == SourceReminder {
		if in.ReminderTask == nil {
			return Decision{Mode: ModeSkip, Reason: "reminder_without_task"}
		}
		focus := in.ReminderTask.HasLabel(FocusLabel)
		if in.Config.RequireFocusForReminder && !focus {
			return Decision{Mode: ModeSkip, Reason: "reminder_requires_focus_label"}
		}
		if focus {
			return Decision{
				ShouldNotify: true,
				Mode:         ModeActiveFocus,
				Reason:       "reminder_focus_label",
				FocusTaskID:  in.ReminderTask.ID,
			}
		}
		return Decision{
			ShouldNotify: true,
			Mode:         ModeReminderDirect,
			Reason:       "reminder_direct",
			FocusTaskID:  in.ReminderTask.ID,
		}
	}

	if len(in.FocusTasks) > 0 {
		return Decision{
			ShouldNotify: true,
			Mode:         ModeActiveFocus,
			Reason:       "focus_task_active",
			FocusTaskID:  in.FocusTasks[0].ID,
		}
	}
	if len(in.NextActionTasks) > 0 {
		if hour%2 != 0 {
			return Decision{Mode: ModeSkip, Reason: "no_focus_not_tether_slot"}
		}
		ids := make([]string, 0, maxCandidateIDs)
		for _, t := range in.NextActionTasks {
			ids = append(ids, t.ID)
			if len(ids) == maxCandidateIDs {
				break
			}
		}
		return Decision{
			ShouldNotify:     true,
			Mode:             ModeNoFocusTether,
			Reason:           "no_focus_candidates",
			CandidateTaskIDs: ids,
		}
	}
	return Decision{Mode: ModeSkip, Reason: "no_focus_no_candidates"}
}
