package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TodoistWebhookEvent is the normalized view of one inbound delivery.
// Optional fields are nil when the payload omits them or carries an empty
// value. Raw keeps the decoded envelope for auditing.
type TodoistWebhookEvent struct {
	DeliveryID   string
	EventName    string
	UserID       *string
	TriggeredAt  *string
	TaskID       *string
	ProjectID    *string
	UpdateIntent *string
	ReminderID   *string
	Raw          map[string]any
}

// ParseEvent normalizes a decoded webhook envelope. The event name falls
// back to the camelCase variant some senders emit. For reminder:fired the
// task id is the reminder's item reference and the reminder's own id is kept
// separately; for everything else the entity id wins over item_id.
func ParseEvent(payload map[string]any, deliveryID string) TodoistWebhookEvent {
	eventName := stringAt(payload, "event_name")
	if eventName == "" {
		eventName = stringAt(payload, "eventName")
	}
	eventData := mapAt(payload, "event_data")
	eventDataExtra := mapAt(payload, "event_data_extra")

	var taskID string
	if eventName == "reminder:fired" {
		taskID = stringAt(eventData, "item_id")
		if taskID == "" {
			taskID = stringAt(eventData, "id")
		}
	} else {
		taskID = stringAt(eventData, "id")
		if taskID == "" {
			taskID = stringAt(eventData, "item_id")
		}
	}

	var reminderID string
	if eventName == "reminder:fired" {
		reminderID = stringAt(eventData, "id")
	}

	return TodoistWebhookEvent{
		DeliveryID:   deliveryID,
		EventName:    eventName,
		UserID:       optional(stringAt(payload, "user_id")),
		TriggeredAt:  optional(stringAt(payload, "triggered_at")),
		TaskID:       optional(taskID),
		ProjectID:    optional(stringAt(eventData, "project_id")),
		UpdateIntent: optional(stringAt(eventDataExtra, "update_intent")),
		ReminderID:   optional(reminderID),
		Raw:          payload,
	}
}

func mapAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

// stringAt coerces a payload value to its string form, returning "" for
// absent or null values. Numbers keep their plain decimal form, which
// matters for numeric Todoist ids (decode with json.Number to avoid float
// rounding on large ids).
func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
