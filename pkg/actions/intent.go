// Package actions turns assistant replies into the side effects they announce.
package actions

type Type string

const (
	TypeTask          Type = "task"
	TypeReminder      Type = "reminder"
	TypeCalendarEvent Type = "calendar_event"
)

// Types lists every intent type in the order extractors report them.
var Types = []Type{TypeTask, TypeReminder, TypeCalendarEvent}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type Operation string

// OperationCreate is the only operation produced today.
const OperationCreate Operation = "create"

// Intent says a task, reminder or calendar event should be created. It carries no
// parameters; callers decide what to do with it.
type Intent struct {
	Type      Type      `json:"type"`
	Operation Operation `json:"operation"`
}

type Extractor interface {
	// Extract never returns nil, so an empty result serializes as [].
	Extract(text string) []Intent
}

// Cleaner is implemented by extractors whose protocol leaves markup in the reply
// that should not reach the user.
type Cleaner interface {
	Clean(text string) string
}
