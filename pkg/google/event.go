package google

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/harrisonrobin/jarvis/pkg/model"
	"google.golang.org/api/calendar/v3"
)

const (
	// DefaultTimeZone is attached to timed events.
	DefaultTimeZone = "Europe/Paris"

	// TaskIDProperty is the private extended property linking an event to a task.
	TaskIDProperty = "jarvis_task_id"

	dateLayout = "2006-01-02"
)

// EventRequest describes an event to create. Start and End are ISO-8601 strings;
// End may be empty.
type EventRequest struct {
	Summary     string `json:"summary"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// EventPatch lists the fields to change on an existing event. Empty fields are
// left as they are.
type EventPatch struct {
	Summary     string `json:"summary"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// ParseDateTime accepts the ISO-8601 forms the assistant and the web client send.
// Values without an offset are wall-clock times in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	ts, err := model.ParseTimestampIn(strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, err
	}
	return ts.Time, nil
}

// FormatDateTime renders t like ParseDateTime's input: no offset for times in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	layout := "2006-01-02T15:04:05"
	if t.Nanosecond() != 0 {
		layout += ".000000"
	}
	if t.Location() != loc {
		layout += "-07:00"
	}
	return t.Format(layout)
}

func loadZone(tz string) (*time.Location, error) {
	if tz == "" {
		tz = DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q", model.ErrValidation, tz)
	}
	return loc, nil
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func allDay(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{Date: t.Format(dateLayout)}
}

func timed(t time.Time, loc *time.Location) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: FormatDateTime(t, loc), TimeZone: loc.String()}
}

// eventTime picks the all-day form for a timestamp at exactly midnight and the
// timed form otherwise.
func eventTime(t time.Time, loc *time.Location) *calendar.EventDateTime {
	if isMidnight(t) {
		return allDay(t)
	}
	return timed(t, loc)
}

// NewEvent maps req to the Calendar API representation. A start at midnight makes
// an all-day event whose end defaults to the next day; any other start makes a
// timed event in tz lasting one hour unless End says otherwise.
func NewEvent(req EventRequest, tz string) (*calendar.Event, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(req.Summary)
	if summary == "" || strings.TrimSpace(req.Start) == "" {
		return nil, fmt.Errorf("%w: event summary and start time are required", model.ErrValidation)
	}

	start, err := ParseDateTime(req.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("event start: %w", err)
	}

	var end time.Time
	if strings.TrimSpace(req.End) != "" {
		if end, err = ParseDateTime(req.End, loc); err != nil {
			return nil, fmt.Errorf("event end: %w", err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("%w: event ends before it starts", model.ErrValidation)
		}
	}

	ev := &calendar.Event{
		Summary:     summary,
		Description: req.Description,
		Location:    req.Location,
	}
	if isMidnight(start) {
		// All-day ends are exclusive dates.
		endDay := start.AddDate(0, 0, 1)
		if !end.IsZero() && end.Format(dateLayout) > start.Format(dateLayout) {
			endDay = end
		}
		ev.Start = allDay(start)
		ev.End = allDay(endDay)
		return ev, nil
	}

	if end.IsZero() {
		end = start.Add(time.Hour)
	}
	ev.Start = timed(start, loc)
	ev.End = timed(end, loc)
	return ev, nil
}

// apply copies the non-empty fields of p onto ev. Each time is formatted on its
// own, as for a single timestamp.
func (p EventPatch) apply(ev *calendar.Event, tz string) error {
	loc, err := loadZone(tz)
	if err != nil {
		return err
	}
	if p.Summary != "" {
		ev.Summary = p.Summary
	}
	if p.Description != "" {
		ev.Description = p.Description
	}
	if p.Location != "" {
		ev.Location = p.Location
	}
	if p.Start != "" {
		t, err := ParseDateTime(p.Start, loc)
		if err != nil {
			return fmt.Errorf("event start: %w", err)
		}
		ev.Start = eventTime(t, loc)
	}
	if p.End != "" {
		t, err := ParseDateTime(p.End, loc)
		if err != nil {
			return fmt.Errorf("event end: %w", err)
		}
		ev.End = eventTime(t, loc)
	}
	return nil
}

func (p EventPatch) Empty() bool {
	return p == EventPatch{}
}

// taskSummary prefixes the title with ✓ once done and ! once overdue.
func taskSummary(task model.Task, now time.Time) string {
	switch {
	case task.Completed:
		return "✓ " + task.Title
	case task.HasDueDate() && dayBefore(task.DueDate.Time, now):
		return "! " + task.Title
	}
	return task.Title
}

func dayBefore(t, now time.Time) bool {
	return t.Format(dateLayout) < now.Format(dateLayout)
}

// taskEvent builds the event mirroring a task with a due date.
func taskEvent(task model.Task, tz string, colorID string, now time.Time) (*calendar.Event, error) {
	if !task.HasDueDate() {
		return nil, fmt.Errorf("%w: task %s has no due date to schedule", model.ErrValidation, task.ID)
	}

	var desc strings.Builder
	if task.Description != "" {
		desc.WriteString(task.Description)
		desc.WriteString("\n\n")
	}
	status := "pending"
	if task.Completed {
		status = "completed"
	}
	fmt.Fprintf(&desc, "Status: %s\n", status)
	fmt.Fprintf(&desc, "Priority: %s\n", task.Priority)
	fmt.Fprintf(&desc, "ID: %s\n", task.ID)

	ev, err := NewEvent(EventRequest{
		Summary:     taskSummary(task, now),
		Start:       task.DueDate.String(),
		Description: desc.String(),
	}, tz)
	if err != nil {
		return nil, err
	}
	ev.ColorId = colorID
	ev.ExtendedProperties = &calendar.EventExtendedProperties{
		Private: map[string]string{TaskIDProperty: task.ID},
	}
	return ev, nil
}

// eventPatch returns the fields of target that differ from existing, or nil when
// the event is already up to date.
func eventPatch(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}
	if !sameTime(existing.Start, target.Start) || !sameTime(existing.End, target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

func sameTime(a, b *calendar.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date
	}
	// Naive values are wall-clock times in the event's zone.
	loc := time.UTC
	if a.TimeZone == b.TimeZone && a.TimeZone != "" {
		if l, err := time.LoadLocation(a.TimeZone); err == nil {
			loc = l
		}
	}
	ta, errA := ParseDateTime(a.DateTime, loc)
	tb, errB := ParseDateTime(b.DateTime, loc)
	if errA != nil || errB != nil {
		return a.DateTime == b.DateTime
	}
	return ta.Equal(tb)
}
