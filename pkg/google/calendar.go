package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/harrisonrobin/jarvis/pkg/colors"
	"github.com/harrisonrobin/jarvis/pkg/index"
	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/harrisonrobin/jarvis/pkg/overdue"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// DefaultMaxResults bounds ListEvents when the caller gives no limit.
const DefaultMaxResults = 10

// CalendarClient is a Google Calendar API client bound to one calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	timeZone   string
	index      *index.EventIndex
	overdue    *overdue.Table
	palette    colors.Palette
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*CalendarClient)

// WithIndex remembers which event mirrors which task, saving a search per sync.
func WithIndex(idx *index.EventIndex) Option {
	return func(c *CalendarClient) { c.index = idx }
}

// WithOverdueTable tracks pending task events for MarkOverdue.
func WithOverdueTable(t *overdue.Table) Option {
	return func(c *CalendarClient) { c.overdue = t }
}

func WithPalette(p colors.Palette) Option {
	return func(c *CalendarClient) { c.palette = p }
}

func WithTimeZone(tz string) Option {
	return func(c *CalendarClient) {
		if tz != "" {
			c.timeZone = tz
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *CalendarClient) { c.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *CalendarClient) { c.log = log }
}

func NewCalendarClient(srv *calendar.Service, calendarID string, opts ...Option) *CalendarClient {
	c := &CalendarClient{
		srv:        srv,
		calendarID: calendarID,
		timeZone:   DefaultTimeZone,
		palette:    colors.Default(),
		now:        time.Now,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CalendarClient) CalendarID() string { return c.calendarID }

// apiError wraps a Calendar API failure. Missing events are ErrNotFound, anything
// else is ErrExternalService.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %s: %w", model.ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrExternalService, op, err)
}

// ListEvents returns single events ordered by start time between startDate and
// endDate (YYYY-MM-DD, both optional). Without a start it lists from now; without
// an end it lists a week.
func (c *CalendarClient) ListEvents(ctx context.Context, startDate, endDate string, maxResults int64) ([]*calendar.Event, error) {
	start := c.now().UTC()
	if startDate != "" {
		d, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", model.ErrValidation)
		}
		start = d
	}
	end := start.AddDate(0, 0, 7)
	if endDate != "" {
		d, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("%w: end_date must be YYYY-MM-DD", model.ErrValidation)
		}
		end = d.Add(24*time.Hour - time.Second)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	events, err := c.srv.Events.List(c.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("list events", err)
	}
	if events.Items == nil {
		return []*calendar.Event{}, nil
	}
	return events.Items, nil
}

func (c *CalendarClient) CreateEvent(ctx context.Context, req EventRequest) (*calendar.Event, error) {
	ev, err := NewEvent(req, c.timeZone)
	if err != nil {
		return nil, err
	}
	created, err := c.srv.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return nil, apiError("create event", err)
	}
	c.log.Info("calendar event created", "id", created.Id, "summary", created.Summary)
	return created, nil
}

// UpdateEvent fetches the event, applies the non-empty fields of p and writes the
// whole event back.
func (c *CalendarClient) UpdateEvent(ctx context.Context, eventID string, p EventPatch) (*calendar.Event, error) {
	ev, err := c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, apiError("get event", err)
	}
	if err := p.apply(ev, c.timeZone); err != nil {
		return nil, err
	}
	updated, err := c.srv.Events.Update(c.calendarID, eventID, ev).Context(ctx).Do()
	if err != nil {
		return nil, apiError("update event", err)
	}
	return updated, nil
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	ev, err := c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, apiError("patch event", err)
	}
	return ev, nil
}

// DeleteEvent deletes an event and forgets any task mapped to it.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	if err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return apiError("delete event", err)
	}
	if c.index != nil {
		if taskID, ok := c.index.TaskFor(eventID); ok {
			c.forget(taskID)
		}
	}
	return nil
}

// GetEventByTaskID searches for the event carrying the task id in its private
// extended properties. It returns nil, nil when there is none.
func (c *CalendarClient) GetEventByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", TaskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("search task event", err)
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

func (c *CalendarClient) findTaskEvent(ctx context.Context, taskID string) (*calendar.Event, error) {
	if c.index != nil {
		if eventID := c.index.Get(taskID); eventID != "" {
			ev, err := c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			if err == nil && ev.Status != "cancelled" {
				return ev, nil
			}
			c.log.Debug("indexed event unavailable, searching", "task", taskID, "event", eventID, "err", err)
		}
	}
	return c.GetEventByTaskID(ctx, taskID)
}

// SyncTask creates the event mirroring task, or patches the existing one when it
// differs. The task must have a due date.
func (c *CalendarClient) SyncTask(ctx context.Context, task model.Task) (*calendar.Event, error) {
	target, err := taskEvent(task, c.timeZone, c.palette.For(task), c.now())
	if err != nil {
		return nil, err
	}

	existing, err := c.findTaskEvent(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	var ev *calendar.Event
	switch {
	case existing == nil:
		if ev, err = c.srv.Events.Insert(c.calendarID, target).Context(ctx).Do(); err != nil {
			return nil, apiError("create task event", err)
		}
		c.log.Info("task scheduled", "task", task.ID, "event", ev.Id)
	default:
		patch := eventPatch(existing, target)
		if patch == nil {
			ev = existing
			break
		}
		if ev, err = c.PatchEvent(ctx, existing.Id, patch); err != nil {
			return nil, err
		}
		c.log.Info("task event updated", "task", task.ID, "event", ev.Id)
	}

	c.remember(task, ev.Id, target.Summary)
	return ev, nil
}

// UnsyncTask deletes the event mirroring the task, if any.
func (c *CalendarClient) UnsyncTask(ctx context.Context, taskID string) error {
	ev, err := c.findTaskEvent(ctx, taskID)
	if err != nil {
		return err
	}
	if ev != nil {
		if err := c.srv.Events.Delete(c.calendarID, ev.Id).Context(ctx).Do(); err != nil {
			return apiError("delete task event", err)
		}
	}
	c.forget(taskID)
	return nil
}

// MarkOverdue flags the events of tasks whose due day has passed by prefixing
// their title with "! ". It returns how many events were patched.
func (c *CalendarClient) MarkOverdue(ctx context.Context) (int, error) {
	if c.overdue == nil {
		return 0, nil
	}

	var errs []error
	patched := 0
	for _, e := range c.overdue.Sweep(c.now()) {
		if _, err := c.PatchEvent(ctx, e.EventID, &calendar.Event{Summary: "! " + e.Summary}); err != nil {
			errs = append(errs, err)
			continue
		}
		patched++
	}
	if err := c.overdue.Save(); err != nil {
		c.log.Warn("could not save overdue table", "err", err)
	}
	return patched, errors.Join(errs...)
}

// RunOverdueSweep calls MarkOverdue every interval until ctx is done.
func (c *CalendarClient) RunOverdueSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.MarkOverdue(ctx)
			if err != nil {
				c.log.Warn("overdue sweep failed", "err", err)
			}
			if n > 0 {
				c.log.Info("flagged overdue task events", "count", n)
			}
		}
	}
}

func (c *CalendarClient) remember(task model.Task, eventID, summary string) {
	if c.index != nil {
		c.index.Set(task.ID, eventID)
		if err := c.index.Save(); err != nil {
			c.log.Warn("could not save event index", "err", err)
		}
	}
	if c.overdue != nil {
		var due time.Time
		if !task.Completed && task.HasDueDate() && !dayBefore(task.DueDate.Time, c.now()) {
			due = task.DueDate.Time
		}
		c.overdue.Track(task.ID, eventID, summary, due)
		if err := c.overdue.Save(); err != nil {
			c.log.Warn("could not save overdue table", "err", err)
		}
	}
}

func (c *CalendarClient) forget(taskID string) {
	if c.index != nil {
		c.index.Remove(taskID)
		if err := c.index.Save(); err != nil {
			c.log.Warn("could not save event index", "err", err)
		}
	}
	if c.overdue != nil {
		c.overdue.Remove(taskID)
		if err := c.overdue.Save(); err != nil {
			c.log.Warn("could not save overdue table", "err", err)
		}
	}
}
