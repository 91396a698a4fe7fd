// Package google is the Calendar adapter: it maps event requests and tasks to the
// Google Calendar v3 representation and calls the API.
package google

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/jarvis/pkg/auth"
	"github.com/harrisonrobin/jarvis/pkg/model"
	"google.golang.org/api/calendar/v3"
)

// PrimaryCalendar names the user's main calendar and is used as is.
const PrimaryCalendar = "primary"

// NewClient authenticates and returns a client for the calendar with the given
// name.
func NewClient(ctx context.Context, opts auth.Options, calendarName string, clientOpts ...Option) (*CalendarClient, error) {
	srv, err := auth.GetCalendarService(ctx, opts)
	if err != nil {
		return nil, err
	}
	calendarID, err := ResolveCalendarID(ctx, srv, calendarName)
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(srv, calendarID, clientOpts...), nil
}

// ResolveCalendarID finds a calendar by summary or id in the user's calendar list.
func ResolveCalendarID(ctx context.Context, srv *calendar.Service, calendarName string) (string, error) {
	if calendarName == "" || calendarName == PrimaryCalendar {
		return PrimaryCalendar, nil
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", apiError("list calendars", err)
	}
	for _, item := range calendarList.Items {
		if item.Summary == calendarName || item.Id == calendarName {
			return item.Id, nil
		}
	}
	return "", fmt.Errorf("%w: calendar '%s'", model.ErrNotFound, calendarName)
}
