package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// CalendarFeed supplies calendar entries for import.
type CalendarFeed interface {
	Candidates(ctx context.Context, from, to time.Time) ([]models.CalendarCandidate, error)
}

// GoogleCalendarFeed reads entries from one Google calendar.
type GoogleCalendarFeed struct {
	srv        *calendar.Service
	calendarID string
	loc        *time.Location
}

// NewGoogleCalendarFeed creates a feed over calendarID ("primary" when
// empty) using an authorised client. Extra options are passed to the
// calendar service, tests point it at a fake endpoint this way.
func NewGoogleCalendarFeed(ctx context.Context, client *http.Client, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleCalendarFeed, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return &GoogleCalendarFeed{srv: srv, calendarID: calendarID, loc: loc}, nil
}

// Candidates lists the entries starting in [from, to). Recurring entries are
// expanded into single instances. Cancelled entries and ones the user
// declined are left out.
func (f *GoogleCalendarFeed) Candidates(ctx context.Context, from, to time.Time) ([]models.CalendarCandidate, error) {
	var out []models.CalendarCandidate
	call := f.srv.Events.List(f.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			c, ok, err := candidateFromEvent(ev, f.loc)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing calendar %s: %w", f.calendarID, err)
	}
	return out, nil
}

// candidateFromEvent maps one calendar entry. It reports false for entries
// that should not be offered at all.
func candidateFromEvent(ev *calendar.Event, loc *time.Location) (models.CalendarCandidate, bool, error) {
	if ev == nil || ev.Status == "cancelled" || ev.Start == nil || ev.End == nil {
		return models.CalendarCandidate{}, false, nil
	}
	for _, a := range ev.Attendees {
		if a.Self && a.ResponseStatus == "declined" {
			return models.CalendarCandidate{}, false, nil
		}
	}

	c := models.CalendarCandidate{
		TaskHint:    ev.Summary,
		ExternalID:  ev.Id,
		RecurringID: ev.RecurringEventId,
		Busy:        ev.Transparency != "transparent",
	}
	var err error
	if ev.Start.Date != "" {
		c.AllDay = true
		if c.Start, err = time.ParseInLocation("2006-01-02", ev.Start.Date, loc); err != nil {
			return c, false, fmt.Errorf("event %s: start date: %w", ev.Id, err)
		}
		if c.End, err = time.ParseInLocation("2006-01-02", ev.End.Date, loc); err != nil {
			return c, false, fmt.Errorf("event %s: end date: %w", ev.Id, err)
		}
		return c, true, nil
	}
	if c.Start, err = time.Parse(time.RFC3339, ev.Start.DateTime); err != nil {
		return c, false, fmt.Errorf("event %s: start: %w", ev.Id, err)
	}
	if c.End, err = time.Parse(time.RFC3339, ev.End.DateTime); err != nil {
		return c, false, fmt.Errorf("event %s: end: %w", ev.Id, err)
	}
	c.Start = c.Start.In(loc)
	c.End = c.End.In(loc)
	return c, true, nil
}
