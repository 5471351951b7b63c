package ics

import (
	"context"
	"strings"
	"time"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
)

// UntitledEvent replaces an empty SUMMARY.
const UntitledEvent = "Ingen titel"

// Calendar is one configured feed bound to a Fetcher.
type Calendar struct {
	fetcher *Fetcher
	src     Source
	loc     *time.Location
}

// NewCalendar binds src to f. Timed events are converted into loc.
func NewCalendar(f *Fetcher, src Source, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{fetcher: f, src: src, loc: loc}
}

func (c *Calendar) ID() string { return c.src.ID }

// FetchEvents downloads the feed and returns the occurrences overlapping
// window, minus excluded titles.
func (c *Calendar) FetchEvents(ctx context.Context, window model.Window) ([]model.CalendarEvent, error) {
	res, err := c.fetcher.Fetch(ctx, c.src)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseICS(c.src, res.Body)
	if err != nil {
		return nil, upstreamErr(c.src, err)
	}
	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: c.loc,
		RangeStart:      window.Start,
		RangeEnd:        window.End,
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.CalendarEvent, 0, len(expanded.Events))
	for _, ev := range expanded.Events {
		if excluded(ev.Title, c.src.ExcludeWords) {
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("calendar events", "id", c.src.ID, "events", len(events), "excluded", len(expanded.Events)-len(events))
	return events, nil
}

func excluded(title string, words []string) bool {
	lower := strings.ToLower(title)
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
