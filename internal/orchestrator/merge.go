package orchestrator

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"weekplanner/internal/model"
)

// calendarWindow covers the current and next week: Monday 00:00 of the
// current week in loc, plus 14 days.
func calendarWindow(now time.Time, loc *time.Location) model.Window {
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	return model.Window{Start: start, End: start.AddDate(0, 0, 14)}
}

// compareEvents orders events within a day: color tag, all-day first,
// start, then title and id so the order is total.
func compareEvents(a, b model.CalendarEvent) int {
	if c := strings.Compare(a.ColorTag, b.ColorTag); c != 0 {
		return c
	}
	if a.IsAllDay != b.IsAllDay {
		if a.IsAllDay {
			return -1
		}
		return 1
	}
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return cmp.Or(strings.Compare(a.Title, b.Title), strings.Compare(a.SourceID, b.SourceID), strings.Compare(a.ID, b.ID))
}

func buildCalendarView(events []model.CalendarEvent, now time.Time, loc *time.Location) model.CalendarView {
	if events == nil {
		events = []model.CalendarEvent{}
	}
	slices.SortStableFunc(events, func(a, b model.CalendarEvent) int {
		return cmp.Or(strings.Compare(a.DateKey(loc), b.DateKey(loc)), compareEvents(a, b))
	})

	byDate := make(map[string][]model.CalendarEvent)
	for _, ev := range events {
		key := ev.DateKey(loc)
		byDate[key] = append(byDate[key], ev)
	}

	window := calendarWindow(now, loc)
	weeks := make([]model.WeekInfo, 0, 2)
	for i := range 2 {
		start := window.Start.AddDate(0, 0, 7*i)
		year, week := start.ISOWeek()
		weeks = append(weeks, model.WeekInfo{
			WeekNumber: week,
			Year:       year,
			StartDate:  start.Format(time.DateOnly),
			IsCurrent:  i == 0,
		})
	}

	return model.CalendarView{
		Events:       events,
		EventsByDate: byDate,
		Weeks:        weeks,
		Today:        now.In(loc).Format(time.DateOnly),
		LastUpdated:  now.UTC(),
	}
}

func sliceWeek(view model.CalendarView, offset int, loc *time.Location) model.CalendarWeekView {
	out := model.CalendarWeekView{Events: []model.CalendarEvent{}, LastUpdated: view.LastUpdated}
	if offset < 0 || offset >= len(view.Weeks) {
		return out
	}
	out.WeekInfo = view.Weeks[offset]
	start, err := time.ParseInLocation(time.DateOnly, out.StartDate, loc)
	if err != nil {
		return out
	}
	for i := range 7 {
		out.Events = append(out.Events, view.EventsByDate[start.AddDate(0, 0, i).Format(time.DateOnly)]...)
	}
	return out
}
