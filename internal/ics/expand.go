package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences; an occurrence is kept when
	// it overlaps the half-open window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded events and the UIDs that were truncated.
type ExpandResult struct {
	Events []model.CalendarEvent
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into one CalendarEvent per
// occurrence inside [RangeStart, RangeEnd). It applies RRULE, EXDATE and
// RECURRENCE-ID overrides. Timed occurrences are converted into
// DisplayLocation; all-day occurrences keep their calendar date.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	allOccurrences := make([]model.CalendarEvent, 0)

	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			allOccurrences = append(allOccurrences, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = allOccurrences
	return result, nil
}

// expandEvent expands a single ParsedEvent (base event) with its possible
// overrides within the given configuration, returning occurrences and whether
// the cap was hit.
func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	// Single non-recurring event
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}

	// Recurring event via RRULE
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.CalendarEvent {
	var out []model.CalendarEvent

	// Quick range check: if event does not intersect [RangeStart, RangeEnd], skip.
	if !timeRangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return out
	}

	baseStart := ev.Start
	baseEnd := ev.End

	// Apply any override whose RECURRENCE-ID matches this start.
	if o, ok := findOverrideForStart(ev, overrides, baseStart); ok {
		baseStart = o.Start
		baseEnd = o.End
		ev = o
	}

	out = append(out, makeOccurrence(ev, baseStart, baseEnd, cfg.DisplayLocation))
	return out
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	out := make([]model.CalendarEvent, 0)
	hitCap := false

	// Create base rule from RawRRule.
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}

	// Ensure Dtstart is set to the event's DTSTART.
	r.DTStart(ev.Start)

	// Build a set so we can apply EXDATE.
	var set rrule.Set
	set.RRule(r)

	// Apply EXDATEs.
	for _, ex := range ev.ExDates {
		// Best effort: align EXDATE location with event's start.
		exInLoc := ex.In(ev.Start.Location())
		set.ExDate(exInLoc)
	}

	// Adjust range into the event's original location for Between().
	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	// Widen the lower bound by the event duration so occurrences that began
	// before the window but still overlap it are included.
	dur := ev.End.Sub(ev.Start)
	occTimes := set.Between(rangeStart.Add(-dur), rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.AddDate(0, 0, max(1, int(dur.Hours()/24)))
		} else {
			occEnd = occStart.Add(dur)
		}
		if !timeRangesOverlap(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}

		baseStart := occStart
		baseEnd := occEnd
		baseEv := ev

		// Apply override if any.
		if o, ok := findOverrideForStart(ev, overrides, occStart); ok {
			baseStart = o.Start
			baseEnd = o.End
			baseEv = o
		}

		out = append(out, makeOccurrence(baseEv, baseStart, baseEnd, cfg.DisplayLocation))
	}

	return out, hitCap
}

// findOverrideForStart finds an override event whose RECURRENCE-ID matches
// the given baseStart (in the base event's timezone) with exact time equality.
func findOverrideForStart(base ParsedEvent, overrides []ParsedEvent, baseStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		// Align recurrence timestamp with base event's location for comparison.
		rid := ov.Recurrence.In(baseStart.Location())
		if rid.Equal(baseStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence builds the CalendarEvent for one occurrence.
func makeOccurrence(ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.CalendarEvent {
	title := ev.Summary
	if title == "" {
		title = UntitledEvent
	}
	out := model.CalendarEvent{
		Title:       title,
		Description: ev.Description,
		Location:    ev.Location,
		IsAllDay:    ev.AllDay,
		SourceID:    ev.Source.ID,
		SourceName:  ev.Source.Name,
		ColorTag:    ev.Source.Color,
	}
	if ev.AllDay {
		out.Start = civilIn(start, displayLoc)
		out.End = civilIn(end, displayLoc)
	} else {
		out.Start = start.In(displayLoc)
		out.End = end.In(displayLoc)
	}

	out.ID = ev.UID
	if ev.RawRRule != "" || ev.IsOverride {
		out.ID = ev.UID + "_" + start.UTC().Format("20060102T150405Z")
	}
	return out
}

// civilIn keeps t's calendar date and moves it to midnight in loc.
func civilIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		// Zero-length events overlap when they start inside the window.
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
