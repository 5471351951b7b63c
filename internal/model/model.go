package model

import "time"

// CalendarEvent is an immutable snapshot of one upstream event occurrence.
// Identity is (SourceID, ID); recurring events expand into one CalendarEvent
// per instance with the instance start folded into ID.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IsAllDay    bool      `json:"isAllDay"`

	SourceID   string `json:"calendarId"`
	SourceName string `json:"calendarName"`
	ColorTag   string `json:"calendarColor"`
}

// DateKey returns the YYYY-MM-DD of the event start in loc.
func (e CalendarEvent) DateKey(loc *time.Location) string {
	if e.IsAllDay {
		// All-day starts are civil dates; keep them on their own day.
		return e.Start.Format(time.DateOnly)
	}
	return e.Start.In(loc).Format(time.DateOnly)
}

// WeekInfo describes one of the weeks covered by a CalendarView.
type WeekInfo struct {
	WeekNumber int    `json:"weekNumber"`
	Year       int    `json:"year"`
	StartDate  string `json:"startDate"`
	IsCurrent  bool   `json:"isCurrent"`
}

// CalendarView is the merged calendar payload served to display clients.
type CalendarView struct {
	Events       []CalendarEvent            `json:"events"`
	EventsByDate map[string][]CalendarEvent `json:"eventsByDate"`
	Weeks        []WeekInfo                 `json:"weeks"`
	Today        string                     `json:"today,omitempty"`
	LastUpdated  time.Time                  `json:"lastUpdated"`
}

// CalendarWeekView is a single week sliced out of a CalendarView.
type CalendarWeekView struct {
	WeekInfo
	Events      []CalendarEvent `json:"events"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Importance mirrors the Graph task importance values.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// Rank orders importance high < normal < low; unknown values sort as normal.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 0
	case ImportanceLow:
		return 2
	default:
		return 1
	}
}

// Task is one incomplete to-do item.
type Task struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	DueDate    *string    `json:"dueDate"`
	Importance Importance `json:"importance"`
	ListID     string     `json:"listId"`
	ListName   string     `json:"listName"`
	ListColor  string     `json:"listColor"`
}

// TaskView is the tasks payload served to display clients.
type TaskView struct {
	Tasks       []Task    `json:"tasks"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}
