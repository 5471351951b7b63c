// Package store persists the meal plan document: categories, the weekday
// mapping, per-week assignments and the selection history.
package store

import (
	"maps"
	"slices"
)

// DefaultHistoryWeeks is used when a document does not set historyWeeks.
const DefaultHistoryWeeks = 3

// Category is a named list of meals.
type Category struct {
	Name  string   `json:"name"`
	Emoji string   `json:"emoji,omitempty"`
	Items []string `json:"meals"`
}

// Has reports whether item is listed in the category.
func (c Category) Has(item string) bool {
	return slices.Contains(c.Items, item)
}

// Assignment is the meal chosen for one date. Meal is nil when the category
// had nothing to offer or the meal was later removed from its category.
type Assignment struct {
	Meal     *string `json:"meal"`
	Category string  `json:"category"`
	// Fallback is set when every item had been used inside the history
	// window and the pick was made from the full list.
	Fallback bool `json:"fallback,omitempty"`
}

// HistoryEntry records the meal served on a date.
type HistoryEntry struct {
	Meal     string `json:"meal"`
	Date     string `json:"date"`
	Category string `json:"category"`
}

// Document is the whole persisted state. Weekday keys are "0" (Sunday) to
// "6" (Saturday); week keys are ISO weeks like "2026-W07".
type Document struct {
	Categories        map[string]Category              `json:"categories"`
	WeekdayCategories map[string]string                `json:"weekdayCategories"`
	WeeklySelections  map[string]map[string]Assignment `json:"weeklySelections"`
	History           []HistoryEntry                   `json:"history"`
	HistoryWeeks      int                              `json:"historyWeeks"`
}

// Empty returns the document used when nothing usable is on disk.
func Empty() Document {
	d := Document{}
	d.normalize()
	return d
}

func (d *Document) normalize() {
	if d.Categories == nil {
		d.Categories = map[string]Category{}
	}
	if d.WeekdayCategories == nil {
		d.WeekdayCategories = map[string]string{}
	}
	if d.WeeklySelections == nil {
		d.WeeklySelections = map[string]map[string]Assignment{}
	}
	if d.History == nil {
		d.History = []HistoryEntry{}
	}
	if d.HistoryWeeks <= 0 {
		d.HistoryWeeks = DefaultHistoryWeeks
	}
	for id, c := range d.Categories {
		if c.Items == nil {
			c.Items = []string{}
			d.Categories[id] = c
		}
	}
}

// Clone returns a deep copy, so a mutation can be prepared and only swapped
// in once it has been saved.
func (d Document) Clone() Document {
	out := Document{
		Categories:        make(map[string]Category, len(d.Categories)),
		WeekdayCategories: maps.Clone(d.WeekdayCategories),
		WeeklySelections:  make(map[string]map[string]Assignment, len(d.WeeklySelections)),
		History:           slices.Clone(d.History),
		HistoryWeeks:      d.HistoryWeeks,
	}
	for id, c := range d.Categories {
		c.Items = slices.Clone(c.Items)
		out.Categories[id] = c
	}
	for week, days := range d.WeeklySelections {
		cp := make(map[string]Assignment, len(days))
		for date, a := range days {
			if a.Meal != nil {
				m := *a.Meal
				a.Meal = &m
			}
			cp[date] = a
		}
		out.WeeklySelections[week] = cp
	}
	out.normalize()
	return out
}
