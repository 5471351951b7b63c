package meals

import (
	"slices"
	"time"

	"weekplanner/internal/store"
)

// recordHistory stores meal as served on date, replacing any entry that
// already exists for that date.
func recordHistory(doc *store.Document, date, meal, category string) {
	for i := range doc.History {
		if doc.History[i].Date == date {
			doc.History[i].Meal = meal
			doc.History[i].Category = category
			return
		}
	}
	doc.History = append(doc.History, store.HistoryEntry{Meal: meal, Date: date, Category: category})
}

// recentMeals returns the meals served within window days of date, on
// either side, not counting date itself.
func recentMeals(history []store.HistoryEntry, date time.Time, window int) map[string]bool {
	recent := make(map[string]bool)
	for _, h := range history {
		d, err := ParseDate(h.Date)
		if err != nil || d.Equal(date) {
			continue
		}
		if delta := daysBetween(date, d); delta >= -window && delta <= window {
			recent[h.Meal] = true
		}
	}
	return recent
}

// eligible returns the items not in recent. When that leaves nothing the full
// list is returned and fallback is true.
func eligible(items []string, recent map[string]bool) (out []string, fallback bool) {
	for _, it := range items {
		if !recent[it] {
			out = append(out, it)
		}
	}
	if len(out) == 0 && len(items) > 0 {
		return slices.Clone(items), true
	}
	return out, false
}

// pruneHistory drops entries older than the history window.
func pruneHistory(doc *store.Document, today time.Time) {
	cutoff := today.AddDate(0, 0, -doc.HistoryWeeks*7)
	doc.History = slices.DeleteFunc(doc.History, func(h store.HistoryEntry) bool {
		d, err := ParseDate(h.Date)
		return err != nil || d.Before(cutoff)
	})
}

// retainedWeeks returns the week keys kept in the plan: last week through
// two weeks ahead.
func retainedWeeks(today time.Time) map[string]bool {
	keep := make(map[string]bool, 4)
	for i := -1; i <= 2; i++ {
		keep[WeekKey(today.AddDate(0, 0, i*7))] = true
	}
	return keep
}

// pruneSelections drops weeks outside retainedWeeks.
func pruneSelections(doc *store.Document, today time.Time) {
	keep := retainedWeeks(today)
	for key := range doc.WeeklySelections {
		if !keep[key] {
			delete(doc.WeeklySelections, key)
		}
	}
}
