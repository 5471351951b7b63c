// Package meals schedules one meal per day from the category mapped to each
// weekday, avoiding meals served recently.
package meals

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
	"weekplanner/internal/store"
)

const (
	DefaultCategory  = "frit"
	CatchAllCategory = "andet"
)

var errUnchanged = errors.New("unchanged")

// Options configures a Planner. Zero values get defaults.
type Options struct {
	Clock            clockwork.Clock
	Location         *time.Location
	DefaultCategory  string
	CatchAllCategory string
	// Rand picks among eligible meals; nil uses the global source.
	Rand *rand.Rand
}

// Planner owns the in-memory meal document. Every change is prepared on a
// copy, saved, and only then made visible, so a failed save leaves the
// previous state in place.
type Planner struct {
	store    store.Store
	clock    clockwork.Clock
	loc      *time.Location
	def      string
	catchAll string
	intn     func(int) int

	mu  sync.Mutex
	doc store.Document
}

// New loads the document from st.
func New(st store.Store, opts Options) (*Planner, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = DefaultCategory
	}
	if opts.CatchAllCategory == "" {
		opts.CatchAllCategory = CatchAllCategory
	}
	intn := rand.IntN
	if opts.Rand != nil {
		intn = opts.Rand.IntN
	}

	doc, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("load meal plan: %w", err)
	}
	return &Planner{
		store:    st,
		clock:    opts.Clock,
		loc:      opts.Location,
		def:      opts.DefaultCategory,
		catchAll: opts.CatchAllCategory,
		intn:     intn,
		doc:      doc,
	}, nil
}

// Today is the current civil date in the planner's time zone.
func (p *Planner) Today() time.Time {
	return Civil(p.clock.Now(), p.loc)
}

// Snapshot returns a copy of the current document.
func (p *Planner) Snapshot() store.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Clone()
}

// Replace swaps in doc, e.g. after the file was edited by hand.
func (p *Planner) Replace(doc store.Document) {
	p.mu.Lock()
	p.doc = doc.Clone()
	p.mu.Unlock()
}

// Reload re-reads the document from the store.
func (p *Planner) Reload() error {
	doc, err := p.store.Load()
	if err != nil {
		return fmt.Errorf("reload meal plan: %w", err)
	}
	p.Replace(doc)
	return nil
}

// mutate applies fn to a copy of the document, prunes it, saves it, and
// swaps it in. If fn returns errUnchanged nothing is saved.
func (p *Planner) mutate(fn func(doc *store.Document) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.doc.Clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	today := p.Today()
	pruneSelections(&next, today)
	pruneHistory(&next, today)
	if err := p.store.Save(next); err != nil {
		return fmt.Errorf("save meal plan: %w", err)
	}
	p.doc = next
	return nil
}

// GenerateWeek fills the week containing weekStart. A week that already has
// assignments is returned unchanged. Only the retained weeks (last week
// through two weeks ahead) can be generated.
func (p *Planner) GenerateWeek(weekStart time.Time) (map[string]store.Assignment, error) {
	monday := WeekStart(weekStart)
	key := WeekKey(monday)
	if !retainedWeeks(p.Today())[key] {
		return nil, model.NewValidationError("week", fmt.Sprintf("week %s is outside the planned weeks", key))
	}

	var out map[string]store.Assignment
	err := p.mutate(func(doc *store.Document) error {
		if existing, ok := doc.WeeklySelections[key]; ok {
			out = existing
			return errUnchanged
		}
		week := p.fillWeek(doc, monday)
		doc.WeeklySelections[key] = week
		out = copyWeek(week)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Planner) fillWeek(doc *store.Document, monday time.Time) map[string]store.Assignment {
	week := make(map[string]store.Assignment, 7)
	window := doc.HistoryWeeks * 7
	for i := range 7 {
		date := monday.AddDate(0, 0, i)
		dateKey := FormatDate(date)
		catID := doc.WeekdayCategories[WeekdayKey(date)]
		if catID == "" {
			catID = p.def
		}

		a := store.Assignment{Category: catID}
		candidates, fallback := eligible(doc.Categories[catID].Items, recentMeals(doc.History, date, window))
		if len(candidates) > 0 {
			meal := candidates[p.intn(len(candidates))]
			a.Meal = &meal
			a.Fallback = fallback
			recordHistory(doc, dateKey, meal, catID)
			if fallback {
				appLog.Info("every meal used recently; picking from full list",
					"date", dateKey, "category", catID, "meal", meal)
			}
		}
		week[dateKey] = a
	}
	appLog.Info("generated meal week", "week", WeekKey(monday))
	return week
}

// EnsureWeeks generates the current and next week if they are missing.
func (p *Planner) EnsureWeeks() error {
	monday := WeekStart(p.Today())
	if _, err := p.GenerateWeek(monday); err != nil {
		return err
	}
	_, err := p.GenerateWeek(monday.AddDate(0, 0, 7))
	return err
}

// Change is the result of a manual assignment.
type Change struct {
	Date     string `json:"date"`
	Meal     string `json:"meal"`
	Category string `json:"category"`
}

// ChangeAssignment sets the meal for date. With no category the category
// listing meal is used, or the catch-all category when none does.
func (p *Planner) ChangeAssignment(date, meal, category string) (Change, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Change{}, model.NewValidationError("date", "invalid date format, use YYYY-MM-DD")
	}
	meal = normalizeName(meal)
	if meal == "" {
		return Change{}, model.NewValidationError("meal", "missing meal")
	}
	if !retainedWeeks(p.Today())[WeekKey(d)] {
		return Change{}, model.NewValidationError("date", "date is outside the planned weeks")
	}

	var ch Change
	err = p.mutate(func(doc *store.Document) error {
		if category == "" {
			category = p.categoryFor(doc, meal)
		} else if _, ok := doc.Categories[category]; !ok {
			return model.NewNotFoundError("category", category)
		}
		key := WeekKey(d)
		if doc.WeeklySelections[key] == nil {
			// Fill the rest of the week first so it is not left partial.
			doc.WeeklySelections[key] = p.fillWeek(doc, WeekStart(d))
		}
		m := meal
		doc.WeeklySelections[key][date] = store.Assignment{Meal: &m, Category: category}
		recordHistory(doc, date, meal, category)
		ch = Change{Date: date, Meal: meal, Category: category}
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	appLog.Info("meal changed", "date", date, "meal", meal, "category", category)
	return ch, nil
}

func (p *Planner) categoryFor(doc *store.Document, meal string) string {
	for _, id := range sortedIDs(doc.Categories) {
		if doc.Categories[id].Has(meal) {
			return id
		}
	}
	return p.catchAll
}

func copyWeek(w map[string]store.Assignment) map[string]store.Assignment {
	out := make(map[string]store.Assignment, len(w))
	for date, a := range w {
		if a.Meal != nil {
			m := *a.Meal
			a.Meal = &m
		}
		out[date] = a
	}
	return out
}
