package meals

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
	"weekplanner/internal/store"
)

const (
	MinHistoryWeeks = 1
	MaxHistoryWeeks = 12
)

var categoryIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func sortedIDs(cats map[string]store.Category) []string {
	return slices.Sorted(maps.Keys(cats))
}

// CategoryInfo is a category together with its id.
type CategoryInfo struct {
	ID string `json:"id"`
	store.Category
}

// Categories lists the categories ordered by display name, Danish collation.
func (p *Planner) Categories() []CategoryInfo {
	doc := p.Snapshot()
	out := make([]CategoryInfo, 0, len(doc.Categories))
	for id, c := range doc.Categories {
		out = append(out, CategoryInfo{ID: id, Category: c})
	}
	col := collate.New(language.Danish)
	slices.SortFunc(out, func(a, b CategoryInfo) int {
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// CreateCategory adds a new category.
func (p *Planner) CreateCategory(id string, c store.Category) (CategoryInfo, error) {
	id = strings.TrimSpace(id)
	if !categoryIDPattern.MatchString(id) {
		return CategoryInfo{}, model.NewValidationError("id", "category id must match [a-z0-9_-]+")
	}
	c.Name = normalizeName(c.Name)
	if c.Name == "" {
		return CategoryInfo{}, model.NewValidationError("name", "missing category name")
	}
	items := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		if it = normalizeName(it); it != "" && !slices.Contains(items, it) {
			items = append(items, it)
		}
	}
	c.Items = items

	err := p.mutate(func(doc *store.Document) error {
		if _, exists := doc.Categories[id]; exists {
			return model.NewValidationError("id", "category "+id+" already exists")
		}
		doc.Categories[id] = c
		return nil
	})
	if err != nil {
		return CategoryInfo{}, err
	}
	appLog.Info("category created", "category", id)
	return CategoryInfo{ID: id, Category: c}, nil
}

// UpdateCategory renames a category or changes its emoji. Empty fields are
// left as they are.
func (p *Planner) UpdateCategory(id, name, emoji string) (CategoryInfo, error) {
	var out store.Category
	err := p.mutate(func(doc *store.Document) error {
		c, ok := doc.Categories[id]
		if !ok {
			return model.NewNotFoundError("category", id)
		}
		if name = normalizeName(name); name != "" {
			c.Name = name
		}
		if emoji != "" {
			c.Emoji = emoji
		}
		doc.Categories[id] = c
		out = c
		return nil
	})
	if err != nil {
		return CategoryInfo{}, err
	}
	return CategoryInfo{ID: id, Category: out}, nil
}

// DeleteCategory removes a category that no weekday is mapped to.
func (p *Planner) DeleteCategory(id string) error {
	err := p.mutate(func(doc *store.Document) error {
		if _, ok := doc.Categories[id]; !ok {
			return model.NewNotFoundError("category", id)
		}
		for day, mapped := range doc.WeekdayCategories {
			if mapped == id {
				return model.NewValidationError("id", "category "+id+" is mapped to weekday "+day)
			}
		}
		delete(doc.Categories, id)
		return nil
	})
	if err != nil {
		return err
	}
	appLog.Info("category deleted", "category", id)
	return nil
}

// AddItem appends item to a category.
func (p *Planner) AddItem(id, item string) (CategoryInfo, error) {
	item = normalizeName(item)
	if item == "" {
		return CategoryInfo{}, model.NewValidationError("meal", "missing meal")
	}
	var out store.Category
	err := p.mutate(func(doc *store.Document) error {
		c, ok := doc.Categories[id]
		if !ok {
			return model.NewNotFoundError("category", id)
		}
		if c.Has(item) {
			return model.NewValidationError("meal", item+" is already in "+id)
		}
		c.Items = append(c.Items, item)
		doc.Categories[id] = c
		out = c
		return nil
	})
	if err != nil {
		return CategoryInfo{}, err
	}
	return CategoryInfo{ID: id, Category: out}, nil
}

// RemoveItem deletes item from a category. Assignments in that category
// that still point at item are cleared to no meal.
func (p *Planner) RemoveItem(id, item string) (CategoryInfo, error) {
	item = normalizeName(item)
	var (
		out     store.Category
		cleared int
	)
	err := p.mutate(func(doc *store.Document) error {
		c, ok := doc.Categories[id]
		if !ok {
			return model.NewNotFoundError("category", id)
		}
		if !c.Has(item) {
			return model.NewNotFoundError("meal", item)
		}
		c.Items = slices.DeleteFunc(c.Items, func(s string) bool { return s == item })
		doc.Categories[id] = c
		out = c

		for _, days := range doc.WeeklySelections {
			for date, a := range days {
				if a.Category == id && a.Meal != nil && *a.Meal == item {
					a.Meal = nil
					a.Fallback = false
					days[date] = a
					cleared++
				}
			}
		}
		return nil
	})
	if err != nil {
		return CategoryInfo{}, err
	}
	appLog.Info("meal removed from category", "category", id, "meal", item, "cleared", cleared)
	return CategoryInfo{ID: id, Category: out}, nil
}

// SetWeekdayMapping maps weekdays ("0" Sunday to "6" Saturday) to category
// ids. Weekdays not in mapping keep their current category.
func (p *Planner) SetWeekdayMapping(mapping map[string]string) (map[string]string, error) {
	var out map[string]string
	err := p.mutate(func(doc *store.Document) error {
		for day, id := range mapping {
			if len(day) != 1 || day[0] < '0' || day[0] > '6' {
				return model.NewValidationError("weekday", "weekday must be 0-6, got "+day)
			}
			if _, ok := doc.Categories[id]; !ok {
				return model.NewValidationError("category", "unknown category "+id)
			}
		}
		maps.Copy(doc.WeekdayCategories, mapping)
		out = maps.Clone(doc.WeekdayCategories)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetHistoryWeeks changes the anti-repetition window.
func (p *Planner) SetHistoryWeeks(weeks int) error {
	if weeks < MinHistoryWeeks || weeks > MaxHistoryWeeks {
		return model.NewValidationError("historyWeeks", "must be between 1 and 12")
	}
	return p.mutate(func(doc *store.Document) error {
		doc.HistoryWeeks = weeks
		return nil
	})
}

// MealEntry is one day of the displayed plan.
type MealEntry struct {
	Meal         *string `json:"meal"`
	Category     string  `json:"category"`
	CategoryName string  `json:"categoryName"`
	Fallback     bool    `json:"fallback,omitempty"`
}

// MealView is the current and next week as shown on the display.
type MealView struct {
	Meals             map[string]MealEntry      `json:"meals"`
	Categories        map[string]store.Category `json:"categories"`
	WeekdayCategories map[string]string         `json:"weekdayCategories"`
	LastUpdated       time.Time                 `json:"lastUpdated"`
}

// Display generates missing weeks and returns the current and next week.
func (p *Planner) Display() (MealView, error) {
	if err := p.EnsureWeeks(); err != nil {
		return MealView{}, err
	}
	doc := p.Snapshot()
	monday := WeekStart(p.Today())

	view := MealView{
		Meals:             make(map[string]MealEntry, 14),
		Categories:        doc.Categories,
		WeekdayCategories: doc.WeekdayCategories,
		LastUpdated:       p.clock.Now().UTC(),
	}
	for _, start := range []time.Time{monday, monday.AddDate(0, 0, 7)} {
		for date, a := range doc.WeeklySelections[WeekKey(start)] {
			name := a.Category
			if c, ok := doc.Categories[a.Category]; ok {
				name = c.Name
			}
			view.Meals[date] = MealEntry{Meal: a.Meal, Category: a.Category, CategoryName: name, Fallback: a.Fallback}
		}
	}
	return view, nil
}
