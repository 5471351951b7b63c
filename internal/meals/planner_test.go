package meals

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplanner/internal/model"
	"weekplanner/internal/store"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func newPlanner(t *testing.T, doc store.Document, now string, seed uint64) (*Planner, *store.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(date(t, now).Add(10 * time.Hour))
	st := store.NewMemoryStore(doc)
	p, err := New(st, Options{
		Clock:    clock,
		Location: time.UTC,
		Rand:     rand.New(rand.NewPCG(seed, seed+1)),
	})
	require.NoError(t, err)
	return p, st, clock
}

func kaalDoc() store.Document {
	doc := store.Empty()
	doc.HistoryWeeks = 1
	doc.Categories["kaal"] = store.Category{Name: "Kål", Items: []string{"a", "b", "c"}}
	doc.WeekdayCategories["1"] = "kaal"
	return doc
}

func TestWeekKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		date string
		want string
	}{
		{"2026-02-10", "2026-W07"},
		{"2026-02-09", "2026-W07"},
		{"2026-02-15", "2026-W07"},
		{"2025-12-29", "2026-W01"},
		{"2026-01-01", "2026-W01"},
		{"2021-01-03", "2020-W53"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekKey(date(t, tt.date)))
		})
	}
}

func TestWeekStart(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2026-02-09", FormatDate(WeekStart(date(t, "2026-02-15"))))
	assert.Equal(t, "2026-02-09", FormatDate(WeekStart(date(t, "2026-02-09"))))
	assert.Equal(t, "2025-12-29", FormatDate(WeekStart(date(t, "2026-01-01"))))
}

func TestGenerateWeek_ExcludesRecentMeal(t *testing.T) {
	t.Parallel()

	for seed := range uint64(50) {
		p, _, clock := newPlanner(t, kaalDoc(), "2026-02-02", seed)

		_, err := p.ChangeAssignment("2026-02-02", "b", "")
		require.NoError(t, err)

		clock.Advance(7 * 24 * time.Hour)
		week, err := p.GenerateWeek(date(t, "2026-02-09"))
		require.NoError(t, err)

		monday := week["2026-02-09"]
		require.NotNil(t, monday.Meal)
		assert.Contains(t, []string{"a", "c"}, *monday.Meal, "seed %d", seed)
		assert.False(t, monday.Fallback)
	}
}

func TestGenerateWeek_Idempotent(t *testing.T) {
	t.Parallel()

	doc := kaalDoc()
	for day := range 7 {
		doc.WeekdayCategories[WeekdayKey(date(t, "2026-02-09").AddDate(0, 0, day))] = "kaal"
	}
	p, st, _ := newPlanner(t, doc, "2026-02-09", 1)

	first, err := p.GenerateWeek(date(t, "2026-02-11"))
	require.NoError(t, err)
	history := p.Snapshot().History
	saves := st.Saves()

	second, err := p.GenerateWeek(date(t, "2026-02-09"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 7)
	assert.Equal(t, history, p.Snapshot().History, "no duplicate history entries")
	assert.Equal(t, saves, st.Saves(), "nothing to persist on a second call")
}

func TestGenerateWeek_OutsidePlannedWeeksRejected(t *testing.T) {
	t.Parallel()

	p, st, _ := newPlanner(t, kaalDoc(), "2026-02-02", 1)

	for _, day := range []string{"2026-03-16", "2026-02-23", "2026-01-19"} {
		_, err := p.GenerateWeek(date(t, day))
		assert.ErrorIs(t, err, model.ErrValidation, day)
	}
	assert.Empty(t, p.Snapshot().History, "no history for weeks that are never stored")
	assert.Empty(t, p.Snapshot().WeeklySelections)
	assert.Zero(t, st.Saves())

	// The edges of the window still work: last week and two weeks ahead.
	for _, day := range []string{"2026-01-26", "2026-02-16"} {
		first, err := p.GenerateWeek(date(t, day))
		require.NoError(t, err, day)
		second, err := p.GenerateWeek(date(t, day))
		require.NoError(t, err, day)
		assert.Equal(t, first, second, day)
	}
}

func TestGenerateWeek_AntiRepetitionAcrossWeeks(t *testing.T) {
	t.Parallel()

	doc := store.Empty()
	doc.HistoryWeeks = 1
	doc.Categories["alt"] = store.Category{Name: "Alt", Items: []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"}}
	for d := range 7 {
		doc.WeekdayCategories[WeekdayKey(date(t, "2026-02-09").AddDate(0, 0, d))] = "alt"
	}
	p, _, _ := newPlanner(t, doc, "2026-02-09", 7)

	require.NoError(t, p.EnsureWeeks())
	snap := p.Snapshot()

	type day struct {
		date time.Time
		a    store.Assignment
	}
	var days []day
	for _, week := range snap.WeeklySelections {
		for ds, a := range week {
			days = append(days, day{date: date(t, ds), a: a})
		}
	}
	require.Len(t, days, 14)

	for i, d1 := range days {
		require.NotNil(t, d1.a.Meal)
		assert.False(t, d1.a.Fallback)
		for _, d2 := range days[i+1:] {
			if delta := daysBetween(d1.date, d2.date); delta >= -7 && delta <= 7 {
				assert.NotEqual(t, *d1.a.Meal, *d2.a.Meal, "%s and %s", FormatDate(d1.date), FormatDate(d2.date))
			}
		}
	}
}

func TestGenerateWeek_FallbackToFullList(t *testing.T) {
	t.Parallel()

	doc := store.Empty()
	doc.Categories["one"] = store.Category{Name: "One", Items: []string{"only"}}
	doc.WeekdayCategories["1"] = "one"
	doc.WeekdayCategories["2"] = "one"
	p, _, _ := newPlanner(t, doc, "2026-02-09", 3)

	week, err := p.GenerateWeek(date(t, "2026-02-09"))
	require.NoError(t, err)

	mon, tue := week["2026-02-09"], week["2026-02-10"]
	require.NotNil(t, mon.Meal)
	require.NotNil(t, tue.Meal)
	assert.Equal(t, "only", *tue.Meal)
	assert.False(t, mon.Fallback)
	assert.True(t, tue.Fallback)
}

func TestGenerateWeek_EmptyOrMissingCategoryGivesNoMeal(t *testing.T) {
	t.Parallel()

	doc := store.Empty()
	doc.Categories["tom"] = store.Category{Name: "Tom", Items: []string{}}
	doc.WeekdayCategories["1"] = "tom"
	p, _, _ := newPlanner(t, doc, "2026-02-09", 3)

	week, err := p.GenerateWeek(date(t, "2026-02-09"))
	require.NoError(t, err)
	assert.Nil(t, week["2026-02-09"].Meal)
	assert.Equal(t, "tom", week["2026-02-09"].Category)
	assert.Equal(t, DefaultCategory, week["2026-02-10"].Category, "unmapped weekday uses the default category")
	assert.Nil(t, week["2026-02-10"].Meal)
	assert.Empty(t, p.Snapshot().History)
}

func TestChangeAssignment_InfersCategory(t *testing.T) {
	t.Parallel()

	p, _, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)

	ch, err := p.ChangeAssignment("2026-02-10", "Pasta", "")
	require.NoError(t, err)
	assert.Equal(t, Change{Date: "2026-02-10", Meal: "Pasta", Category: "andet"}, ch)

	ch, err = p.ChangeAssignment("2026-02-11", "c", "")
	require.NoError(t, err)
	assert.Equal(t, "kaal", ch.Category)

	snap := p.Snapshot()
	got := snap.WeeklySelections["2026-W07"]["2026-02-10"]
	require.NotNil(t, got.Meal)
	assert.Equal(t, "Pasta", *got.Meal)
	assert.Len(t, snap.WeeklySelections["2026-W07"], 7, "week is filled, not left partial")

	var entries int
	for _, h := range snap.History {
		if h.Date == "2026-02-10" {
			entries++
			assert.Equal(t, "Pasta", h.Meal)
		}
	}
	assert.Equal(t, 1, entries)
}

func TestChangeAssignment_Validation(t *testing.T) {
	t.Parallel()

	p, _, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)

	_, err := p.ChangeAssignment("10-02-2026", "Pasta", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = p.ChangeAssignment("2026-02-10", "  ", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = p.ChangeAssignment("2026-06-01", "Pasta", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = p.ChangeAssignment("2026-02-10", "Pasta", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestChangeAssignment_PersistenceFailureNotCommitted(t *testing.T) {
	t.Parallel()

	p, st, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)
	require.NoError(t, p.EnsureWeeks())
	before := p.Snapshot()

	st.FailSaves(errors.New("disk full"))
	_, err := p.ChangeAssignment("2026-02-10", "Pasta", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Equal(t, before, p.Snapshot())

	st.FailSaves(nil)
	_, err = p.ChangeAssignment("2026-02-10", "Pasta", "")
	require.NoError(t, err)
}

func TestRemoveItem_NullsAssignments(t *testing.T) {
	t.Parallel()

	p, _, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)
	_, err := p.ChangeAssignment("2026-02-09", "b", "kaal")
	require.NoError(t, err)

	info, err := p.RemoveItem("kaal", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, info.Items)

	a := p.Snapshot().WeeklySelections["2026-W07"]["2026-02-09"]
	assert.Nil(t, a.Meal)
	assert.Equal(t, "kaal", a.Category)

	_, err = p.RemoveItem("kaal", "b")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCategoryCRUD(t *testing.T) {
	t.Parallel()

	p, _, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)

	_, err := p.CreateCategory("Bad Id", store.Category{Name: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = p.CreateCategory("kaal", store.Category{Name: "dup"})
	assert.ErrorIs(t, err, model.ErrValidation)

	info, err := p.CreateCategory("fisk", store.Category{Name: "Fisk", Emoji: "🐟", Items: []string{"Laks", "Laks", " Torsk "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Laks", "Torsk"}, info.Items)

	_, err = p.AddItem("fisk", "Laks")
	assert.ErrorIs(t, err, model.ErrValidation)
	info, err = p.AddItem("fisk", "Rødspætte")
	require.NoError(t, err)
	assert.Contains(t, info.Items, "Rødspætte")

	info, err = p.UpdateCategory("fisk", "Fiskeretter", "")
	require.NoError(t, err)
	assert.Equal(t, "Fiskeretter", info.Name)
	assert.Equal(t, "🐟", info.Emoji)

	_, err = p.UpdateCategory("nope", "x", "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = p.DeleteCategory("kaal")
	assert.ErrorIs(t, err, model.ErrValidation, "mapped to Monday")

	require.NoError(t, p.DeleteCategory("fisk"))
	assert.ErrorIs(t, p.DeleteCategory("fisk"), model.ErrNotFound)
}

func TestSetWeekdayMapping(t *testing.T) {
	t.Parallel()

	p, _, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)

	_, err := p.SetWeekdayMapping(map[string]string{"2": "unknown"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = p.SetWeekdayMapping(map[string]string{"7": "kaal"})
	assert.ErrorIs(t, err, model.ErrValidation)

	got, err := p.SetWeekdayMapping(map[string]string{"2": "kaal"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "kaal", "2": "kaal"}, got)
}

func TestSetHistoryWeeks(t *testing.T) {
	t.Parallel()

	p, _, _ := newPlanner(t, kaalDoc(), "2026-02-09", 1)
	assert.ErrorIs(t, p.SetHistoryWeeks(0), model.ErrValidation)
	assert.ErrorIs(t, p.SetHistoryWeeks(13), model.ErrValidation)
	require.NoError(t, p.SetHistoryWeeks(4))
	assert.Equal(t, 4, p.Snapshot().HistoryWeeks)
}

func TestPruning(t *testing.T) {
	t.Parallel()

	doc := kaalDoc()
	meal := "a"
	doc.WeeklySelections["2025-W40"] = map[string]store.Assignment{"2025-09-29": {Meal: &meal, Category: "kaal"}}
	doc.WeeklySelections["2026-W06"] = map[string]store.Assignment{"2026-02-02": {Meal: &meal, Category: "kaal"}}
	doc.History = []store.HistoryEntry{
		{Meal: "a", Date: "2025-09-29", Category: "kaal"},
		{Meal: "a", Date: "2026-02-02", Category: "kaal"},
	}
	p, _, _ := newPlanner(t, doc, "2026-02-09", 1)

	require.NoError(t, p.EnsureWeeks())
	snap := p.Snapshot()

	assert.NotContains(t, snap.WeeklySelections, "2025-W40")
	assert.Contains(t, snap.WeeklySelections, "2026-W06")
	assert.Contains(t, snap.WeeklySelections, "2026-W07")
	assert.Contains(t, snap.WeeklySelections, "2026-W08")
	for _, h := range snap.History {
		assert.NotEqual(t, "2025-09-29", h.Date)
	}
}

func TestDisplay(t *testing.T) {
	t.Parallel()

	p, _, clock := newPlanner(t, kaalDoc(), "2026-02-11", 1)
	view, err := p.Display()
	require.NoError(t, err)

	assert.Len(t, view.Meals, 14)
	mon := view.Meals["2026-02-09"]
	assert.Equal(t, "kaal", mon.Category)
	assert.Equal(t, "Kål", mon.CategoryName)
	assert.Equal(t, DefaultCategory, view.Meals["2026-02-10"].CategoryName, "unknown category shows its id")
	assert.Contains(t, view.Meals, "2026-02-22")
	assert.Equal(t, clock.Now().UTC(), view.LastUpdated)
}

func TestCategories_SortedByDanishName(t *testing.T) {
	t.Parallel()

	doc := store.Empty()
	doc.Categories["aa"] = store.Category{Name: "Ål"}
	doc.Categories["oe"] = store.Category{Name: "Øl"}
	doc.Categories["z"] = store.Category{Name: "Zebra"}
	p, _, _ := newPlanner(t, doc, "2026-02-09", 1)

	var names []string
	for _, c := range p.Categories() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Zebra", "Øl", "Ål"}, names)
}
