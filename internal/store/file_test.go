package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplanner/internal/model"
)

func ptr(s string) *string { return &s }

func TestFileStore_SeedsOnFirstLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "meals.json")
	s := NewFileStore(path)

	doc, err := s.Load()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, doc.Categories, "frit")
	assert.Contains(t, doc.Categories, "andet")
	assert.Equal(t, 3, doc.HistoryWeeks)
	assert.NotNil(t, doc.WeeklySelections)
	assert.NotNil(t, doc.Categories["andet"].Items)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meals.json")
	s := NewFileStore(path)

	doc := Empty()
	doc.Categories["kaal"] = Category{Name: "Kål", Items: []string{"a", "b"}}
	doc.WeekdayCategories["1"] = "kaal"
	doc.WeeklySelections["2026-W07"] = map[string]Assignment{
		"2026-02-09": {Meal: ptr("a"), Category: "kaal"},
		"2026-02-10": {Meal: nil, Category: "kaal"},
	}
	doc.History = append(doc.History, HistoryEntry{Meal: "a", Date: "2026-02-09", Category: "kaal"})
	require.NoError(t, s.Save(doc))

	got, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"weeklySelections"`)
	assert.Contains(t, string(raw), `"meal": null`)
}

func TestFileStore_CorruptFileMovedAside(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "meals.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	doc, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Empty(), doc)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var aside bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "meals.json.corrupt-") {
			aside = true
		}
	}
	assert.True(t, aside, "corrupt file should be kept for inspection")
	assert.NoFileExists(t, path)
}

func TestFileStore_SaveFailureIsPersistenceError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewFileStore(filepath.Join(blocker, "meals.json"))
	err := s.Save(Empty())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistence)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "meals.json"))
	for range 3 {
		require.NoError(t, s.Save(Empty()))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "meals.json", entries[0].Name())
}

func TestFileStore_WatchReportsExternalEdits(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meals.json")
	s := NewFileStore(path)
	_, err := s.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Document, 4)
	go func() { _ = s.Watch(ctx, func(d Document) { got <- d }) }()
	time.Sleep(100 * time.Millisecond)

	// Our own save is not reported.
	require.NoError(t, s.Save(Empty()))

	edited := Empty()
	edited.HistoryWeeks = 5
	data, err := encode(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	select {
	case d := <-got:
		assert.Equal(t, 5, d.HistoryWeeks)
	case <-time.After(3 * time.Second):
		t.Fatal("external edit not reported")
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	t.Parallel()

	doc := Empty()
	doc.Categories["kaal"] = Category{Name: "Kål", Items: []string{"a"}}
	doc.WeeklySelections["2026-W07"] = map[string]Assignment{"2026-02-09": {Meal: ptr("a"), Category: "kaal"}}

	cp := doc.Clone()
	c := cp.Categories["kaal"]
	c.Items[0] = "z"
	*cp.WeeklySelections["2026-W07"]["2026-02-09"].Meal = "z"
	cp.WeekdayCategories["1"] = "kaal"

	assert.Equal(t, "a", doc.Categories["kaal"].Items[0])
	assert.Equal(t, "a", *doc.WeeklySelections["2026-W07"]["2026-02-09"].Meal)
	assert.Empty(t, doc.WeekdayCategories)
}
