// Package mock provides simulated calendar and task upstreams for running
// the display without real accounts.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"weekplanner/internal/model"
	"weekplanner/internal/todo"
)

// ErrSimulatedOutage is returned while a source is set to fail.
var ErrSimulatedOutage = errors.New("simulated upstream outage")

type calendar struct {
	id, name, color string
	titles          []string
}

var calendars = []calendar{
	{"familie", "Familie", "#33B679", []string{"Familiemiddag", "Bedsteforældre på besøg", "Spilleaften", "Filmaften", "Brunch hos mormor"}},
	{"arbejde", "Arbejde", "#D50000", []string{"Teammøde", "Projektgennemgang", "Kundemøde", "Deadline: Rapport", "Præsentation"}},
	{"skole", "Skole", "#039BE5", []string{"Forældremøde", "Skolefest", "SFO arrangement", "Skole/hjem samtale"}},
	{"sport", "Sport", "#7986CB", []string{"Fodboldtræning", "Svømning", "Håndboldkamp", "Gymnastik", "Løbetur"}},
	{"aktiviteter", "Aktiviteter", "#8E24AA", []string{"Spejder", "Musikskole", "Dans", "Kor øvelse"}},
	{"helligdage", "Helligdage", "#616161", []string{"Helligdag", "Ferie", "Skolefri"}},
}

var taskTemplates = []struct {
	title      string
	importance model.Importance
}{
	{"Køb mælk og brød", model.ImportanceNormal},
	{"Hent pakke på posthuset", model.ImportanceHigh},
	{"Ring til tandlægen", model.ImportanceHigh},
	{"Vask bilen", model.ImportanceNormal},
	{"Køb fødselsdagsgave", model.ImportanceHigh},
	{"Reparer cykelpunktering", model.ImportanceNormal},
	{"Aflevér bøger på biblioteket", model.ImportanceLow},
	{"Ryd op i garage", model.ImportanceLow},
	{"Planlæg sommerferie", model.ImportanceNormal},
}

// source holds what both simulated upstreams share: a seeded generator that
// advances on every fetch, a fetch counter and an outage switch.
type source struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	rng     *rand.Rand
	fetches atomic.Int64
	failing atomic.Bool
}

func (s *source) init(clock clockwork.Clock, seed uint64) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s.clock = clock
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SetFailing makes fetches fail until called with false.
func (s *source) SetFailing(fail bool) { s.failing.Store(fail) }

// Fetches returns how many fetches have been attempted.
func (s *source) Fetches() int64 { return s.fetches.Load() }

// Calendar generates one to five events per day across a few calendars.
type Calendar struct {
	source
	loc *time.Location
}

func NewCalendar(clock clockwork.Clock, loc *time.Location, seed uint64) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	c := &Calendar{loc: loc}
	c.init(clock, seed)
	return c
}

func (c *Calendar) ID() string { return "mock" }

func (c *Calendar) FetchEvents(ctx context.Context, window model.Window) ([]model.CalendarEvent, error) {
	c.fetches.Add(1)
	if c.failing.Load() {
		return nil, &model.UpstreamError{Source: "mock:calendar", Err: ErrSimulatedOutage}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var events []model.CalendarEvent
	start := window.Start.In(c.loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.loc)
	for ; day.Before(window.End); day = day.AddDate(0, 0, 1) {
		n := c.rng.IntN(5) + 1
		for i := range n {
			cal := calendars[c.rng.IntN(len(calendars))]
			ev := model.CalendarEvent{
				ID:         fmt.Sprintf("mock-%s-%d", day.Format(time.DateOnly), i),
				Title:      cal.titles[c.rng.IntN(len(cal.titles))],
				SourceID:   cal.id,
				SourceName: cal.name,
				ColorTag:   cal.color,
			}
			if c.rng.Float64() < 0.2 {
				ev.IsAllDay = true
				ev.Start = day
				ev.End = day.AddDate(0, 0, 1)
			} else {
				ev.Start = day.Add(time.Duration(7+c.rng.IntN(13))*time.Hour + time.Duration(30*c.rng.IntN(2))*time.Minute)
				ev.End = ev.Start.Add(time.Duration(1+c.rng.IntN(3)) * 30 * time.Minute)
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// Tasks returns a random subset of household tasks.
type Tasks struct {
	source
}

func NewTasks(clock clockwork.Clock, seed uint64) *Tasks {
	t := &Tasks{}
	t.init(clock, seed)
	return t
}

func (t *Tasks) FetchTasks(ctx context.Context) ([]model.Task, error) {
	t.fetches.Add(1)
	if t.failing.Load() {
		return nil, &model.UpstreamError{Source: "mock:tasks", Err: ErrSimulatedOutage}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.clock.Now()
	n := 5 + t.rng.IntN(len(taskTemplates)-4)
	tasks := make([]model.Task, 0, n)
	for i, idx := range t.rng.Perm(len(taskTemplates))[:n] {
		tpl := taskTemplates[idx]
		task := model.Task{
			ID:         fmt.Sprintf("mock-task-%d", i),
			Title:      tpl.title,
			Importance: tpl.importance,
			ListID:     "mock",
			ListName:   "Indkøb",
			ListColor:  "#FF5733",
		}
		if t.rng.Float64() < 0.4 {
			due := today.AddDate(0, 0, t.rng.IntN(14)).Format(time.DateOnly)
			task.DueDate = &due
		}
		tasks = append(tasks, task)
	}
	todo.SortTasks(tasks)
	return tasks, nil
}
