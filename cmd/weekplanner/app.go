package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"weekplanner/internal/config"
	"weekplanner/internal/gcal"
	"weekplanner/internal/hub"
	"weekplanner/internal/ics"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/meals"
	"weekplanner/internal/mock"
	"weekplanner/internal/orchestrator"
	"weekplanner/internal/store"
	"weekplanner/internal/todo"
	"weekplanner/internal/web"
)

// app is everything serve needs, wired from config.
type app struct {
	cfg     *config.Config
	clock   clockwork.Clock
	store   *store.FileStore
	planner *meals.Planner
	hub     *hub.Hub
	orch    *orchestrator.Orchestrator
	watch   *orchestrator.WatchManager
	mocks   []web.Failer
}

func newPlanner(cfg *config.Config, clock clockwork.Clock) (*store.FileStore, *meals.Planner, error) {
	st := store.NewFileStore(cfg.Data.MealsPath)
	planner, err := meals.New(st, meals.Options{
		Clock:            clock,
		Location:         cfg.Location(),
		DefaultCategory:  cfg.Meals.DefaultCategory,
		CatchAllCategory: cfg.Meals.CatchAllCategory,
	})
	return st, planner, err
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, clock: clockwork.NewRealClock()}
	loc := cfg.Location()

	var err error
	if a.store, a.planner, err = newPlanner(cfg, a.clock); err != nil {
		return nil, err
	}

	a.hub = hub.New(a.clock, hub.Options{Keepalive: cfg.Stream.Keepalive})

	var (
		calendars []orchestrator.CalendarSource
		tasks     orchestrator.TaskSource
	)
	if cfg.MockMode {
		seed := uint64(a.clock.Now().UnixNano())
		mc, mt := mock.NewCalendar(a.clock, loc, seed), mock.NewTasks(a.clock, seed+1)
		calendars, tasks = []orchestrator.CalendarSource{mc}, mt
		a.mocks = []web.Failer{mc, mt}
		appLog.Warn("mock mode: serving simulated calendars and tasks")
	} else {
		fetcher := ics.NewFetcher(&http.Client{Timeout: 20 * time.Second}, cfg.Data.ICSCacheDir)
		for _, c := range cfg.Calendars {
			calendars = append(calendars, ics.NewCalendar(fetcher, ics.Source{
				ID:           c.ID,
				Name:         c.Name,
				Color:        c.Color,
				URL:          c.URL,
				ExcludeWords: c.ExcludeWords,
			}, loc))
		}
		if cfg.Tasks.Enabled() {
			tasks = todo.NewClient(ctx, cfg.Tasks, todo.Options{})
		} else {
			appLog.Info("no task list configured; tasks view stays empty")
		}
	}

	a.orch = orchestrator.New(calendars, tasks, a.planner, a.hub, orchestrator.Options{
		Clock:       a.clock,
		Location:    loc,
		CalendarTTL: cfg.Cache.CalendarTTL,
		TasksTTL:    cfg.Cache.TasksTTL,
	})

	if cfg.Push.Enabled && !cfg.MockMode {
		ids := make([]string, 0, len(cfg.Calendars))
		for _, c := range cfg.Calendars {
			ids = append(ids, c.ID)
		}
		reg := gcal.NewRegistrar(ctx, cfg.Push.Google, gcal.Options{})
		a.watch = orchestrator.NewWatchManager(reg, orchestrator.WatchConfig{
			CalendarIDs: ids,
			BaseURL:     cfg.Push.WebhookURL,
			Token:       cfg.Push.ChannelToken,
			TTL:         cfg.Push.ChannelTTL,
		})
	}
	return a, nil
}
