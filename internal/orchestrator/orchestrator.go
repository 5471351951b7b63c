// Package orchestrator ties the domain caches, upstream sources, meal
// planner and broadcast hub together. HTTP handlers and background jobs talk
// only to the Orchestrator.
//
// Reads are eventually consistent with respect to a racing invalidation: a
// query that started before an invalidation may return the older snapshot,
// but a query that starts after Invalidate has returned never does. Each
// upstream fetch is keyed by the cache generation it started under, so
// concurrent misses share one fetch and a fetch that raced an invalidation
// is stored only as a stale fallback.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"weekplanner/internal/cache"
	"weekplanner/internal/hub"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/meals"
	"weekplanner/internal/model"
)

// Domain is one data category with its own cache key and push tag.
type Domain string

const (
	DomainCalendar Domain = "calendar"
	DomainTasks    Domain = "tasks"
	DomainMeals    Domain = "meals"
)

// Tag is the push message type announcing a change in d.
func (d Domain) Tag() string {
	switch d {
	case DomainCalendar:
		return hub.TagCalendar
	case DomainTasks:
		return hub.TagTasks
	default:
		return hub.TagMeals
	}
}

// ParseDomain accepts a domain name or its push tag.
func ParseDomain(s string) (Domain, error) {
	switch s {
	case string(DomainCalendar), hub.TagCalendar:
		return DomainCalendar, nil
	case string(DomainTasks), "todos", hub.TagTasks:
		return DomainTasks, nil
	case string(DomainMeals), "meal", hub.TagMeals:
		return DomainMeals, nil
	}
	return "", model.NewValidationError("domain", fmt.Sprintf("unknown domain %q", s))
}

// CalendarSource is one upstream calendar.
type CalendarSource interface {
	ID() string
	FetchEvents(ctx context.Context, window model.Window) ([]model.CalendarEvent, error)
}

// TaskSource is the upstream task list.
type TaskSource interface {
	FetchTasks(ctx context.Context) ([]model.Task, error)
}

// Broadcaster pushes change notifications to open display connections.
type Broadcaster interface {
	Publish(ctx context.Context, tag string) int
	Len() int
}

// Options tunes an Orchestrator. Zero values get defaults.
type Options struct {
	Clock        clockwork.Clock
	Location     *time.Location
	CalendarTTL  time.Duration
	TasksTTL     time.Duration
	FetchTimeout time.Duration
}

// Orchestrator serves the merged calendar, task and meal views.
type Orchestrator struct {
	clock   clockwork.Clock
	loc     *time.Location
	opts    Options
	started time.Time

	calendars []CalendarSource
	tasks     TaskSource
	planner   *meals.Planner
	hub       Broadcaster

	calendarCache *cache.Cache[model.CalendarView]
	taskCache     *cache.Cache[model.TaskView]
	flights       singleflight.Group
}

// New wires the orchestrator. tasks may be nil when no task list is
// configured; the tasks domain then serves an empty view.
func New(calendars []CalendarSource, tasks TaskSource, planner *meals.Planner, b Broadcaster, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.CalendarTTL <= 0 {
		opts.CalendarTTL = 9 * time.Minute
	}
	if opts.TasksTTL <= 0 {
		opts.TasksTTL = 9 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Orchestrator{
		clock:         opts.Clock,
		loc:           opts.Location,
		opts:          opts,
		started:       opts.Clock.Now(),
		calendars:     calendars,
		tasks:         tasks,
		planner:       planner,
		hub:           b,
		calendarCache: cache.New[model.CalendarView](opts.Clock),
		taskCache:     cache.New[model.TaskView](opts.Clock),
	}
}

// Location is the display time zone.
func (o *Orchestrator) Location() *time.Location { return o.loc }

// Planner exposes the meal planner for read-only callers such as the CLI.
func (o *Orchestrator) Planner() *meals.Planner { return o.planner }

// query returns the fresh cached value for key or runs fetch once for all
// concurrent callers. Upstream errors are logged and degraded to the stale
// value, or to empty() when nothing was ever cached.
func query[V any](ctx context.Context, o *Orchestrator, c *cache.Cache[V], key string, ttl time.Duration,
	fetch func(ctx context.Context) (V, error), empty func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	gen := c.Generation(key)
	res, _, _ := o.flights.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		// The fetch is shared, so it must not die with the first caller.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.FetchTimeout)
		defer cancel()

		v, err := fetch(fetchCtx)
		if err != nil {
			if stale, ok := c.GetStale(key); ok {
				appLog.Error("refresh failed; serving stale data", err, "domain", key)
				return stale, nil
			}
			appLog.Error("refresh failed; nothing cached", err, "domain", key)
			return empty(), nil
		}
		if !c.SetIfCurrent(key, v, ttl, gen) {
			appLog.Debug("fetch raced an invalidation; stored as stale", "domain", key)
		}
		return v, nil
	})
	return res.(V)
}

// Calendar returns the merged view for the current and next week.
func (o *Orchestrator) Calendar(ctx context.Context) model.CalendarView {
	return query(ctx, o, o.calendarCache, string(DomainCalendar), o.opts.CalendarTTL, o.fetchCalendar, o.emptyCalendar)
}

// CalendarWeek returns week offset 0 (current) or 1 (next) of the merged
// view. Other offsets yield no events.
func (o *Orchestrator) CalendarWeek(ctx context.Context, offset int) model.CalendarWeekView {
	return sliceWeek(o.Calendar(ctx), offset, o.loc)
}

func (o *Orchestrator) fetchCalendar(ctx context.Context) (model.CalendarView, error) {
	now := o.clock.Now()
	window := calendarWindow(now, o.loc)

	results := make([][]model.CalendarEvent, len(o.calendars))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range o.calendars {
		g.Go(func() error {
			events, err := src.FetchEvents(gctx, window)
			if err != nil {
				return fmt.Errorf("calendar %s: %w", src.ID(), err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.CalendarView{}, err
	}

	var all []model.CalendarEvent
	for _, events := range results {
		all = append(all, events...)
	}
	view := buildCalendarView(all, now, o.loc)
	appLog.Info("calendar refreshed", "events", len(all), "calendars", len(o.calendars))
	return view, nil
}

func (o *Orchestrator) emptyCalendar() model.CalendarView {
	return buildCalendarView(nil, o.clock.Now(), o.loc)
}

// Tasks returns the incomplete tasks.
func (o *Orchestrator) Tasks(ctx context.Context) model.TaskView {
	return query(ctx, o, o.taskCache, string(DomainTasks), o.opts.TasksTTL, o.fetchTasks, o.emptyTasks)
}

func (o *Orchestrator) fetchTasks(ctx context.Context) (model.TaskView, error) {
	if o.tasks == nil {
		return o.emptyTasks(), nil
	}
	tasks, err := o.tasks.FetchTasks(ctx)
	if err != nil {
		return model.TaskView{}, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	appLog.Info("tasks refreshed", "tasks", len(tasks))
	return model.TaskView{Tasks: tasks, LastUpdated: o.clock.Now().UTC()}, nil
}

func (o *Orchestrator) emptyTasks() model.TaskView {
	return model.TaskView{Tasks: []model.Task{}, LastUpdated: o.clock.Now().UTC()}
}

// Invalidate drops freshness for d and tells every display to re-fetch.
// The cache is cleared before the broadcast goes out.
func (o *Orchestrator) Invalidate(ctx context.Context, d Domain) {
	o.drop(d)
	o.publish(ctx, d)
}

// InvalidateAll clears the remote domains and announces both.
func (o *Orchestrator) InvalidateAll(ctx context.Context) {
	o.calendarCache.InvalidateAll()
	o.taskCache.InvalidateAll()
	appLog.Info("all caches cleared")
	o.publish(ctx, DomainCalendar)
	o.publish(ctx, DomainTasks)
}

// Refresh invalidates d, warms the cache with a new fetch and then
// announces the change, so displays re-read the new data from cache.
func (o *Orchestrator) Refresh(ctx context.Context, d Domain) {
	o.drop(d)
	switch d {
	case DomainCalendar:
		o.Calendar(ctx)
	case DomainTasks:
		o.Tasks(ctx)
	}
	o.publish(ctx, d)
}

// HandleWebhook applies an upstream notification. Handshake messages
// (changed == false) are acknowledged without side effects.
func (o *Orchestrator) HandleWebhook(ctx context.Context, d Domain, changed bool) {
	if !changed {
		appLog.Debug("webhook handshake", "domain", d)
		return
	}
	appLog.Info("webhook change notification", "domain", d)
	o.Invalidate(ctx, d)
}

func (o *Orchestrator) drop(d Domain) {
	switch d {
	case DomainCalendar:
		o.calendarCache.Invalidate(string(d))
	case DomainTasks:
		o.taskCache.Invalidate(string(d))
	}
}

func (o *Orchestrator) publish(ctx context.Context, d Domain) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(ctx, d.Tag())
}

// Status is the health snapshot.
type Status struct {
	Status     string    `json:"status"`
	Uptime     float64   `json:"uptime"`
	Timestamp  time.Time `json:"timestamp"`
	SSEClients int       `json:"sseClients"`
	Calendar   string    `json:"calendarCache"`
	Tasks      string    `json:"tasksCache"`
}

// Status reports uptime, open push connections and cache states.
func (o *Orchestrator) Status() Status {
	now := o.clock.Now()
	clients := 0
	if o.hub != nil {
		clients = o.hub.Len()
	}
	return Status{
		Status:     "ok",
		Uptime:     now.Sub(o.started).Seconds(),
		Timestamp:  now.UTC(),
		SSEClients: clients,
		Calendar:   o.calendarCache.State(string(DomainCalendar)).String(),
		Tasks:      o.taskCache.State(string(DomainTasks)).String(),
	}
}
