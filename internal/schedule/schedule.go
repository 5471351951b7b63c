// Package schedule runs named background tasks either on a fixed interval or
// on a cron spec. Time comes from an injected clock so tests can advance it.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	appLog "weekplanner/internal/log"
)

// Func is one run of a task. ctx is cancelled when the runner stops.
type Func func(ctx context.Context)

type task struct {
	name string
	run  func(ctx context.Context)
}

// Runner owns a set of tasks. Tasks registered after Start begin at once.
type Runner struct {
	clock clockwork.Clock
	loc   *time.Location

	mu      sync.Mutex
	tasks   []task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a Runner. Cron specs are evaluated in loc.
func New(clock clockwork.Clock, loc *time.Location) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Runner{clock: clock, loc: loc}
}

// Every runs fn each interval, first after one interval has passed.
func (r *Runner) Every(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	r.add(task{name: name, run: func(ctx context.Context) {
		t := r.clock.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.Chan():
				r.invoke(ctx, name, fn)
			}
		}
	}})
	appLog.Info("scheduled task", "name", name, "every", interval)
	return nil
}

// Cron runs fn whenever the standard five-field spec matches.
func (r *Runner) Cron(name, spec string, fn Func) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: parse %q: %w", name, spec, err)
	}
	r.add(task{name: name, run: func(ctx context.Context) {
		for {
			now := r.clock.Now().In(r.loc)
			next := sched.Next(now)
			t := r.clock.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.Chan():
				r.invoke(ctx, name, fn)
			}
		}
	}})
	appLog.Info("scheduled task", "name", name, "cron", spec)
	return nil
}

func (r *Runner) add(t task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	if r.started {
		r.launch(t)
	}
}

// launch must be called with mu held.
func (r *Runner) launch(t task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t.run(r.ctx)
	}()
}

func (r *Runner) invoke(ctx context.Context, name string, fn Func) {
	defer func() {
		if p := recover(); p != nil {
			appLog.Error("scheduled task panicked", fmt.Errorf("%v", p), "name", name)
		}
	}()
	appLog.Debug("running scheduled task", "name", name)
	fn(ctx)
}

// Start launches every registered task. It is a no-op when already running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true
	for _, t := range r.tasks {
		r.launch(t)
	}
}

// Stop cancels all tasks and waits for running ones to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.started = false
	r.mu.Unlock()
	r.wg.Wait()
}
