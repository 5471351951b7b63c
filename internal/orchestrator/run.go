package orchestrator

import (
	"context"
	"time"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/schedule"
	"weekplanner/internal/store"
)

// DocumentWatcher reports edits of the meal document made outside the
// planner.
type DocumentWatcher interface {
	Watch(ctx context.Context, fn func(store.Document)) error
}

// Background lists the jobs Start registers. Nil or zero fields are skipped.
type Background struct {
	Runner          *schedule.Runner
	PollInterval    time.Duration
	RolloverCron    string
	Watch           *WatchManager
	RenewalInterval time.Duration
	Documents       DocumentWatcher
}

// Start registers the poller, meal rollover, watch-channel renewal and the
// document watcher, then starts the runner. Jobs stop with ctx.
func (o *Orchestrator) Start(ctx context.Context, bg Background) error {
	r := bg.Runner
	if r == nil {
		r = schedule.New(o.clock, o.loc)
	}

	if bg.PollInterval > 0 {
		err := r.Every("poll", bg.PollInterval, func(ctx context.Context) {
			o.Refresh(ctx, DomainCalendar)
			o.Refresh(ctx, DomainTasks)
		})
		if err != nil {
			return err
		}
	}
	if bg.RolloverCron != "" {
		if err := r.Cron("meal-rollover", bg.RolloverCron, o.Rollover); err != nil {
			return err
		}
	}
	if bg.Watch != nil {
		if err := bg.Watch.Setup(ctx); err != nil {
			appLog.Warn("some watch channels are not registered; polling covers them", "err", err)
		}
		if bg.RenewalInterval > 0 {
			if err := r.Every("watch-renewal", bg.RenewalInterval, bg.Watch.Renew); err != nil {
				return err
			}
		}
	}
	if bg.Documents != nil {
		go func() {
			err := bg.Documents.Watch(ctx, func(doc store.Document) { o.ExternalEdit(ctx, doc) })
			if err != nil && ctx.Err() == nil {
				appLog.Error("meal plan watcher stopped", err)
			}
		}()
	}

	r.Start(ctx)
	return nil
}
