package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFired(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case at := <-ch:
		return at
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
		return time.Time{}
	}
}

func TestRunner_Every(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	r := New(clock, time.UTC)
	fired := make(chan time.Time, 4)
	require.NoError(t, r.Every("poll", 5*time.Minute, func(context.Context) { fired <- clock.Now() }))
	r.Start(ctx)
	defer r.Stop()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(4 * time.Minute)
	select {
	case <-fired:
		t.Fatal("ran before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	for range 2 {
		clock.Advance(time.Minute)
		waitFired(t, fired)
		clock.Advance(4 * time.Minute)
	}
}

func TestRunner_Cron(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Sunday evening; the rollover is Monday 00:05.
	start := time.Date(2026, 2, 8, 23, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	r := New(clock, time.UTC)
	fired := make(chan time.Time, 4)
	require.NoError(t, r.Cron("rollover", "5 0 * * 1", func(context.Context) { fired <- clock.Now() }))
	r.Start(ctx)
	defer r.Stop()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(65 * time.Minute)
	assert.Equal(t, time.Date(2026, 2, 9, 0, 5, 0, 0, time.UTC), waitFired(t, fired))

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(7 * 24 * time.Hour)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 5, 0, 0, time.UTC), waitFired(t, fired))
}

func TestRunner_InvalidInput(t *testing.T) {
	t.Parallel()

	r := New(nil, nil)
	assert.Error(t, r.Every("bad", 0, func(context.Context) {}))
	assert.Error(t, r.Cron("bad", "not a spec", func(context.Context) {}))
}

func TestRunner_StopCancelsTasks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	r := New(clock, time.UTC)
	started, done := make(chan struct{}), make(chan struct{})
	require.NoError(t, r.Every("slow", time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(done)
	}))
	r.Start(ctx)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	<-started

	// Registering after Start launches immediately.
	require.NoError(t, r.Every("late", time.Hour, func(context.Context) {}))

	r.Stop()
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the running task saw cancellation")
	}
	r.Stop()
}
