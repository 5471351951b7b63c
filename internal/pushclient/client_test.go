package pushclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplanner/internal/hub"
)

func TestBackOffSequence(t *testing.T) {
	t.Parallel()

	b := newBackOff(5*time.Second, 60*time.Second)
	var got []time.Duration
	for range 6 {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, 5*time.Second, b.NextBackOff())
}

func TestClient_ReconnectsAndResetsAfterSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n atomic.Int32
	reqs := make(chan int32, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := n.Add(1)
		reqs <- i
		if i != 4 {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\",\"timestamp\":\"2026-02-10T08:00:00Z\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"type\":\"meal-update\",\"timestamp\":\"2026-02-10T08:00:01Z\"}\n\n")
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	msgs := make(chan hub.Message, 4)
	c := New(srv.URL, Options{Clock: clock, HTTPClient: srv.Client()})
	go func() { _ = c.Run(ctx, func(m hub.Message) { msgs <- m }) }()

	next := func() int32 {
		select {
		case i := <-reqs:
			return i
		case <-ctx.Done():
			t.Fatal("no request")
			return 0
		}
	}
	require.EqualValues(t, 1, next())

	for i, d := range []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(d - time.Millisecond)
		select {
		case <-reqs:
			t.Fatalf("retry %d came before %s", i+1, d)
		case <-time.After(30 * time.Millisecond):
		}
		clock.Advance(time.Millisecond)
		require.EqualValues(t, i+2, next())
	}

	assert.Equal(t, hub.TypeConnected, (<-msgs).Type)
	assert.Equal(t, hub.TagMeals, (<-msgs).Type)

	// The stream connected, so the next wait starts over at 5s.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(5 * time.Second)
	require.EqualValues(t, 5, next())
}

func TestClient_StopsWithContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	done := make(chan error, 1)
	go func() { done <- New(srv.URL, Options{Clock: clock}).Run(ctx, func(hub.Message) {}) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
