package hub

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSub struct {
	name   string
	log    *[]string
	mu     *sync.Mutex
	fail   bool
	closed bool
	msgs   []Message
}

func (r *recordingSub) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, r.name+":"+msg.Type)
	if r.fail {
		return errors.New("write: broken pipe")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSub) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func newRecorders(names ...string) ([]*recordingSub, *[]string) {
	var (
		mu  sync.Mutex
		log []string
	)
	subs := make([]*recordingSub, 0, len(names))
	for _, n := range names {
		subs = append(subs, &recordingSub{name: n, log: &log, mu: &mu})
	}
	return subs, &log
}

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC))
	h := New(clock, Options{})
	subs, log := newRecorders("a", "b", "c")
	for _, s := range subs {
		h.Subscribe(s)
	}

	n := h.Publish(context.Background(), TagCalendar)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a:calendar-update", "b:calendar-update", "c:calendar-update"}, *log)

	h.Publish(context.Background(), TagMeals)
	for _, s := range subs {
		require.Len(t, s.msgs, 2)
		assert.Equal(t, TagCalendar, s.msgs[0].Type)
		assert.Equal(t, TagMeals, s.msgs[1].Type)
		assert.Equal(t, clock.Now().UTC(), s.msgs[0].Timestamp)
	}
}

func TestPublish_FailingSubscriberIsRemoved(t *testing.T) {
	t.Parallel()

	h := New(clockwork.NewFakeClock(), Options{})
	subs, log := newRecorders("a", "b", "c")
	subs[1].fail = true
	for _, s := range subs {
		h.Subscribe(s)
	}

	n := h.Publish(context.Background(), TagTasks)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, h.Len())
	assert.True(t, subs[1].closed)
	assert.Len(t, subs[2].msgs, 1, "later subscribers still receive the message")

	*log = nil
	h.Publish(context.Background(), TagTasks)
	assert.Equal(t, []string{"a:todo-update", "c:todo-update"}, *log, "removed subscriber is not retried")
}

// slowCloser fails every send and blocks in Close until released, like a
// dead WebSocket peer during the close handshake.
type slowCloser struct {
	closing chan struct{}
	release chan struct{}
}

func (s *slowCloser) Send(context.Context, Message) error { return errors.New("write: broken pipe") }

func (s *slowCloser) Close() {
	close(s.closing)
	<-s.release
}

func TestPublish_SlowCloseDoesNotBlockLaterPublishes(t *testing.T) {
	t.Parallel()

	h := New(clockwork.NewFakeClock(), Options{})
	dead := &slowCloser{closing: make(chan struct{}), release: make(chan struct{})}
	h.Subscribe(dead)
	subs, _ := newRecorders("a")
	h.Subscribe(subs[0])

	firstDone := make(chan int)
	go func() { firstDone <- h.Publish(context.Background(), TagCalendar) }()
	<-dead.closing

	secondDone := make(chan int)
	go func() { secondDone <- h.Publish(context.Background(), TagMeals) }()
	select {
	case n := <-secondDone:
		assert.Equal(t, 1, n, "dead subscriber is already out of the set")
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked behind a closing subscriber")
	}
	assert.Equal(t, 1, h.Len())

	close(dead.release)
	assert.Equal(t, 1, <-firstDone)
	require.Len(t, subs[0].msgs, 2)
}

func TestPublish_NoSubscribers(t *testing.T) {
	t.Parallel()

	h := New(nil, Options{})
	assert.Equal(t, 0, h.Publish(context.Background(), TagMeals))
}

func TestUnsubscribe_Twice(t *testing.T) {
	t.Parallel()

	h := New(nil, Options{})
	subs, _ := newRecorders("a")
	id := h.Subscribe(subs[0])

	assert.True(t, h.Unsubscribe(id))
	assert.False(t, h.Unsubscribe(id))
	assert.True(t, subs[0].closed)
}

func TestClose_ClosesAll(t *testing.T) {
	t.Parallel()

	h := New(nil, Options{})
	subs, _ := newRecorders("a", "b")
	for _, s := range subs {
		h.Subscribe(s)
	}
	h.Close()

	assert.Equal(t, 0, h.Len())
	for _, s := range subs {
		assert.True(t, s.closed)
	}
}

func TestStreamSubscriber_BufferFullAndClosed(t *testing.T) {
	t.Parallel()

	s := NewStreamSubscriber(1)
	ctx := context.Background()
	require.NoError(t, s.Send(ctx, Message{Type: TagMeals}))
	assert.ErrorIs(t, s.Send(ctx, Message{Type: TagMeals}), ErrBufferFull)

	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Send(ctx, Message{Type: TagMeals}), ErrClosed)

	msg, ok := <-s.Messages()
	assert.True(t, ok)
	assert.Equal(t, TagMeals, msg.Type)
	_, ok = <-s.Messages()
	assert.False(t, ok)
}

func TestEncodeSSE_Golden(t *testing.T) {
	t.Parallel()

	frame, err := EncodeSSE(Message{
		Type:      TagCalendar,
		Timestamp: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sse_frame", frame)
}

func readFrame(t *testing.T, r *bufio.Reader) Message {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg))
		return msg
	}
}

func TestServeSSE_ConnectedThenUpdates(t *testing.T) {
	t.Parallel()

	h := New(nil, Options{})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	r := bufio.NewReader(resp.Body)
	assert.Equal(t, TypeConnected, readFrame(t, r).Type)

	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.Publish(context.Background(), TagMeals)
	h.Publish(context.Background(), TagCalendar)

	assert.Equal(t, TagMeals, readFrame(t, r).Type)
	assert.Equal(t, TagCalendar, readFrame(t, r).Type)

	cancel()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_ReceivesUpdates(t *testing.T) {
	t.Parallel()

	h := New(nil, Options{})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() Message {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, TypeConnected, read().Type)
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Publish(context.Background(), TagTasks)
	assert.Equal(t, TagTasks, read().Type)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
