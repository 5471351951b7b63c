// Package hub fans out lightweight "domain changed" notifications to every
// open display connection.
//
// Publish is synchronous: each call sends one message to each subscriber in
// subscription order, and publishes are serialized, so a subscriber always
// sees notifications in publish order. A subscriber whose send fails is
// removed and never retried; the remaining subscribers still receive the
// message.
package hub

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	appLog "weekplanner/internal/log"
)

// Notification tags published by the sync engine.
const (
	TagCalendar = "calendar-update"
	TagTasks    = "todo-update"
	TagMeals    = "meal-update"

	// TypeConnected is sent once to a new connection before any update.
	TypeConnected = "connected"
)

var (
	ErrClosed     = errors.New("hub: subscriber closed")
	ErrBufferFull = errors.New("hub: subscriber buffer full")
)

// Message is the payload pushed to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Subscriber is one open connection.
type Subscriber interface {
	// Send delivers msg or returns an error; ctx bounds the write.
	Send(ctx context.Context, msg Message) error
	// Close releases the connection. It must be safe to call twice.
	Close()
}

// Handle identifies a subscription.
type Handle string

// Options tunes a Hub. Zero values get defaults.
type Options struct {
	// SendTimeout bounds a single send to one subscriber.
	SendTimeout time.Duration
	// Keepalive is the interval between SSE comment frames; zero disables.
	Keepalive time.Duration
	// Buffer is the per-connection queue length for SSE subscribers.
	Buffer int
	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
}

type registration struct {
	sub Subscriber
	seq uint64
}

// Hub holds the set of open subscribers.
type Hub struct {
	clock clockwork.Clock
	opts  Options

	// pubMu serializes Publish so per-subscriber order matches publish order.
	pubMu sync.Mutex

	mu   sync.RWMutex
	subs map[Handle]registration
	seq  uint64
}

// New creates an empty Hub. A nil clock means the real clock.
func New(clock clockwork.Clock, opts Options) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	return &Hub{
		clock: clock,
		opts:  opts,
		subs:  make(map[Handle]registration),
	}
}

// Subscribe registers sub and returns its handle.
func (h *Hub) Subscribe(sub Subscriber) Handle {
	id := Handle(uuid.NewString())
	h.mu.Lock()
	h.seq++
	h.subs[id] = registration{sub: sub, seq: h.seq}
	n := len(h.subs)
	h.mu.Unlock()

	appLog.Info("push client connected", "handle", id, "clients", n)
	return id
}

// Unsubscribe removes and closes the subscriber. It reports whether the
// handle was still registered.
func (h *Hub) Unsubscribe(id Handle) bool {
	sub, ok := h.detach(id)
	if !ok {
		return false
	}
	sub.Close()
	return true
}

// detach removes id from the set without closing it.
func (h *Hub) detach(id Handle) (Subscriber, bool) {
	h.mu.Lock()
	reg, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		appLog.Info("push client disconnected", "handle", id, "clients", n)
	}
	return reg.sub, ok
}

// Publish sends a {type: tag, timestamp} message to every subscriber
// registered before the call and returns how many accepted it. Subscribers
// whose send fails are removed before the next publish starts and closed
// after this one has released the publish lock.
func (h *Hub) Publish(ctx context.Context, tag string) int {
	delivered, failed := h.deliver(ctx, tag)
	for _, sub := range failed {
		sub.Close()
	}
	return delivered
}

func (h *Hub) deliver(ctx context.Context, tag string) (int, []Subscriber) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	msg := Message{Type: tag, Timestamp: h.clock.Now().UTC()}

	type target struct {
		id  Handle
		reg registration
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.subs))
	for id, reg := range h.subs {
		targets = append(targets, target{id: id, reg: reg})
	}
	h.mu.RUnlock()
	slices.SortFunc(targets, func(a, b target) int { return cmp.Compare(a.reg.seq, b.reg.seq) })

	var failed []Subscriber
	delivered := 0
	for _, t := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, h.opts.SendTimeout)
		err := t.reg.sub.Send(sendCtx, msg)
		cancel()
		if err != nil {
			appLog.Warn("push send failed; dropping client", "handle", t.id, "type", tag, "err", err)
			if sub, ok := h.detach(t.id); ok {
				failed = append(failed, sub)
			}
			continue
		}
		delivered++
	}

	appLog.Info("broadcast update", "type", tag, "clients", delivered)
	return delivered, failed
}

// Len returns the number of open subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]Handle, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Unsubscribe(id)
	}
}

func (h *Hub) connected() Message {
	return Message{Type: TypeConnected, Timestamp: h.clock.Now().UTC()}
}

func encodeJSON(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
