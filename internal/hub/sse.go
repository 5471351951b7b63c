package hub

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	appLog "weekplanner/internal/log"
)

// StreamSubscriber queues messages for an SSE handler goroutine, which owns
// the ResponseWriter. Send never blocks: a full queue counts as a failed
// write so one stalled client cannot hold up a publish.
type StreamSubscriber struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewStreamSubscriber creates a subscriber with room for buffer messages.
func NewStreamSubscriber(buffer int) *StreamSubscriber {
	return &StreamSubscriber{ch: make(chan Message, buffer)}
}

func (s *StreamSubscriber) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

func (s *StreamSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Messages is closed once the subscriber is closed.
func (s *StreamSubscriber) Messages() <-chan Message {
	return s.ch
}

// EncodeSSE renders msg as a single `data:` event frame.
func EncodeSSE(msg Message) ([]byte, error) {
	data, err := encodeJSON(msg)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// WriteSSE writes one event frame to w.
func WriteSSE(w io.Writer, msg Message) error {
	frame, err := EncodeSSE(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ServeSSE streams notifications to one client until it disconnects or a
// write fails. The client is unsubscribed before this returns.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no") // For nginx
	w.WriteHeader(http.StatusOK)

	if err := WriteSSE(w, h.connected()); err != nil {
		return
	}
	flusher.Flush()

	sub := NewStreamSubscriber(h.opts.Buffer)
	id := h.Subscribe(sub)
	defer h.Unsubscribe(id)

	var keepalive <-chan time.Time
	if h.opts.Keepalive > 0 {
		ticker := h.clock.NewTicker(h.opts.Keepalive)
		defer ticker.Stop()
		keepalive = ticker.Chan()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := WriteSSE(w, msg); err != nil {
				appLog.Warn("sse write failed", "handle", id, "err", err)
				return
			}
			flusher.Flush()
		case <-keepalive:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
