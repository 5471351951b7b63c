package hub

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"

	appLog "weekplanner/internal/log"
)

// WSSubscriber writes notifications as WebSocket text frames.
type WSSubscriber struct {
	conn   *websocket.Conn
	broken atomic.Bool
}

func (s *WSSubscriber) Send(ctx context.Context, msg Message) error {
	data, err := encodeJSON(msg)
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.broken.Store(true)
		return err
	}
	return nil
}

// Close does the close handshake, or drops the connection at once when a
// write already failed since the peer will not answer.
func (s *WSSubscriber) Close() {
	if s.broken.Load() {
		_ = s.conn.CloseNow()
		return
	}
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
}

// ServeWS upgrades the request and keeps the connection subscribed until
// the client goes away. Client messages are read and discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		appLog.Error("websocket upgrade failed", err)
		return
	}

	sub := &WSSubscriber{conn: conn}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.SendTimeout)
	err = sub.Send(ctx, h.connected())
	cancel()
	if err != nil {
		sub.Close()
		return
	}

	id := h.Subscribe(sub)
	defer h.Unsubscribe(id)

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
