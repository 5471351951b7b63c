// Package pushclient consumes the server's push stream and reconnects with
// exponential backoff when the connection drops.
package pushclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"weekplanner/internal/hub"
	appLog "weekplanner/internal/log"
)

var errStreamClosed = errors.New("push stream closed by server")

// Options configures a Client. Zero values get defaults.
type Options struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HTTPClient        *http.Client
	Clock             clockwork.Clock
}

// Client reads {type, timestamp} messages from an SSE endpoint.
type Client struct {
	url   string
	opts  Options
	clock clockwork.Clock
}

func New(url string, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = max(60*time.Second, opts.ReconnectDelay)
	}
	if opts.HTTPClient == nil {
		// No overall timeout; the stream is long-lived.
		opts.HTTPClient = &http.Client{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Client{url: url, opts: opts, clock: opts.Clock}
}

// newBackOff doubles from initial up to maxDelay without jitter and never
// gives up.
func newBackOff(initial, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and calls handle for every message until ctx is done. After a
// transport error it waits the current backoff before retrying; a connection
// that was established resets the delay to the base value.
func (c *Client) Run(ctx context.Context, handle func(hub.Message)) error {
	b := newBackOff(c.opts.ReconnectDelay, c.opts.MaxReconnectDelay)
	for {
		connected, err := c.stream(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		appLog.Warn("push stream lost; reconnecting", "err", err, "in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(wait):
		}
	}
}

// stream reads one connection to its end. connected reports whether the
// server accepted the request.
func (c *Client) stream(ctx context.Context, handle func(hub.Message)) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("push stream: unexpected status %s", resp.Status)
	}
	appLog.Info("push stream connected", "url", c.url)

	sc := bufio.NewScanner(resp.Body)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatch(data.String(), handle)
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return true, err
	}
	return true, errStreamClosed
}

func (c *Client) dispatch(payload string, handle func(hub.Message)) {
	var msg hub.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		appLog.Warn("ignoring malformed push message", "err", err)
		return
	}
	handle(msg)
}
