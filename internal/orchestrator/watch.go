package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"weekplanner/internal/gcal"
	appLog "weekplanner/internal/log"
)

// WebhookPath is where providers post calendar change notifications.
const WebhookPath = "/api/webhook/calendar"

// ChannelRegistrar creates and stops upstream watch channels.
type ChannelRegistrar interface {
	Watch(ctx context.Context, calendarID, address, token string, ttl time.Duration) (gcal.Channel, error)
	Stop(ctx context.Context, ch gcal.Channel) error
}

// WatchConfig describes the channels a WatchManager keeps alive.
type WatchConfig struct {
	CalendarIDs []string
	// BaseURL is the public URL of this server; WebhookPath is appended.
	BaseURL string
	Token   string
	TTL     time.Duration
}

// WatchManager keeps one push channel per calendar registered. Renew is
// meant to run on an interval shorter than the channel TTL so coverage never
// lapses.
type WatchManager struct {
	reg ChannelRegistrar
	cfg WatchConfig

	mu       sync.Mutex
	channels map[string]gcal.Channel
}

func NewWatchManager(reg ChannelRegistrar, cfg WatchConfig) *WatchManager {
	return &WatchManager{reg: reg, cfg: cfg, channels: make(map[string]gcal.Channel)}
}

func (w *WatchManager) address() string {
	return strings.TrimRight(w.cfg.BaseURL, "/") + WebhookPath
}

// Setup registers a channel for every calendar. Failures are logged and
// joined; calendars that did register stay registered.
func (w *WatchManager) Setup(ctx context.Context) error {
	var errs []error
	for _, id := range w.cfg.CalendarIDs {
		ch, err := w.reg.Watch(ctx, id, w.address(), w.cfg.Token, w.cfg.TTL)
		if err != nil {
			appLog.Error("watch channel setup failed", err, "calendar", id)
			errs = append(errs, err)
			continue
		}
		w.mu.Lock()
		w.channels[id] = ch
		w.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Renew registers a fresh channel per calendar and then stops the old one.
// If registering fails the old channel is kept until it expires.
func (w *WatchManager) Renew(ctx context.Context) {
	for _, id := range w.cfg.CalendarIDs {
		ch, err := w.reg.Watch(ctx, id, w.address(), w.cfg.Token, w.cfg.TTL)
		if err != nil {
			appLog.Error("watch channel renewal failed", err, "calendar", id)
			continue
		}
		w.mu.Lock()
		old, had := w.channels[id]
		w.channels[id] = ch
		w.mu.Unlock()
		if had {
			w.stop(ctx, old)
		}
	}
	appLog.Info("watch channels renewed", "channels", len(w.Channels()))
}

// StopAll stops every channel, best effort.
func (w *WatchManager) StopAll(ctx context.Context) {
	w.mu.Lock()
	chans := w.channels
	w.channels = make(map[string]gcal.Channel)
	w.mu.Unlock()
	for _, ch := range chans {
		w.stop(ctx, ch)
	}
}

func (w *WatchManager) stop(ctx context.Context, ch gcal.Channel) {
	if err := w.reg.Stop(ctx, ch); err != nil {
		appLog.Warn("stopping watch channel failed", "calendar", ch.CalendarID, "channel", ch.ID, "err", err)
	}
}

// Channels returns the active channels.
func (w *WatchManager) Channels() []gcal.Channel {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]gcal.Channel, 0, len(w.channels))
	for _, ch := range w.channels {
		out = append(out, ch)
	}
	return out
}

// Token is the channel token providers echo back, empty if unset.
func (w *WatchManager) Token() string { return w.cfg.Token }
