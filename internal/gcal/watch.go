// Package gcal registers Google Calendar push notification channels.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"weekplanner/internal/config"
	appLog "weekplanner/internal/log"
)

const (
	DefaultAPIURL   = "https://www.googleapis.com/calendar/v3"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	calendarScope = "https://www.googleapis.com/auth/calendar.readonly"
)

// Channel is an active watch channel.
type Channel struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resourceId"`
	CalendarID string    `json:"calendarId"`
	Expiration time.Time `json:"expiration"`
}

// Registrar creates and stops watch channels.
type Registrar struct {
	http   *http.Client
	apiURL string
}

// Options overrides endpoints, mainly for tests.
type Options struct {
	APIURL     string
	TokenURL   string
	BaseClient *http.Client
}

// NewRegistrar builds a registrar authorized by the refresh token in cfg.
func NewRegistrar(ctx context.Context, cfg config.OAuthConfig, opts Options) *Registrar {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.BaseClient == nil {
		opts.BaseClient = &http.Client{Timeout: 15 * time.Second}
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: opts.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       []string{calendarScope},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.BaseClient)
	hc := oc.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	hc.Timeout = opts.BaseClient.Timeout
	return &Registrar{http: hc, apiURL: strings.TrimRight(opts.APIURL, "/")}
}

type watchRequest struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Address string            `json:"address"`
	Token   string            `json:"token,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

type watchResponse struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
	// Expiration is milliseconds since the epoch, encoded as a string.
	Expiration string `json:"expiration"`
}

// Watch asks Google to post change notifications for calendarID to address
// until ttl elapses. token is echoed back in X-Goog-Channel-Token.
func (r *Registrar) Watch(ctx context.Context, calendarID, address, token string, ttl time.Duration) (Channel, error) {
	body := watchRequest{
		ID:      uuid.NewString(),
		Type:    "web_hook",
		Address: address,
		Token:   token,
	}
	if ttl > 0 {
		body.Params = map[string]string{"ttl": strconv.FormatInt(int64(ttl/time.Second), 10)}
	}

	var resp watchResponse
	u := fmt.Sprintf("%s/calendars/%s/events/watch", r.apiURL, url.PathEscape(calendarID))
	if err := r.post(ctx, u, body, &resp); err != nil {
		return Channel{}, fmt.Errorf("watch calendar %s: %w", calendarID, err)
	}

	ch := Channel{ID: resp.ID, ResourceID: resp.ResourceID, CalendarID: calendarID}
	if ms, err := strconv.ParseInt(resp.Expiration, 10, 64); err == nil {
		ch.Expiration = time.UnixMilli(ms).UTC()
	}
	appLog.Info("watch channel created", "calendar", calendarID, "channel", ch.ID, "expires", ch.Expiration)
	return ch, nil
}

// Stop ends a channel.
func (r *Registrar) Stop(ctx context.Context, ch Channel) error {
	body := map[string]string{"id": ch.ID, "resourceId": ch.ResourceID}
	if err := r.post(ctx, r.apiURL+"/channels/stop", body, nil); err != nil {
		return fmt.Errorf("stop channel %s: %w", ch.ID, err)
	}
	appLog.Info("watch channel stopped", "calendar", ch.CalendarID, "channel", ch.ID)
	return nil
}

func (r *Registrar) post(ctx context.Context, u string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("google returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
