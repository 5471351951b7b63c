// Package todo reads incomplete tasks from a Microsoft To Do list through
// Microsoft Graph.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"weekplanner/internal/config"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
)

const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

var scopes = []string{
	"https://graph.microsoft.com/Tasks.Read",
	"https://graph.microsoft.com/Tasks.Read.Shared",
	"offline_access",
}

// TokenURL is the Microsoft identity platform token endpoint for tenant.
func TokenURL(tenant string) string {
	if tenant == "" {
		tenant = "common"
	}
	return "https://login.microsoftonline.com/" + url.PathEscape(tenant) + "/oauth2/v2.0/token"
}

// List identifies the To Do list and how its tasks are labeled.
type List struct {
	ID    string
	Name  string
	Color string
}

// Client fetches one list's tasks.
type Client struct {
	http     *http.Client
	graphURL string
	list     List
}

// Options overrides endpoints, mainly for tests.
type Options struct {
	GraphURL string
	TokenURL string
	// BaseClient carries requests, including token refreshes.
	BaseClient *http.Client
}

// NewClient builds a Graph client that refreshes its access token from the
// configured refresh token.
func NewClient(ctx context.Context, cfg config.TasksConfig, opts Options) *Client {
	if opts.GraphURL == "" {
		opts.GraphURL = DefaultGraphURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = TokenURL(cfg.TenantID)
	}
	if opts.BaseClient == nil {
		opts.BaseClient = &http.Client{Timeout: 15 * time.Second}
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: opts.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       scopes,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.BaseClient)
	hc := oc.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	hc.Timeout = opts.BaseClient.Timeout

	return &Client{
		http:     hc,
		graphURL: strings.TrimRight(opts.GraphURL, "/"),
		list:     List{ID: cfg.ListID, Name: cfg.ListName, Color: cfg.Color},
	}
}

type graphTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Importance  string `json:"importance"`
	DueDateTime *struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"dueDateTime"`
}

type graphPage struct {
	Value    []graphTask `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// FetchTasks returns the incomplete tasks of the list, sorted.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	q := url.Values{}
	q.Set("$filter", "status ne 'completed'")
	next := fmt.Sprintf("%s/me/todo/lists/%s/tasks?%s", c.graphURL, url.PathEscape(c.list.ID), q.Encode())

	tasks := make([]model.Task, 0)
	for next != "" {
		page, err := c.getPage(ctx, next)
		if err != nil {
			return nil, &model.UpstreamError{Source: "graph:" + c.list.ID, Err: err}
		}
		for _, gt := range page.Value {
			if gt.Status == "completed" {
				continue
			}
			tasks = append(tasks, c.toTask(gt))
		}
		next = page.NextLink
	}

	SortTasks(tasks)
	appLog.Info("fetched tasks", "list", c.list.Name, "tasks", len(tasks))
	return tasks, nil
}

func (c *Client) getPage(ctx context.Context, u string) (graphPage, error) {
	var page graphPage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return page, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return page, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return page, fmt.Errorf("graph returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode graph response: %w", err)
	}
	return page, nil
}

func (c *Client) toTask(gt graphTask) model.Task {
	t := model.Task{
		ID:         gt.ID,
		Title:      gt.Title,
		Importance: model.Importance(gt.Importance),
		ListID:     c.list.ID,
		ListName:   c.list.Name,
		ListColor:  c.list.Color,
	}
	if t.Importance == "" {
		t.Importance = model.ImportanceNormal
	}
	if gt.DueDateTime != nil && gt.DueDateTime.DateTime != "" {
		due, _, _ := strings.Cut(gt.DueDateTime.DateTime, "T")
		t.DueDate = &due
	}
	return t
}

// SortTasks orders by importance (high first), then due date with undated
// tasks last, then title in Danish collation.
func SortTasks(tasks []model.Task) {
	col := collate.New(language.Danish)
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		if d := a.Importance.Rank() - b.Importance.Rank(); d != 0 {
			return d
		}
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return -1
		case a.DueDate == nil && b.DueDate != nil:
			return 1
		case a.DueDate != nil && b.DueDate != nil:
			if c := strings.Compare(*a.DueDate, *b.DueDate); c != 0 {
				return c
			}
		}
		return col.CompareString(a.Title, b.Title)
	})
}
