package todo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplanner/internal/config"
	"weekplanner/internal/model"
)

func strPtr(s string) *string { return &s }

func graphServer(t *testing.T, failTasks bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	var srvURL string
	mux.HandleFunc("GET /me/todo/lists/{list}/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "shopping", r.PathValue("list"))
		if failTasks {
			http.Error(w, `{"error":"nope"}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"id": "4", "title": "Æbler", "status": "notStarted", "importance": "normal"},
					{"id": "5", "title": "Done", "status": "completed", "importance": "high"},
				},
			})
			return
		}
		assert.Equal(t, "status ne 'completed'", r.URL.Query().Get("$filter"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "1", "title": "Mælk", "status": "notStarted", "importance": "low"},
				{"id": "2", "title": "Brød", "status": "notStarted", "importance": "high",
					"dueDateTime": map[string]string{"dateTime": "2026-02-12T00:00:00.0000000", "timeZone": "UTC"}},
				{"id": "3", "title": "Ost", "status": "inProgress", "importance": "normal",
					"dueDateTime": map[string]string{"dateTime": "2026-02-10T00:00:00.0000000", "timeZone": "UTC"}},
			},
			"@odata.nextLink": srvURL + "/me/todo/lists/shopping/tasks?page=2",
		})
	})
	srv := httptest.NewServer(mux)
	srvURL = srv.URL
	t.Cleanup(srv.Close)
	return srv, &refreshes
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(context.Background(), config.TasksConfig{
		ListID:       "shopping",
		ListName:     "Indkøb",
		Color:        "#0078D4",
		ClientID:     "client-1",
		ClientSecret: "secret",
		RefreshToken: "rt-1",
	}, Options{
		GraphURL:   srv.URL,
		TokenURL:   srv.URL + "/token",
		BaseClient: srv.Client(),
	})
}

func TestClient_FetchTasks(t *testing.T) {
	t.Parallel()

	srv, refreshes := graphServer(t, false)
	c := newTestClient(srv)

	tasks, err := c.FetchTasks(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
		assert.Equal(t, "Indkøb", task.ListName)
		assert.Equal(t, "#0078D4", task.ListColor)
	}
	assert.Equal(t, []string{"2", "3", "4", "1"}, ids)
	require.NotNil(t, tasks[0].DueDate)
	assert.Equal(t, "2026-02-12", *tasks[0].DueDate)

	_, err = c.FetchTasks(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, refreshes.Load(), "access token is reused until it expires")
}

func TestClient_FetchTasksFailure(t *testing.T) {
	t.Parallel()

	srv, _ := graphServer(t, true)
	_, err := newTestClient(srv).FetchTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}

func TestSortTasks(t *testing.T) {
	t.Parallel()

	tasks := []model.Task{
		{ID: "low", Title: "A", Importance: model.ImportanceLow},
		{ID: "undated", Title: "B", Importance: model.ImportanceNormal},
		{ID: "late", Title: "C", Importance: model.ImportanceNormal, DueDate: strPtr("2026-03-01")},
		{ID: "early", Title: "D", Importance: model.ImportanceNormal, DueDate: strPtr("2026-02-01")},
		{ID: "high", Title: "Z", Importance: model.ImportanceHigh},
		{ID: "aa", Title: "Ål", Importance: model.ImportanceLow},
		{ID: "oe", Title: "Øl", Importance: model.ImportanceLow},
	}
	SortTasks(tasks)

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"high", "early", "late", "undated", "low", "oe", "aa"}, ids)
}

func TestTokenURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/token", TokenURL(""))
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", TokenURL("contoso"))
}
