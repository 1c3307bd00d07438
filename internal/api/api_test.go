package api

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blossom-os/softwarehub/internal/cache"
	"github.com/blossom-os/softwarehub/internal/catalog"
	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/remote"
	"github.com/blossom-os/softwarehub/internal/system"
)

// upstream records the requests the catalog makes to the remote API
type upstream struct {
	mu       sync.Mutex
	requests []string
}

func (u *upstream) last() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.requests) == 0 {
		return ""
	}
	return u.requests[len(u.requests)-1]
}

// setupTestServer creates a server whose catalog talks to an httptest
// upstream serving routes; unknown paths 404
func setupTestServer(t *testing.T, routes map[string]string) (*Server, *progress.Hub, *upstream) {
	t.Helper()

	up := &upstream{}
	remoteServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.mu.Lock()
		up.requests = append(up.requests, r.URL.RequestURI())
		up.mu.Unlock()

		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(remoteServer.Close)

	// Create logger that doesn't output during tests
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	hub := progress.NewHub()
	c := catalog.New(nil, remote.NewClient(remoteServer.URL, remoteServer.Client()), logger, catalog.Options{Emitter: hub})
	server := NewServer(c, hub, system.NewMonitor("/"), ServerConfig{Port: 3010}, logger)

	return server, hub, up
}

func doRequest(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestAPI_Health(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := doRequest(t, server, "GET", "/api/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	decode(t, w, &response)
	assert.Equal(t, "ok", response["status"])
}

func TestAPI_Status(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := doRequest(t, server, "GET", "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	decode(t, w, &response)
	assert.Equal(t, false, response["privileged"])
	assert.Equal(t, true, response["cacheReady"])
	assert.Contains(t, response, "system")
}

func TestAPI_ListApps(t *testing.T) {
	server, _, _ := setupTestServer(t, map[string]string{
		"/appstream": `["org.gimp.GIMP","org.inkscape.Inkscape"]`,
	})

	w := doRequest(t, server, "GET", "/api/apps")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Apps []catalog.App `json:"apps"`
	}
	decode(t, w, &response)

	require.Len(t, response.Apps, 2)
	assert.Equal(t, "org.gimp.GIMP", response.Apps[0].AppID)
	assert.Equal(t, "org.inkscape.Inkscape", response.Apps[1].AppID)
}

func TestAPI_ListAppsByIDs(t *testing.T) {
	server, _, _ := setupTestServer(t, map[string]string{
		"/apps/a": `{"app_id":"a","name":"A"}`,
		"/apps/c": `{"app_id":"c","name":"C"}`,
	})

	w := doRequest(t, server, "GET", "/api/apps?ids=a,%20b,c,&skip_icon_data=true")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Apps []catalog.App `json:"apps"`
	}
	decode(t, w, &response)

	require.Len(t, response.Apps, 2)
	assert.Equal(t, "A", response.Apps[0].Name)
	assert.Equal(t, "C", response.Apps[1].Name)
}

func TestAPI_ListAppsInvalidFlag(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := doRequest(t, server, "GET", "/api/apps?ids=a&skip_icon_data=maybe")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_GetApp(t *testing.T) {
	server, _, _ := setupTestServer(t, map[string]string{
		"/apps/org.gimp.GIMP": `{"id":"org.gimp.GIMP","name":"GIMP","updated_at":"1700000000"}`,
	})

	t.Run("known", func(t *testing.T) {
		w := doRequest(t, server, "GET", "/api/apps/org.gimp.GIMP")
		require.Equal(t, http.StatusOK, w.Code)

		var app catalog.App
		decode(t, w, &app)
		assert.Equal(t, "org.gimp.GIMP", app.AppID)
		assert.Equal(t, "GIMP", app.Name)
		require.NotNil(t, app.UpdatedAt)
		assert.Equal(t, int64(1700000000), *app.UpdatedAt)
	})

	t.Run("unknown", func(t *testing.T) {
		w := doRequest(t, server, "GET", "/api/apps/org.missing.App")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"app_id":"org.missing.App"}`, w.Body.String())
	})
}

func TestAPI_ListCategories(t *testing.T) {
	server, _, _ := setupTestServer(t, map[string]string{
		"/categories": `["Game","Office"]`,
	})

	w := doRequest(t, server, "GET", "/api/categories")
	require.Equal(t, http.StatusOK, w.Code)

	var categories []catalog.Collection
	decode(t, w, &categories)
	require.Len(t, categories, 2)
	assert.Equal(t, "Game", categories[0].ID)
	assert.Equal(t, "Office", categories[1].Name)
}

func TestAPI_GetCategory(t *testing.T) {
	server, _, up := setupTestServer(t, map[string]string{
		"/apps/collection/category/Game": `{"hits":[{"app_id":"a"}],"totalHits":40}`,
	})

	tests := []struct {
		name        string
		target      string
		wantStatus  int
		wantRequest string
	}{
		{
			name:        "defaults",
			target:      "/api/categories/game",
			wantStatus:  http.StatusOK,
			wantRequest: "/apps/collection/category/Game?limit=24&offset=0",
		},
		{
			name:        "explicit page",
			target:      "/api/categories/Game?limit=10&offset=20",
			wantStatus:  http.StatusOK,
			wantRequest: "/apps/collection/category/Game?limit=10&offset=20",
		},
		{
			name:       "invalid limit",
			target:     "/api/categories/Game?limit=ten",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative offset",
			target:     "/api/categories/Game?offset=-1",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, "GET", tt.target)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			assert.Equal(t, tt.wantRequest, up.last())

			var collection catalog.Collection
			decode(t, w, &collection)
			assert.Equal(t, "Game", collection.ID)
			assert.Equal(t, 40, collection.TotalHits)
			require.Len(t, collection.Hits, 1)
		})
	}
}

func TestAPI_GetCollection(t *testing.T) {
	server, _, _ := setupTestServer(t, map[string]string{
		"/apps/collection/popular":  `{"hits":[{"app_id":"a"},{"app_id":"b"}],"totalHits":2}`,
		"/apps/collection/trending": `[{"app_id":"c"}]`,
	})

	tests := []struct {
		name      string
		target    string
		wantJSON  string
		wantCount int
	}{
		{name: "popular", target: "/api/collections/popular", wantCount: 2},
		{name: "trending", target: "/api/collections/trending", wantCount: 1},
		{name: "recently updated failure", target: "/api/collections/recently-updated", wantJSON: `{"hits":[],"apps":[],"totalHits":0}`},
		{name: "recently added", target: "/api/collections/recently-added", wantJSON: `{"hits":[],"apps":[],"totalHits":0}`},
		{name: "curated", target: "/api/collections/staff-picks", wantJSON: `{"id":"staff-picks","hits":[],"apps":[],"totalHits":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, "GET", tt.target)
			require.Equal(t, http.StatusOK, w.Code)

			if tt.wantJSON != "" {
				assert.JSONEq(t, tt.wantJSON, w.Body.String())
				return
			}

			var collection catalog.Collection
			decode(t, w, &collection)
			assert.Len(t, collection.Hits, tt.wantCount)
		})
	}
}

func TestAPI_Search(t *testing.T) {
	server, _, up := setupTestServer(t, map[string]string{
		"/apps/search": `{"hits":[{"app_id":"a"},{"app_id":"b"},{"app_id":"c"}]}`,
	})

	t.Run("missing query", func(t *testing.T) {
		w := doRequest(t, server, "GET", "/api/search")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("paged", func(t *testing.T) {
		w := doRequest(t, server, "GET", "/api/search?q=text+editor&limit=2&offset=1")
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "/apps/search?q=text+editor", up.last())

		var response catalog.SearchResponse
		decode(t, w, &response)
		assert.Equal(t, "text editor", response.Query)
		assert.Equal(t, 3, response.TotalHits)
		require.Len(t, response.Hits, 2)
		assert.Equal(t, "b", response.Hits[0].AppID)
	})
}

func TestAPI_Homepage(t *testing.T) {
	server, _, _ := setupTestServer(t, map[string]string{
		"/apps/collection/popular":          `{"hits":[{"app_id":"a"}]}`,
		"/apps/collection/trending":         `{"hits":[{"app_id":"b"}]}`,
		"/apps/collection/recently-updated": `{"hits":[{"app_id":"c"}]}`,
	})

	w := doRequest(t, server, "GET", "/api/homepage")
	require.Equal(t, http.StatusOK, w.Code)

	var homepage catalog.Homepage
	decode(t, w, &homepage)
	require.Len(t, homepage.Popular, 1)
	require.Len(t, homepage.Trending, 1)
	require.Len(t, homepage.RecentlyUpdated, 1)
	assert.Equal(t, "c", homepage.RecentlyUpdated[0].AppID)
}

func TestAPI_Installed(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := doRequest(t, server, "GET", "/api/installed")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, server, "GET", "/api/installed?ref=app/org.gimp.GIMP/x86_64/stable")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ref":"app/org.gimp.GIMP/x86_64/stable","installed":false}`, w.Body.String())
}

func TestAPI_CacheEndpoints(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := doRequest(t, server, "GET", "/api/cache/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ready":true}`, w.Body.String())

	w = doRequest(t, server, "POST", "/api/cache/initialize?clear=true")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"started","clear":true}`, w.Body.String())

	w = doRequest(t, server, "POST", "/api/cache/initialize?clear=sometimes")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, server, "POST", "/api/cache/reset")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, "GET", "/api/cache/initialize")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// readEvents collects data lines until the stream closes
func readEvents(t *testing.T, resp *http.Response, first chan<- struct{}) []progress.Event {
	t.Helper()

	var events []progress.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		if !assert.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev)) {
			continue
		}
		events = append(events, ev)
		if len(events) == 1 && first != nil {
			close(first)
		}
	}
	return events
}

func TestAPI_CacheProgressStream(t *testing.T) {
	server, hub, _ := setupTestServer(t, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	// In-flight state is replayed to late subscribers
	hub.Emit(progress.Event{Stage: progress.StageFetchingApps, Progress: 250, Total: 1000, Message: "Fetching apps"})

	resp, err := http.Get(ts.URL + "/api/cache/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	first := make(chan struct{})
	done := make(chan []progress.Event)
	go func() {
		done <- readEvents(t, resp, first)
	}()

	select {
	case <-first:
	case events := <-done:
		t.Fatalf("stream closed before the first event: %v", events)
	}
	count := 42
	hub.Emit(progress.Event{Stage: progress.StageComplete, Message: "Cache ready", AppCount: &count})

	events := <-done
	require.Len(t, events, 2)
	assert.Equal(t, progress.StageFetchingApps, events[0].Stage)
	assert.Equal(t, 250, events[0].Progress)
	assert.Equal(t, progress.StageComplete, events[1].Stage)
	require.NotNil(t, events[1].AppCount)
	assert.Equal(t, 42, *events[1].AppCount)

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAPI_CacheProgressSkipsFinishedRun(t *testing.T) {
	server, hub, _ := setupTestServer(t, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	hub.Emit(progress.ErrorEvent("Cache update failed", nil))

	resp, err := http.Get(ts.URL + "/api/cache/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	done := make(chan []progress.Event)
	go func() {
		done <- readEvents(t, resp, nil)
	}()

	hub.Emit(progress.Event{Stage: progress.StageComplete, Message: "Cache ready"})

	events := <-done
	require.Len(t, events, 1)
	assert.Equal(t, progress.StageComplete, events[0].Stage)
}

func TestAPI_CacheProgressWithoutHub(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)
	server.hub = nil

	w := doRequest(t, server, "GET", "/api/cache/progress")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// stuckChannel serves an empty popular collection and never finishes a
// collection refresh until release is closed
type stuckChannel struct {
	cache.Channel
	started chan struct{}
	release chan struct{}
}

func (c *stuckChannel) GetCollectionApps(ctx context.Context, collectionType string) ([]cache.CachedApp, error) {
	return nil, nil
}

func (c *stuckChannel) RefreshCollection(ctx context.Context, collectionType string) ([]string, error) {
	close(c.started)
	<-c.release
	return nil, nil
}

func TestAPI_ShutdownHonorsDeadline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	ch := &stuckChannel{started: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(ch.release) })

	c := catalog.New(ch, remote.NewClient("http://127.0.0.1:1", nil), logger, catalog.Options{})
	server := NewServer(c, nil, nil, ServerConfig{Port: 3010}, logger)

	c.GetCollectionPopular(context.Background())
	select {
	case <-ch.started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- server.Shutdown(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("Shutdown blocked past its deadline")
	}
}
