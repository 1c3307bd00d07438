package cache

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/remote"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func newTestPopulator(t *testing.T, handler http.Handler) (*Populator, sqlmock.Sqlmock, *recordingEmitter) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, mock := newMockStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	emitter := &recordingEmitter{}

	p := NewPopulator(store, remote.NewClient(server.URL, server.Client()), nil, emitter, logger)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p, mock, emitter
}

func TestParseAppJSON(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantID   string
		wantIcon string
		wantErr  bool
	}{
		{
			name:     "app_id with desktop icon",
			json:     `{"app_id":"org.gimp.GIMP","name":"GIMP","iconDesktopUrl":"https://x/desktop.png","icon":"https://x/icon.png"}`,
			wantID:   "org.gimp.GIMP",
			wantIcon: "https://x/desktop.png",
		},
		{
			name:     "flatpakAppId with plain icon",
			json:     `{"flatpakAppId":"org.inkscape.Inkscape","icon":"https://x/icon.png"}`,
			wantID:   "org.inkscape.Inkscape",
			wantIcon: "https://x/icon.png",
		},
		{
			name:   "id only",
			json:   `{"id":"org.kde.krita"}`,
			wantID: "org.kde.krita",
		},
		{
			name:    "no identifier",
			json:    `{"name":"Nameless"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := ParseAppJSON(gjson.Parse(tt.json), 99)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantID, app.AppID)
			assert.Equal(t, tt.wantID, StringValue(app.DownloadFlatpakRef))
			assert.Equal(t, tt.wantIcon, StringValue(app.IconURL))
			assert.Equal(t, int64(99), app.CachedAt)
		})
	}
}

func TestHasAppChanged(t *testing.T) {
	base := CachedApp{AppID: "a", Name: StringPtr("A"), Summary: StringPtr("s")}

	assert.False(t, HasAppChanged(base, base))

	renamed := base
	renamed.Name = StringPtr("B")
	assert.True(t, HasAppChanged(base, renamed))

	newIcon := base
	newIcon.IconURL = StringPtr("https://x/a.png")
	assert.True(t, HasAppChanged(base, newIcon))

	// Cache timestamps and icon bytes are not user-visible fields
	touched := base
	touched.CachedAt = 5
	touched.IconData = pngIcon
	assert.False(t, HasAppChanged(base, touched))
}

func TestCollectionHits(t *testing.T) {
	assert.Len(t, CollectionHits(gjson.Parse(`{"hits":[{"app_id":"a"}]}`)).Array(), 1)
	assert.Len(t, CollectionHits(gjson.Parse(`{"apps":[{"app_id":"a"},{"app_id":"b"}]}`)).Array(), 2)
	assert.Len(t, CollectionHits(gjson.Parse(`["a","b","c"]`)).Array(), 3)
	assert.False(t, CollectionHits(gjson.Parse(`{"totalHits":3}`)).Exists())
}

func TestPopulator_RefreshCollection(t *testing.T) {
	p, mock, _ := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/collection/popular", r.URL.Path)
		w.Write([]byte(`{"hits":[{"app_id":"a","name":"A","summary":"s","icon":"https://x/a.png"},{"app_id":"b"}],"totalHits":50}`))
	}))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO apps .+ ON CONFLICT \(app_id\) DO NOTHING`).
		WithArgs("a", "A", "s", "a", "https://x/a.png", int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO category_collections`).
		WithArgs("popular", 50, int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM category_collection_apps`).
		WithArgs("popular").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO category_collection_apps`).
		WithArgs("popular", "a", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO category_collection_apps`).
		WithArgs("popular", "b", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids, err := p.RefreshCollection(context.Background(), CollectionPopular)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulator_RefreshCollection_NotFound(t *testing.T) {
	p, mock, _ := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	ids, err := p.RefreshCollection(context.Background(), CollectionTrending)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulator_RefreshCollection_UnknownType(t *testing.T) {
	p, _, _ := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	_, err := p.RefreshCollection(context.Background(), "featured")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collection type")
}

func TestPopulator_RefreshCategoryCollection_ServerError(t *testing.T) {
	p, mock, _ := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/collection/category/Game", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := p.RefreshCategoryCollection(context.Background(), "Game")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch category collection")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulator_DownloadIcon(t *testing.T) {
	var requests int
	var mu sync.Mutex
	p, mock, _ := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Write(pngIcon)
	}))
	iconURL := p.remote.BaseURL() + "/icons/a.png"

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE apps SET icon_data = \$1 WHERE app_id = \$2`).
		WithArgs(pngIcon, "a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.DownloadIcon(context.Background(), "a", iconURL))

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, p.DownloadIcon(context.Background(), "a", iconURL))

	assert.Equal(t, 1, requests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulator_Run_ClearFailureEmitsError(t *testing.T) {
	p, mock, emitter := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	mock.ExpectExec(`DELETE FROM category_collection_apps`).WillReturnError(assert.AnError)

	err := p.Run(context.Background(), true)
	require.Error(t, err)
	assert.False(t, p.Running())

	events := emitter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, progress.StageError, events[0].Stage)
	assert.Zero(t, events[0].Progress)
	assert.Zero(t, events[0].Total)
	assert.Equal(t, "Cache initialization failed", events[0].Message)
	assert.True(t, events[0].IsFinal())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulator_RunRejectsConcurrentPopulation(t *testing.T) {
	p, _, _ := newTestPopulator(t, http.NotFoundHandler())

	p.running.Store(true)
	assert.ErrorIs(t, p.Run(context.Background(), false), ErrPopulationRunning)
	assert.ErrorIs(t, p.Start(false), ErrPopulationRunning)
}

func TestService_InitiatePopulationWhileRunning(t *testing.T) {
	p, _, _ := newTestPopulator(t, http.NotFoundHandler())
	p.running.Store(true)

	svc := NewService(p.store, p, &FlatpakChecker{binary: "false"})

	require.NoError(t, svc.InitiatePopulation(context.Background(), false))
	assert.True(t, svc.Populating())
}

func TestPopulator_StopCancelsBackgroundPopulation(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	release := make(chan struct{})

	p, _, emitter := newTestPopulator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() { close(release) })

	require.NoError(t, p.Start(false))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("population never reached the remote API")
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.False(t, p.Running())
	assert.ErrorIs(t, p.Start(false), ErrPopulatorStopped)

	events := emitter.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, progress.StageError, events[len(events)-1].Stage)
}

func TestService_CloseStopsPopulator(t *testing.T) {
	p, _, _ := newTestPopulator(t, http.NotFoundHandler())
	svc := NewService(p.store, p, &FlatpakChecker{binary: "false"})

	svc.Close()

	assert.ErrorIs(t, svc.InitiatePopulation(context.Background(), false), ErrPopulatorStopped)
	assert.False(t, svc.Populating())
}
