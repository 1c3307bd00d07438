package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/remote"
)

const (
	appsPerChunk     = 250
	fetchConcurrency = 16
	iconConcurrency  = 8
)

var (
	// ErrPopulationRunning is returned when a population is already in progress
	ErrPopulationRunning = errors.New("cache population already running")
	// ErrPopulatorStopped is returned by Start after Stop
	ErrPopulatorStopped = errors.New("cache populator stopped")
)

// Populator fills the cache from the remote catalog API
type Populator struct {
	store      *Store
	remote     *remote.Client
	categories []CachedCategory
	emitter    progress.Emitter
	logger     *slog.Logger
	now        func() time.Time
	running    atomic.Bool
	wg         sync.WaitGroup

	// background populations run on stopCtx until Stop cancels it
	stopCtx context.Context
	stop    context.CancelFunc
}

// NewPopulator creates a populator writing to store
func NewPopulator(store *Store, client *remote.Client, categories []CachedCategory, emitter progress.Emitter, logger *slog.Logger) *Populator {
	if emitter == nil {
		emitter = progress.Discard
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Populator{
		stopCtx:    stopCtx,
		stop:       stop,
		store:      store,
		remote:     client,
		categories: categories,
		emitter:    emitter,
		logger:     logger,
		now:        time.Now,
	}
}

// Start runs a population in the background and returns immediately.
// The outcome is reported through progress events only.
func (p *Populator) Start(clear bool) error {
	if p.stopCtx.Err() != nil {
		return ErrPopulatorStopped
	}
	if !p.running.CompareAndSwap(false, true) {
		return ErrPopulationRunning
	}

	p.logger.Info("starting cache population in background", "clear_cache", clear)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		_ = p.run(p.stopCtx, clear)
	}()
	return nil
}

// Run populates the cache in the foreground
func (p *Populator) Run(ctx context.Context, clear bool) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPopulationRunning
	}
	defer p.running.Store(false)
	return p.run(ctx, clear)
}

// Wait blocks until a background population started with Start finishes
func (p *Populator) Wait() {
	p.wg.Wait()
}

// Stop cancels a background population and waits for it to return. The
// store must stay open until Stop returns. Later calls to Start fail.
func (p *Populator) Stop() {
	p.stop()
	p.wg.Wait()
}

// Running reports whether a population is in progress
func (p *Populator) Running() bool {
	return p.running.Load()
}

func (p *Populator) run(ctx context.Context, clear bool) error {
	if clear {
		p.logger.Info("clearing existing cache")
		if err := p.store.Clear(ctx); err != nil {
			p.fail("Cache initialization failed", err)
			return err
		}

		if err := p.fetchAllData(ctx); err != nil {
			p.fail("Cache initialization failed", err)
			return err
		}
		p.logger.Info("cache initialization completed successfully")
		return nil
	}

	if err := p.fetchUpdatedData(ctx); err != nil {
		p.fail("Cache update failed", err)
		return err
	}
	p.logger.Info("cache update completed successfully")
	return nil
}

func (p *Populator) fail(message string, err error) {
	p.logger.Error(message, "error", err)
	p.emitter.Emit(progress.ErrorEvent(message, err))
}

// fetchAllData fetches special collections first, then every app alongside
// the categories and their collections
func (p *Populator) fetchAllData(ctx context.Context) error {
	p.refreshSpecialCollections(ctx)

	var g errgroup.Group
	g.Go(func() error {
		if err := p.fetchAllApps(ctx); err != nil {
			p.logger.Error("failed to fetch all apps", "error", err)
		}
		return nil
	})

	err := p.writeCategories(ctx)
	if err == nil {
		p.fetchAllCategoryCollections(ctx)
	}
	_ = g.Wait()
	if err != nil {
		return err
	}

	return p.complete(ctx, "Cache complete! Cached %d apps")
}

// fetchUpdatedData refreshes collections and only the apps that changed recently
func (p *Populator) fetchUpdatedData(ctx context.Context) error {
	p.refreshSpecialCollections(ctx)

	var g errgroup.Group
	g.Go(func() error {
		if err := p.fetchRecentlyUpdatedApps(ctx); err != nil {
			p.logger.Error("failed to fetch recently updated apps", "error", err)
		}
		return nil
	})

	categories, err := p.store.GetCategories(ctx)
	if err == nil && len(categories) == 0 {
		err = p.writeCategories(ctx)
	}
	if err == nil {
		p.fetchAllCategoryCollections(ctx)
	}
	_ = g.Wait()
	if err != nil {
		return err
	}

	return p.complete(ctx, "Cache updated! %d apps cached")
}

func (p *Populator) complete(ctx context.Context, format string) error {
	count, err := p.store.CountApps(ctx)
	if err != nil {
		return err
	}
	p.emitter.Emit(progress.Event{
		Stage:    progress.StageComplete,
		Progress: count,
		Total:    count,
		Message:  fmt.Sprintf(format, count),
		AppCount: &count,
	})
	return nil
}

func (p *Populator) refreshSpecialCollections(ctx context.Context) {
	for _, collectionType := range SpecialCollections {
		if _, err := p.RefreshCollection(ctx, collectionType); err != nil {
			p.logger.Warn("failed to fetch collection", "collection", collectionType, "error", err)
		}
	}
}

func (p *Populator) writeCategories(ctx context.Context) error {
	now := p.now().Unix()
	categories := make([]CachedCategory, len(p.categories))
	for i, c := range p.categories {
		c.CachedAt = now
		categories[i] = c
	}
	return p.store.WriteCategories(ctx, categories)
}

func (p *Populator) fetchAllCategoryCollections(ctx context.Context) {
	total := len(p.categories)
	for i, c := range p.categories {
		if err := p.RefreshCategoryCollection(ctx, c.ID); err != nil {
			p.logger.Warn("failed to fetch collection for category", "category", c.ID, "error", err)
		}
		p.emitter.Emit(progress.Event{
			Stage:      progress.StageFetchingCollections,
			Progress:   i + 1,
			Total:      total,
			Message:    fmt.Sprintf("Fetched %d/%d collections", i+1, total),
			CategoryID: c.ID,
		})
	}
}

// RefreshCollection refetches a special collection and caches its ranked
// ids along with the app rows carried in the response. An unknown collection
// upstream (404) yields an empty list.
func (p *Populator) RefreshCollection(ctx context.Context, collectionType string) ([]string, error) {
	if !IsSpecialCollection(collectionType) {
		return nil, fmt.Errorf("unknown collection type: %s", collectionType)
	}

	body, err := p.remote.Get(ctx, "/apps/collection/"+collectionType)
	if err != nil {
		var remoteErr *remote.Error
		if errors.As(err, &remoteErr) && remoteErr.Status == http.StatusNotFound {
			p.logger.Warn("collection endpoint not found, skipping", "collection", collectionType)
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to fetch collection: %w", err)
	}

	ids, err := p.storeCollection(ctx, collectionType, gjson.ParseBytes(body))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RefreshCategoryCollection refetches one category collection
func (p *Populator) RefreshCategoryCollection(ctx context.Context, categoryID string) error {
	body, err := p.remote.Get(ctx, "/apps/collection/category/"+url.PathEscape(categoryID))
	if err != nil {
		return fmt.Errorf("failed to fetch category collection: %w", err)
	}

	_, err = p.storeCollection(ctx, categoryID, gjson.ParseBytes(body))
	return err
}

func (p *Populator) storeCollection(ctx context.Context, id string, doc gjson.Result) ([]string, error) {
	hits := CollectionHits(doc)
	if !hits.Exists() {
		return nil, errors.New("expected hits or apps array in collection response")
	}

	now := p.now().Unix()
	var ids []string
	var apps []CachedApp
	for _, hit := range hits.Array() {
		if hit.Type == gjson.String {
			ids = append(ids, hit.Str)
			continue
		}
		app, err := ParseAppJSON(hit, now)
		if err != nil {
			continue
		}
		ids = append(ids, app.AppID)
		if app.Name != nil {
			app.Description = nil
			apps = append(apps, app)
		}
	}

	totalHits := len(ids)
	if v := doc.Get("totalHits"); v.Exists() {
		totalHits = int(v.Int())
	} else if v := doc.Get("total_hits"); v.Exists() {
		totalHits = int(v.Int())
	}

	// Hits carry summaries only; full rows come from the appstream fetch
	if err := p.store.InsertMissingApps(ctx, apps); err != nil {
		return nil, err
	}
	if err := p.store.WriteCategoryCollection(ctx, CachedCategoryCollection{
		CategoryID: id,
		AppIDs:     ids,
		TotalHits:  totalHits,
		CachedAt:   now,
	}); err != nil {
		return nil, err
	}

	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (p *Populator) fetchAllApps(ctx context.Context) error {
	p.emitter.Emit(progress.Event{
		Stage:   progress.StageFetchingApps,
		Message: "Starting to fetch apps...",
	})

	var ids []string
	if err := p.remote.GetJSON(ctx, "/appstream", &ids); err != nil {
		return fmt.Errorf("failed to fetch app IDs: %w", err)
	}
	p.logger.Info("fetched app ids", "count", len(ids))

	total := len(ids)
	fetched := 0
	for start := 0; start < total; start += appsPerChunk {
		end := start + appsPerChunk
		if end > total {
			end = total
		}

		batch := p.fetchAppstream(ctx, ids[start:end])
		if len(batch) == 0 {
			p.logger.Warn("batch is empty, no apps to insert", "offset", start)
			continue
		}
		if err := p.store.WriteApps(ctx, batch); err != nil {
			return err
		}
		fetched += len(batch)

		count := fetched
		p.emitter.Emit(progress.Event{
			Stage:    progress.StageFetchingApps,
			Progress: end,
			Total:    total,
			Message:  fmt.Sprintf("Fetched %d/%d apps", end, total),
			AppCount: &count,
		})

		p.downloadIcons(ctx, batch)
	}

	return nil
}

func (p *Populator) fetchRecentlyUpdatedApps(ctx context.Context) error {
	collection, err := p.store.GetCategoryCollection(ctx, CollectionRecentlyUpdated)
	if err != nil {
		return err
	}
	if collection == nil || len(collection.AppIDs) == 0 {
		return nil
	}

	existing, err := p.store.GetAppsBatch(ctx, collection.AppIDs, BatchOptions{IncludeDescription: true})
	if err != nil {
		return err
	}
	existingByID := indexApps(existing)

	var updated []CachedApp
	for _, app := range p.fetchAppstream(ctx, collection.AppIDs) {
		old, ok := existingByID[app.AppID]
		if !ok || HasAppChanged(old, app) {
			updated = append(updated, app)
		}
	}

	if len(updated) == 0 {
		p.logger.Info("no apps needed updating")
		return nil
	}

	if err := p.store.WriteApps(ctx, updated); err != nil {
		return err
	}
	p.logger.Info("updated apps", "updated", len(updated), "checked", len(collection.AppIDs))

	p.downloadIcons(ctx, updated)
	return nil
}

// fetchAppstream fetches full metadata for ids concurrently; failures are
// logged and left out
func (p *Populator) fetchAppstream(ctx context.Context, ids []string) []CachedApp {
	results := make([]*CachedApp, len(ids))
	now := p.now().Unix()

	g := new(errgroup.Group)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			body, err := p.remote.Get(ctx, "/appstream/"+url.PathEscape(id))
			if err != nil {
				p.logger.Debug("failed to fetch app", "app_id", id, "error", err)
				return nil
			}
			app, err := ParseAppJSON(gjson.ParseBytes(body), now)
			if err != nil {
				p.logger.Debug("failed to parse app JSON", "app_id", id, "error", err)
				return nil
			}
			results[i] = &app
			return nil
		})
	}
	_ = g.Wait()

	apps := make([]CachedApp, 0, len(ids))
	for _, app := range results {
		if app != nil {
			apps = append(apps, *app)
		}
	}
	return apps
}

// downloadIcons stores icon bytes for apps that have an icon URL and no
// stored icon yet
func (p *Populator) downloadIcons(ctx context.Context, apps []CachedApp) {
	g := new(errgroup.Group)
	g.SetLimit(iconConcurrency)
	for _, app := range apps {
		app := app
		if app.IconURL == nil || *app.IconURL == "" {
			continue
		}
		g.Go(func() error {
			if err := p.DownloadIcon(ctx, app.AppID, *app.IconURL); err != nil {
				p.logger.Debug("failed to cache icon", "app_id", app.AppID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// DownloadIcon fetches iconURL and stores it for appID unless bytes are
// already stored
func (p *Populator) DownloadIcon(ctx context.Context, appID, iconURL string) error {
	exists, err := p.store.HasIconData(ctx, appID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	data, err := p.remote.GetURL(ctx, iconURL)
	if err != nil {
		return fmt.Errorf("failed to download icon: %w", err)
	}
	return p.store.SetIconData(ctx, appID, data)
}

// CollectionHits returns the app list of a collection response, which
// upstream names either "hits" or "apps"
func CollectionHits(doc gjson.Result) gjson.Result {
	if hits := doc.Get("hits"); hits.IsArray() {
		return hits
	}
	if apps := doc.Get("apps"); apps.IsArray() {
		return apps
	}
	if doc.IsArray() {
		return doc
	}
	return gjson.Result{}
}

// AppIDOf returns the application id of an upstream app object, accepting
// every spelling the API has used
func AppIDOf(app gjson.Result) string {
	for _, key := range []string{"app_id", "flatpakAppId", "id"} {
		if v := app.Get(key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// ParseAppJSON converts an upstream app object into a cache row
func ParseAppJSON(app gjson.Result, cachedAt int64) (CachedApp, error) {
	appID := AppIDOf(app)
	if appID == "" {
		return CachedApp{}, errors.New("missing app_id, id, or flatpakAppId")
	}

	iconURL := app.Get("iconDesktopUrl").String()
	if iconURL == "" {
		iconURL = app.Get("icon").String()
	}

	return CachedApp{
		AppID:              appID,
		Name:               StringPtr(app.Get("name").String()),
		Summary:            StringPtr(app.Get("summary").String()),
		Description:        StringPtr(app.Get("description").String()),
		DownloadFlatpakRef: StringPtr(appID),
		IconURL:            StringPtr(iconURL),
		CachedAt:           cachedAt,
	}, nil
}

// HasAppChanged reports whether any user-visible field differs
func HasAppChanged(existing, updated CachedApp) bool {
	return StringValue(existing.Name) != StringValue(updated.Name) ||
		StringValue(existing.Summary) != StringValue(updated.Summary) ||
		StringValue(existing.Description) != StringValue(updated.Description) ||
		StringValue(existing.DownloadFlatpakRef) != StringValue(updated.DownloadFlatpakRef) ||
		StringValue(existing.IconURL) != StringValue(updated.IconURL)
}
