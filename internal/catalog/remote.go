package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/blossom-os/softwarehub/internal/cache"
	"github.com/blossom-os/softwarehub/internal/remote"
)

// remoteSource serves the catalog straight from the public API. Every
// failure degrades to an empty result; there is no icon channel.
type remoteSource struct {
	client *remote.Client
	logger *slog.Logger
}

func (s *remoteSource) fetch(ctx context.Context, path string) (gjson.Result, error) {
	body, err := s.client.Get(ctx, path)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON from %s", path)
	}
	return gjson.ParseBytes(body), nil
}

// get is fetch with failures logged and reported as ok=false
func (s *remoteSource) get(ctx context.Context, path string) (gjson.Result, bool) {
	doc, err := s.fetch(ctx, path)
	if err != nil {
		s.logger.Warn("remote fetch failed", "path", path, "error", err)
		return gjson.Result{}, false
	}
	return doc, true
}

func (s *remoteSource) App(ctx context.Context, id string) App {
	doc, ok := s.get(ctx, "/apps/"+url.PathEscape(id))
	if !ok || !doc.IsObject() {
		return App{AppID: id}
	}
	app := NormalizeApp(doc)
	if app.AppID == "" {
		app.AppID = id
	}
	return app
}

// Apps fetches each id on its own and leaves out the ones that fail
func (s *remoteSource) Apps(ctx context.Context, ids []string, _ bool) []App {
	results := make([]*App, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(enrichConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			doc, ok := s.get(ctx, "/apps/"+url.PathEscape(id))
			if !ok || !doc.IsObject() {
				return nil
			}
			app := NormalizeApp(doc)
			if app.AppID == "" {
				app.AppID = id
			}
			results[i] = &app
			return nil
		})
	}
	_ = g.Wait()

	apps := make([]App, 0, len(ids))
	for _, app := range results {
		if app != nil {
			apps = append(apps, *app)
		}
	}
	return apps
}

func (s *remoteSource) AllApps(ctx context.Context) []App {
	doc, ok := s.get(ctx, "/appstream")
	if !ok || !doc.IsArray() {
		return []App{}
	}
	return normalizeApps(doc)
}

func (s *remoteSource) Categories(ctx context.Context) []Collection {
	doc, ok := s.get(ctx, "/categories")
	if !ok || !doc.IsArray() {
		return []Collection{}
	}

	var categories []Collection
	for _, item := range doc.Array() {
		var id, name string
		if item.Type == gjson.String {
			id, name = item.Str, item.Str
		} else {
			id = stringField(item, "id")
			name = stringField(item, "name")
			if name == "" {
				name = id
			}
		}
		if id == "" {
			continue
		}
		c := emptyCollection(id)
		c.Name = name
		categories = append(categories, c)
	}
	if categories == nil {
		return []Collection{}
	}
	return categories
}

func (s *remoteSource) CategoryCollection(ctx context.Context, category string, limit, offset int) Collection {
	path := fmt.Sprintf("/apps/collection/category/%s?limit=%d&offset=%d", url.PathEscape(category), limit, offset)
	doc, ok := s.get(ctx, path)
	if !ok {
		return emptyCollection(category)
	}

	c := NormalizeCollection(doc)
	c.ID = category
	return c
}

func (s *remoteSource) SpecialCollection(ctx context.Context, collectionType string) Collection {
	c, err := s.specialCollection(ctx, collectionType)
	if err != nil {
		s.logger.Warn("remote fetch failed", "collection", collectionType, "error", err)
		return emptyCollection("")
	}
	return c
}

func (s *remoteSource) specialCollection(ctx context.Context, collectionType string) (Collection, error) {
	doc, err := s.fetch(ctx, "/apps/collection/"+collectionType)
	if err != nil {
		return Collection{}, err
	}
	return NormalizeCollection(doc), nil
}

// Search asks upstream for every match and pages the result locally
func (s *remoteSource) Search(ctx context.Context, query string, limit, offset int) SearchResponse {
	doc, ok := s.get(ctx, "/apps/search?q="+url.QueryEscape(query))
	if !ok {
		return SearchResponse{Hits: []App{}, Query: query}
	}

	resp := NormalizeSearch(doc, query)
	start, end := pageBounds(len(resp.Hits), limit, offset)
	resp.Hits = resp.Hits[start:end]
	return resp
}

// Homepage loads all three rows together; any failure empties the whole page
func (s *remoteSource) Homepage(ctx context.Context) Homepage {
	rows := make([][]App, len(cache.SpecialCollections))

	g, gctx := errgroup.WithContext(ctx)
	for i, collectionType := range cache.SpecialCollections {
		i, collectionType := i, collectionType
		g.Go(func() error {
			c, err := s.specialCollection(gctx, collectionType)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", collectionType, err)
			}
			rows[i] = c.Apps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to fetch homepage collections", "error", err)
		return emptyHomepage()
	}

	return Homepage{Popular: rows[0], Trending: rows[1], RecentlyUpdated: rows[2]}
}

// CacheReady is always true: the API itself is the data
func (s *remoteSource) CacheReady(ctx context.Context) bool {
	return true
}

func (s *remoteSource) InitializeCache(ctx context.Context, clear bool) error {
	return nil
}

func (s *remoteSource) CacheApps(ctx context.Context, apps []cache.CachedApp) {}

func (s *remoteSource) InstallReferencePresent(ctx context.Context, ref string) bool {
	return false
}
