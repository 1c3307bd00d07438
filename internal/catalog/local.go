package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/blossom-os/softwarehub/internal/cache"
)

// localSource serves the catalog from the local cache service. Empty
// collections kick off a deduplicated background refresh and return empty.
type localSource struct {
	raw      cache.Channel
	ch       localChannel
	enricher *Enricher
	icons    *IconCache
	dedup    *Deduplicator
	logger   *slog.Logger
}

func newLocalSource(ch cache.Channel, icons *IconCache, dedup *Deduplicator, logger *slog.Logger) *localSource {
	wrapped := localChannel{ch: ch, logger: logger}
	return &localSource{
		raw:      ch,
		ch:       wrapped,
		enricher: &Enricher{ch: wrapped, icons: icons},
		icons:    icons,
		dedup:    dedup,
		logger:   logger,
	}
}

func (s *localSource) App(ctx context.Context, id string) App {
	row := s.ch.App(ctx, id)
	if row == nil {
		return App{AppID: id}
	}
	return appFromCached(*row, s.enricher.resolveIcon(ctx, *row, false))
}

func (s *localSource) Apps(ctx context.Context, ids []string, skipIconData bool) []App {
	return s.enricher.Enrich(ctx, ids, skipIconData)
}

func (s *localSource) AllApps(ctx context.Context) []App {
	rows := s.ch.AllApps(ctx)
	apps := make([]App, len(rows))
	for i, row := range rows {
		icon := ConvertIconPath(cache.StringValue(row.IconPath))
		if icon == "" {
			icon = cache.StringValue(row.IconURL)
		}
		apps[i] = appFromCached(row, icon)
	}
	return apps
}

func (s *localSource) Categories(ctx context.Context) []Collection {
	categories := s.ch.Categories(ctx)
	out := make([]Collection, len(categories))
	for i, c := range categories {
		out[i] = emptyCollection(c.ID)
		out[i].Name = c.Name
	}
	return out
}

func (s *localSource) CategoryCollection(ctx context.Context, category string, limit, offset int) Collection {
	collection := s.ch.CategoryCollection(ctx, category)
	if collection == nil || len(collection.AppIDs) == 0 {
		s.dedup.TryBegin(category, func(ctx context.Context) error {
			return s.raw.RefreshCategoryCollection(ctx, category)
		})
		return emptyCollection(category)
	}

	start, end := pageBounds(len(collection.AppIDs), limit, offset)
	apps := s.enricher.Enrich(ctx, collection.AppIDs[start:end], false)
	return newCollection(category, apps, collection.TotalHits)
}

func (s *localSource) SpecialCollection(ctx context.Context, collectionType string) Collection {
	rows := s.ch.CollectionApps(ctx, collectionType)
	if len(rows) == 0 {
		s.refreshCollection(collectionType)
		return emptyCollection("")
	}

	var icons []string
	if collectionType == cache.CollectionPopular {
		icons = s.directIcons(ctx, rows)
	} else {
		icons = s.batchIcons(ctx, rows)
	}

	apps := make([]App, len(rows))
	for i, row := range rows {
		icon := icons[i]
		if icon == "" {
			icon = cache.StringValue(row.IconURL)
		}
		apps[i] = appFromCached(row, icon)
	}
	return newCollection("", apps, len(apps))
}

func (s *localSource) refreshCollection(collectionType string) {
	s.dedup.TryBegin(collectionType, func(ctx context.Context) error {
		_, err := s.raw.RefreshCollection(ctx, collectionType)
		return err
	})
}

// directIcons resolves icons per app without going through the icon cache
func (s *localSource) directIcons(ctx context.Context, rows []cache.CachedApp) []string {
	icons := make([]string, len(rows))
	g := new(errgroup.Group)
	g.SetLimit(enrichConcurrency)
	for i, row := range rows {
		i, row := i, row
		if len(row.IconData) == 0 {
			continue
		}
		g.Go(func() error {
			icons[i] = s.ch.IconDataURL(ctx, row.AppID)
			return nil
		})
	}
	_ = g.Wait()
	return icons
}

// batchIcons resolves icons for rows through the icon cache
func (s *localSource) batchIcons(ctx context.Context, rows []cache.CachedApp) []string {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.AppID
	}

	resolved, _ := s.icons.ResolveBatch(ctx, s.ch.IconBatch, ids)
	icons := make([]string, len(rows))
	for i, icon := range resolved {
		icons[i] = cache.StringValue(icon)
	}
	return icons
}

func (s *localSource) Search(ctx context.Context, query string, limit, offset int) SearchResponse {
	results := s.ch.SearchApps(ctx, query)
	start, end := pageBounds(len(results), limit, offset)

	hits := make([]App, 0, end-start)
	for _, r := range results[start:end] {
		icon := cache.StringValue(r.IconPath)
		if icon == "" {
			icon = cache.StringValue(r.IconURL)
		}
		hits = append(hits, App{
			AppID:   r.AppID,
			Name:    cache.StringValue(r.Name),
			Summary: cache.StringValue(r.Summary),
			Icon:    ConvertIconPath(icon),
		})
	}

	return SearchResponse{Hits: hits, Query: query, TotalHits: len(results)}
}

func (s *localSource) Homepage(ctx context.Context) Homepage {
	collections := s.ch.HomepageCollections(ctx)
	if collections == nil {
		return emptyHomepage()
	}

	rowsByType := map[string][]cache.CachedApp{
		cache.CollectionPopular:         collections.Popular,
		cache.CollectionTrending:        collections.Trending,
		cache.CollectionRecentlyUpdated: collections.RecentlyUpdated,
	}
	for _, collectionType := range cache.SpecialCollections {
		if len(rowsByType[collectionType]) == 0 {
			s.refreshCollection(collectionType)
		}
	}

	return Homepage{
		Popular:         s.homepageRow(ctx, collections.Popular),
		Trending:        s.homepageRow(ctx, collections.Trending),
		RecentlyUpdated: s.homepageRow(ctx, collections.RecentlyUpdated),
	}
}

func (s *localSource) homepageRow(ctx context.Context, rows []cache.CachedApp) []App {
	apps := make([]App, len(rows))
	if len(rows) == 0 {
		return apps
	}

	icons := s.batchIcons(ctx, rows)
	for i, row := range rows {
		icon := icons[i]
		if icon == "" {
			icon = ConvertIconPath(cache.StringValue(row.IconPath))
		}
		if icon == "" {
			icon = cache.StringValue(row.IconURL)
		}
		apps[i] = appFromCached(row, icon)
	}
	return apps
}

func (s *localSource) CacheReady(ctx context.Context) bool {
	return s.ch.IsCacheReady(ctx)
}

func (s *localSource) InitializeCache(ctx context.Context, clear bool) error {
	return s.ch.InitiatePopulation(ctx, clear)
}

func (s *localSource) CacheApps(ctx context.Context, apps []cache.CachedApp) {
	s.ch.WriteApps(ctx, apps)
}

func (s *localSource) InstallReferencePresent(ctx context.Context, ref string) bool {
	return s.ch.IsInstallReferencePresent(ctx, ref)
}
