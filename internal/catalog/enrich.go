package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/blossom-os/softwarehub/internal/cache"
)

const enrichConcurrency = 16

// Enricher builds App records from cached rows, resolving each icon from the
// first source that yields one
type Enricher struct {
	ch    localChannel
	icons *IconCache
}

// Enrich returns one App per id, in the order of ids. Ids with no cached row
// come back as an App carrying only the id. With skipIconData, stored icon
// bytes are resolved one app at a time without touching the shared icon cache.
func (e *Enricher) Enrich(ctx context.Context, ids []string, skipIconData bool) []App {
	apps := make([]App, len(ids))
	if len(ids) == 0 {
		return apps
	}

	rows := e.ch.AppsBatch(ctx, ids, cache.BatchOptions{IncludeDescription: true, IncludeIconData: true})
	byID := make(map[string]cache.CachedApp, len(rows))
	for _, row := range rows {
		byID[row.AppID] = row
	}

	g := new(errgroup.Group)
	g.SetLimit(enrichConcurrency)
	for i, id := range ids {
		i := i
		row, ok := byID[id]
		if !ok {
			apps[i] = App{AppID: id}
			continue
		}
		g.Go(func() error {
			apps[i] = appFromCached(row, e.resolveIcon(ctx, row, skipIconData))
			return nil
		})
	}
	_ = g.Wait()

	return apps
}

// resolveIcon picks the icon for one row. With skipIconData the stored
// bytes come from a direct data URL lookup and the fallback is the icon URL
// alone; icon_path is only consulted on the cached path.
func (e *Enricher) resolveIcon(ctx context.Context, row cache.CachedApp, skipIconData bool) string {
	if skipIconData {
		if len(row.IconData) > 0 {
			if icon := e.ch.IconDataURL(ctx, row.AppID); icon != "" {
				return icon
			}
		}
		return cache.StringValue(row.IconURL)
	}

	if len(row.IconData) > 0 {
		if icon := e.cachedIcon(ctx, row.AppID); icon != "" {
			return icon
		}
	}
	if icon := ConvertIconPath(cache.StringValue(row.IconPath)); icon != "" {
		return icon
	}
	return cache.StringValue(row.IconURL)
}

// cachedIcon consults the icon cache before resolving a batch of one
func (e *Enricher) cachedIcon(ctx context.Context, id string) string {
	if icon, ok := e.icons.Get(id); ok {
		return cache.StringValue(icon)
	}
	icons, _ := e.icons.ResolveBatch(ctx, e.ch.IconBatch, []string{id})
	return cache.StringValue(icons[0])
}

// appFromCached converts a cache row into an App with the given icon
func appFromCached(row cache.CachedApp, icon string) App {
	return App{
		AppID:              row.AppID,
		Name:               cache.StringValue(row.Name),
		Summary:            cache.StringValue(row.Summary),
		Description:        cache.StringValue(row.Description),
		DownloadFlatpakRef: cache.StringValue(row.DownloadFlatpakRef),
		Icon:               icon,
	}
}
