package catalog

import (
	"context"
	"log/slog"

	"github.com/blossom-os/softwarehub/internal/cache"
)

// localChannel wraps a cache.Channel so that every failure is logged and
// turned into an empty or neutral value
type localChannel struct {
	ch     cache.Channel
	logger *slog.Logger
}

func (c localChannel) fail(op string, err error, args ...any) {
	c.logger.Error("cache channel call failed", append([]any{"op", op, "error", err}, args...)...)
}

func (c localChannel) AllApps(ctx context.Context) []cache.CachedApp {
	apps, err := c.ch.GetAllApps(ctx)
	if err != nil {
		c.fail("get_all_apps", err)
		return nil
	}
	return apps
}

func (c localChannel) AppsBatch(ctx context.Context, ids []string, opts cache.BatchOptions) []cache.CachedApp {
	apps, err := c.ch.GetAppsBatch(ctx, ids, opts)
	if err != nil {
		c.fail("get_apps_batch", err, "count", len(ids))
		return nil
	}
	return apps
}

func (c localChannel) App(ctx context.Context, id string) *cache.CachedApp {
	app, err := c.ch.GetApp(ctx, id)
	if err != nil {
		c.fail("get_app", err, "app_id", id)
		return nil
	}
	return app
}

func (c localChannel) Categories(ctx context.Context) []cache.CachedCategory {
	categories, err := c.ch.GetCategories(ctx)
	if err != nil {
		c.fail("get_categories", err)
		return nil
	}
	return categories
}

func (c localChannel) CategoryCollection(ctx context.Context, id string) *cache.CachedCategoryCollection {
	collection, err := c.ch.GetCategoryCollection(ctx, id)
	if err != nil {
		c.fail("get_category_collection", err, "category", id)
		return nil
	}
	return collection
}

func (c localChannel) CollectionApps(ctx context.Context, collectionType string) []cache.CachedApp {
	apps, err := c.ch.GetCollectionApps(ctx, collectionType)
	if err != nil {
		c.fail("get_collection_apps", err, "collection", collectionType)
		return nil
	}
	return apps
}

func (c localChannel) HomepageCollections(ctx context.Context) *cache.HomepageCollections {
	homepage, err := c.ch.GetHomepageCollections(ctx)
	if err != nil {
		c.fail("get_homepage_collections", err)
		return nil
	}
	return homepage
}

// IconBatch logs failures but still returns the error; the icon cache needs
// it to avoid memoizing a failed lookup
func (c localChannel) IconBatch(ctx context.Context, ids []string) ([]*string, error) {
	icons, err := c.ch.GetIconBatch(ctx, ids)
	if err != nil {
		c.fail("get_icon_batch", err, "count", len(ids))
	}
	return icons, err
}

func (c localChannel) IconDataURL(ctx context.Context, id string) string {
	icon, err := c.ch.GetIconDataURL(ctx, id)
	if err != nil {
		c.fail("get_icon_data_url", err, "app_id", id)
		return ""
	}
	return cache.StringValue(icon)
}

func (c localChannel) SearchApps(ctx context.Context, query string) []cache.SearchResult {
	results, err := c.ch.SearchApps(ctx, query)
	if err != nil {
		c.fail("search_apps", err, "query", query)
		return nil
	}
	return results
}

func (c localChannel) IsCacheReady(ctx context.Context) bool {
	ready, err := c.ch.IsCacheReady(ctx)
	if err != nil {
		c.fail("is_cache_ready", err)
		return false
	}
	return ready
}

func (c localChannel) InitiatePopulation(ctx context.Context, clear bool) error {
	err := c.ch.InitiatePopulation(ctx, clear)
	if err != nil {
		c.fail("initiate_cache_population", err, "clear_cache", clear)
	}
	return err
}

func (c localChannel) WriteApps(ctx context.Context, apps []cache.CachedApp) {
	if err := c.ch.WriteApps(ctx, apps); err != nil {
		c.fail("write_apps", err, "count", len(apps))
	}
}

func (c localChannel) IsInstallReferencePresent(ctx context.Context, ref string) bool {
	present, err := c.ch.IsInstallReferencePresent(ctx, ref)
	if err != nil {
		c.fail("is_install_reference_present", err, "ref", ref)
		return false
	}
	return present
}
