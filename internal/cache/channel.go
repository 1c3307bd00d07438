package cache

import "context"

// Channel is the command set of the local cache service.
// Implementations may fail on any call (connection loss, decoding, or the
// cache not being populated yet); callers decide how to degrade.
type Channel interface {
	// GetAllApps returns every cached app
	GetAllApps(ctx context.Context) ([]CachedApp, error)

	// GetAppsBatch returns the rows that exist for ids, in no particular order
	GetAppsBatch(ctx context.Context, ids []string, opts BatchOptions) ([]CachedApp, error)

	// GetApp returns a single app, or nil when it is not cached
	GetApp(ctx context.Context, id string) (*CachedApp, error)

	// GetCategories returns the known categories ordered by name
	GetCategories(ctx context.Context) ([]CachedCategory, error)

	// GetCategoryCollection returns a collection with its full ordered id list, or nil
	GetCategoryCollection(ctx context.Context, id string) (*CachedCategoryCollection, error)

	// GetCategoryCollectionWithApps returns the collection header (no ids) and
	// the first limit apps, or nil when the collection is not cached
	GetCategoryCollectionWithApps(ctx context.Context, id string, limit int) (*CachedCategoryCollection, []CachedApp, error)

	// GetCollectionAppsPaginated returns one page of a collection and the total size
	GetCollectionAppsPaginated(ctx context.Context, id string, limit, offset int) ([]CachedApp, int, error)

	// GetCollectionApps returns the head of a special collection
	GetCollectionApps(ctx context.Context, collectionType string) ([]CachedApp, error)

	// GetHomepageCollections returns the heads of all special collections
	GetHomepageCollections(ctx context.Context) (*HomepageCollections, error)

	// GetIconBatch returns one data URL (or nil) per id, aligned with ids
	GetIconBatch(ctx context.Context, ids []string) ([]*string, error)

	// GetIconDataURL returns the data URL for one app, or nil
	GetIconDataURL(ctx context.Context, id string) (*string, error)

	// SearchApps performs a text search over cached apps
	SearchApps(ctx context.Context, query string) ([]SearchResult, error)

	// IsCacheReady reports whether the cache holds any apps
	IsCacheReady(ctx context.Context) (bool, error)

	// InitiatePopulation starts populating the cache in the background,
	// optionally clearing existing state first
	InitiatePopulation(ctx context.Context, clear bool) error

	// WriteApps upserts apps
	WriteApps(ctx context.Context, apps []CachedApp) error

	// IsInstallReferencePresent reports whether ref is installed on this host
	IsInstallReferencePresent(ctx context.Context, ref string) (bool, error)

	// RefreshCollection refetches a special collection from upstream
	RefreshCollection(ctx context.Context, collectionType string) ([]string, error)

	// RefreshCategoryCollection refetches a category collection from upstream
	RefreshCategoryCollection(ctx context.Context, categoryID string) error
}
