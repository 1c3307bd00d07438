// Package catalog resolves apps, categories, collections, search results and
// icons from the local cache when it is available and from the public
// catalog API otherwise.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/blossom-os/softwarehub/internal/cache"
	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/remote"
)

// Options tunes a Catalog. The zero value is usable.
type Options struct {
	// Selector overrides the source choice; defaults to PrivilegedAvailable
	Selector Selector
	// DedupDelay is how long a collection stays marked after its refresh
	DedupDelay time.Duration
	// Emitter receives an error event when cache initialization fails
	Emitter progress.Emitter
}

// Catalog is the public surface of the data layer. It owns the icon cache
// and the refresh deduplicator for the lifetime of the process.
type Catalog struct {
	selector Selector
	local    *localSource
	remote   *remoteSource
	icons    *IconCache
	dedup    *Deduplicator
	emitter  progress.Emitter
	logger   *slog.Logger
}

// New creates a catalog. ch may be nil, in which case every operation goes
// to the remote API through client.
func New(ch cache.Channel, client *remote.Client, logger *slog.Logger, opts Options) *Catalog {
	c := &Catalog{
		selector: opts.Selector,
		remote:   &remoteSource{client: client, logger: logger},
		icons:    NewIconCache(),
		dedup:    NewDeduplicator(opts.DedupDelay, logger),
		emitter:  opts.Emitter,
		logger:   logger,
	}
	if c.selector == nil {
		c.selector = PrivilegedAvailable(ch)
	}
	if c.emitter == nil {
		c.emitter = progress.Discard
	}
	if ch != nil {
		c.local = newLocalSource(ch, c.icons, c.dedup, logger)
	}
	return c
}

func (c *Catalog) source() DataSource {
	if c.Privileged() {
		return c.local
	}
	return c.remote
}

// Privileged reports whether operations currently run against the local cache
func (c *Catalog) Privileged() bool {
	return c.local != nil && c.selector()
}

// CanonicalCategory upper-cases the first character of a category id
func CanonicalCategory(id string) string {
	r, size := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return id
	}
	return string(unicode.ToUpper(r)) + id[size:]
}

// GetApp returns one app; an unknown app comes back with only its id set
func (c *Catalog) GetApp(ctx context.Context, id string) App {
	return c.source().App(ctx, id)
}

// GetAppPick returns the app behind an editor's pick
func (c *Catalog) GetAppPick(ctx context.Context, id string) App {
	return c.GetApp(ctx, id)
}

// GetAppPicks returns the editor's picks. None are curated.
func (c *Catalog) GetAppPicks(ctx context.Context) []App {
	return []App{}
}

// GetApps returns the apps for ids. Against the local cache the result
// matches ids in length and order; against the API failed ids are left out.
func (c *Catalog) GetApps(ctx context.Context, ids []string, skipIconData bool) []App {
	return c.source().Apps(ctx, ids, skipIconData)
}

// GetCollections lists curated collections. None are curated.
func (c *Catalog) GetCollections(ctx context.Context) []Collection {
	return []Collection{}
}

// GetCollection returns a curated collection, which is always empty
func (c *Catalog) GetCollection(ctx context.Context, id string) Collection {
	return emptyCollection(id)
}

// GetCollectionCategories lists the categories with id and name only
func (c *Catalog) GetCollectionCategories(ctx context.Context) []Collection {
	return c.source().Categories(ctx)
}

// GetCollectionCategory returns one page of a category
func (c *Catalog) GetCollectionCategory(ctx context.Context, category string, limit, offset int) (Collection, error) {
	if category == "" {
		return Collection{}, ErrEmptyCategory
	}
	return c.source().CategoryCollection(ctx, CanonicalCategory(category), limit, offset), nil
}

// GetCollectionCategorySubcategories lists subcategories. None are tracked.
func (c *Catalog) GetCollectionCategorySubcategories(ctx context.Context, category string) []Collection {
	return []Collection{}
}

// GetCollectionPopular returns the popular apps
func (c *Catalog) GetCollectionPopular(ctx context.Context) Collection {
	return c.source().SpecialCollection(ctx, cache.CollectionPopular)
}

// GetCollectionTrending returns the trending apps
func (c *Catalog) GetCollectionTrending(ctx context.Context) Collection {
	return c.source().SpecialCollection(ctx, cache.CollectionTrending)
}

// GetCollectionRecentlyUpdated returns the recently updated apps
func (c *Catalog) GetCollectionRecentlyUpdated(ctx context.Context) Collection {
	return c.source().SpecialCollection(ctx, cache.CollectionRecentlyUpdated)
}

// GetCollectionRecentlyAdded returns the recently added apps. The cache
// does not track additions, so it is always empty.
func (c *Catalog) GetCollectionRecentlyAdded(ctx context.Context) Collection {
	return emptyCollection("")
}

// SearchApps returns one page of results for query
func (c *Catalog) SearchApps(ctx context.Context, query string, limit, offset int) SearchResponse {
	return c.source().Search(ctx, query, limit, offset)
}

// GetHomepage returns the three homepage rows
func (c *Catalog) GetHomepage(ctx context.Context) Homepage {
	return c.source().Homepage(ctx)
}

// GetAllApps returns every known app
func (c *Catalog) GetAllApps(ctx context.Context) []App {
	return c.source().AllApps(ctx)
}

// IsCacheReady reports whether the catalog has data to serve
func (c *Catalog) IsCacheReady(ctx context.Context) bool {
	return c.source().CacheReady(ctx)
}

// InitializeCache asks the cache service to populate itself in the
// background. Progress arrives on the progress channel; a failure to start
// is reported there too.
func (c *Catalog) InitializeCache(ctx context.Context, clear bool) {
	if clear {
		c.icons.Clear()
	}
	if err := c.source().InitializeCache(ctx, clear); err != nil {
		c.emitter.Emit(progress.ErrorEvent("Cache initialization failed", err))
	}
}

// CacheApps stores apps in the local cache
func (c *Catalog) CacheApps(ctx context.Context, apps []cache.CachedApp) {
	c.source().CacheApps(ctx, apps)
}

// IsInstallReferencePresent reports whether ref is installed on this host
func (c *Catalog) IsInstallReferencePresent(ctx context.Context, ref string) bool {
	return c.source().InstallReferencePresent(ctx, ref)
}

// Reset drops the icon cache and every in-flight refresh mark
func (c *Catalog) Reset() {
	c.icons.Clear()
	c.dedup.Reset()
}

// Wait blocks until background refreshes started so far have finished or
// ctx is done, whichever comes first
func (c *Catalog) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.dedup.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background refreshes still running: %w", ctx.Err())
	}
}
