package catalog

import (
	"context"

	"github.com/blossom-os/softwarehub/internal/cache"
)

// Selector reports whether the privileged local cache channel can be used.
// It is evaluated once at the start of every catalog operation.
type Selector func() bool

// PrivilegedAvailable reports whether a local cache channel was wired
func PrivilegedAvailable(ch cache.Channel) Selector {
	return func() bool { return ch != nil }
}

// DataSource implements every catalog operation against one backend. An
// operation runs entirely on the source chosen when it starts.
type DataSource interface {
	App(ctx context.Context, id string) App
	Apps(ctx context.Context, ids []string, skipIconData bool) []App
	AllApps(ctx context.Context) []App
	Categories(ctx context.Context) []Collection
	CategoryCollection(ctx context.Context, category string, limit, offset int) Collection
	SpecialCollection(ctx context.Context, collectionType string) Collection
	Search(ctx context.Context, query string, limit, offset int) SearchResponse
	Homepage(ctx context.Context) Homepage
	CacheReady(ctx context.Context) bool
	InitializeCache(ctx context.Context, clear bool) error
	CacheApps(ctx context.Context, apps []cache.CachedApp)
	InstallReferencePresent(ctx context.Context, ref string) bool
}

var (
	_ DataSource = (*localSource)(nil)
	_ DataSource = (*remoteSource)(nil)
)
