package catalog

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blossom-os/softwarehub/internal/cache"
)

// MockChannel implements cache.Channel for testing
type MockChannel struct {
	mock.Mock
}

var _ cache.Channel = (*MockChannel)(nil)

func (m *MockChannel) GetAllApps(ctx context.Context) ([]cache.CachedApp, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cache.CachedApp), args.Error(1)
}

func (m *MockChannel) GetAppsBatch(ctx context.Context, ids []string, opts cache.BatchOptions) ([]cache.CachedApp, error) {
	args := m.Called(ctx, ids, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cache.CachedApp), args.Error(1)
}

func (m *MockChannel) GetApp(ctx context.Context, id string) (*cache.CachedApp, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.CachedApp), args.Error(1)
}

func (m *MockChannel) GetCategories(ctx context.Context) ([]cache.CachedCategory, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cache.CachedCategory), args.Error(1)
}

func (m *MockChannel) GetCategoryCollection(ctx context.Context, id string) (*cache.CachedCategoryCollection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.CachedCategoryCollection), args.Error(1)
}

func (m *MockChannel) GetCategoryCollectionWithApps(ctx context.Context, id string, limit int) (*cache.CachedCategoryCollection, []cache.CachedApp, error) {
	args := m.Called(ctx, id, limit)
	var collection *cache.CachedCategoryCollection
	if args.Get(0) != nil {
		collection = args.Get(0).(*cache.CachedCategoryCollection)
	}
	var apps []cache.CachedApp
	if args.Get(1) != nil {
		apps = args.Get(1).([]cache.CachedApp)
	}
	return collection, apps, args.Error(2)
}

func (m *MockChannel) GetCollectionAppsPaginated(ctx context.Context, id string, limit, offset int) ([]cache.CachedApp, int, error) {
	args := m.Called(ctx, id, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]cache.CachedApp), args.Int(1), args.Error(2)
}

func (m *MockChannel) GetCollectionApps(ctx context.Context, collectionType string) ([]cache.CachedApp, error) {
	args := m.Called(ctx, collectionType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cache.CachedApp), args.Error(1)
}

func (m *MockChannel) GetHomepageCollections(ctx context.Context) (*cache.HomepageCollections, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.HomepageCollections), args.Error(1)
}

func (m *MockChannel) GetIconBatch(ctx context.Context, ids []string) ([]*string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*string), args.Error(1)
}

func (m *MockChannel) GetIconDataURL(ctx context.Context, id string) (*string, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

func (m *MockChannel) SearchApps(ctx context.Context, query string) ([]cache.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cache.SearchResult), args.Error(1)
}

func (m *MockChannel) IsCacheReady(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockChannel) InitiatePopulation(ctx context.Context, clear bool) error {
	args := m.Called(ctx, clear)
	return args.Error(0)
}

func (m *MockChannel) WriteApps(ctx context.Context, apps []cache.CachedApp) error {
	args := m.Called(ctx, apps)
	return args.Error(0)
}

func (m *MockChannel) IsInstallReferencePresent(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockChannel) RefreshCollection(ctx context.Context, collectionType string) ([]string, error) {
	args := m.Called(ctx, collectionType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChannel) RefreshCategoryCollection(ctx context.Context, categoryID string) error {
	args := m.Called(ctx, categoryID)
	return args.Error(0)
}
