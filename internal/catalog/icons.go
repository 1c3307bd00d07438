package catalog

import (
	"context"
	"fmt"
	"sync"
)

// IconBatchFunc resolves icons for ids, returning one entry per id in order
type IconBatchFunc func(ctx context.Context, ids []string) ([]*string, error)

// IconCache memoizes resolved icon data URLs for the process lifetime.
// A stored nil means the app was looked up and has no icon; it is never
// looked up again until Clear.
type IconCache struct {
	mu      sync.RWMutex
	entries map[string]*string
}

// NewIconCache creates an empty icon cache
func NewIconCache() *IconCache {
	return &IconCache{entries: make(map[string]*string)}
}

// Get returns the resolved icon for id; ok is false when id was never resolved
func (c *IconCache) Get(id string) (icon *string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	icon, ok = c.entries[id]
	return icon, ok
}

// Set records the resolution result for id
func (c *IconCache) Set(id string, icon *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = icon
}

// Clear forgets every resolution
func (c *IconCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*string)
}

// Len returns the number of resolved ids
func (c *IconCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ResolveBatch returns one icon per id in input order. Ids resolved before are
// served from the cache; the rest go to fetch in a single call and are
// remembered, including those that resolved to nothing. When fetch fails
// every id comes back nil and nothing is cached.
func (c *IconCache) ResolveBatch(ctx context.Context, fetch IconBatchFunc, ids []string) ([]*string, error) {
	result := make([]*string, len(ids))
	var missing []string
	var positions []int

	c.mu.RLock()
	for i, id := range ids {
		if icon, ok := c.entries[id]; ok {
			result[i] = icon
			continue
		}
		missing = append(missing, id)
		positions = append(positions, i)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := fetch(ctx, missing)
	if err == nil && len(fetched) != len(missing) {
		err = fmt.Errorf("icon batch returned %d entries for %d ids", len(fetched), len(missing))
	}
	if err != nil {
		return make([]*string, len(ids)), err
	}

	c.mu.Lock()
	for j, icon := range fetched {
		result[positions[j]] = icon
		c.entries[missing[j]] = icon
	}
	c.mu.Unlock()

	return result, nil
}
