package uow

import (
	"context"
	"sync"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
)

// Resource is a backend handle whose lifetime is pinned to the cache's
// owning scope. Release frees backend-side state (e.g. ends a session);
// it must not commit or roll back any transaction.
type Resource interface {
	Release(ctx context.Context)
}

// ResourceCache is the per-unit-of-work mapping from resource key to a
// lazily-created backend handle
type ResourceCache struct {
	mu      sync.Mutex
	entries map[ResourceKey]Resource
	order   []ResourceKey
}

// NewResourceCache creates an empty resource cache
func NewResourceCache() *ResourceCache {
	return &ResourceCache{entries: make(map[ResourceKey]Resource)}
}

// GetOrCreate returns the cached handle for key, invoking factory exactly
// once on a miss. The cache lock is held across the factory call: two
// providers racing on the same key within one scope must not both win the
// create branch, so creation is serialized per cache even though the
// factory may perform I/O.
func (c *ResourceCache) GetOrCreate(ctx context.Context, key ResourceKey, factory func(ctx context.Context) (Resource, error)) (Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res, ok := c.entries[key]; ok {
		return res, nil
	}
	res, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	c.entries[key] = res
	c.order = append(c.order, key)
	return res, nil
}

// Find is a non-creating lookup used by paths that must avoid redundant
// factory races
func (c *ResourceCache) Find(key ResourceKey) (Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	return res, ok
}

// Add inserts a handle created out of band. A key that is already present
// signals a duplicate-creation bug and is never user-recoverable.
func (c *ResourceCache) Add(key ResourceKey, res Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return &errs.DuplicateRegistrationError{Kind: "resource", Key: string(key)}
	}
	c.entries[key] = res
	c.order = append(c.order, key)
	return nil
}

// Len returns the number of cached handles
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ReleaseAll releases every cached handle in reverse creation order and
// empties the cache. Called unconditionally when the owning scope closes.
func (c *ResourceCache) ReleaseAll(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	order := c.order
	c.entries = make(map[ResourceKey]Resource)
	c.order = nil
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		entries[order[i]].Release(ctx)
	}
}
