package gate

import (
	"context"
	"sync"
	"time"
)

// CachedResolver wraps a RoleResolver with TTL-based caching so that
// authorization checks do not hit the database on every request.
type CachedResolver[U comparable] struct {
	inner RoleResolver[U]
	cache map[U]cacheEntry
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	grants    Grants
	expiresAt time.Time
}

// NewCachedResolver wraps a resolver with caching.
func NewCachedResolver[U comparable](inner RoleResolver[U], ttl time.Duration) *CachedResolver[U] {
	return &CachedResolver[U]{
		inner: inner,
		cache: make(map[U]cacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Resolve returns the grants for the given user, using the cache if fresh.
func (r *CachedResolver[U]) Resolve(ctx context.Context, user U) (Grants, error) {
	r.mu.RLock()
	entry, ok := r.cache[user]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.grants, nil
	}

	grants, err := r.inner.Resolve(ctx, user)
	if err != nil {
		return Grants{}, err
	}

	r.mu.Lock()
	r.cache[user] = cacheEntry{grants: grants, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return grants, nil
}

// Invalidate drops one user's cached grants.
// Call this when the user's role assignment changes.
func (r *CachedResolver[U]) Invalidate(user U) {
	r.mu.Lock()
	delete(r.cache, user)
	r.mu.Unlock()
}

// InvalidateAll clears the cache. Call this when role permissions change.
func (r *CachedResolver[U]) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[U]cacheEntry)
	r.mu.Unlock()
}
