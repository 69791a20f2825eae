package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Entity names a cached namespace. Every list and stats key belongs to
// exactly one entity.
type Entity string

const (
	Products    Entity = "products"
	Categories  Entity = "categories"
	Brands      Entity = "brands"
	Users       Entity = "users"
	Roles       Entity = "roles"
	Permissions Entity = "permissions"
)

// Filters is the normalized filter set of a list query.
type Filters map[string]string

// canonical renders filters in stable key order, skipping empty values.
func (f Filters) canonical() string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "all"
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strings.ReplaceAll(f[k], ":", "%3A")
	}
	return strings.Join(parts, "&")
}

// Observer receives hit/miss notifications, e.g. for metrics.
type Observer interface {
	CacheLookup(entity string, hit bool)
}

// Options configure a Catalog cache.
type Options struct {
	Prefix   string
	ListTTL  time.Duration
	StatsTTL time.Duration
	Logger   *zap.Logger
	Observer Observer
}

// Catalog builds keys and performs read-through caching on a Store.
// A nil *Catalog or a nil store disables caching.
type Catalog struct {
	store Store
	opts  Options
}

// New creates a Catalog cache over store.
func New(store Store, opts Options) *Catalog {
	if opts.Prefix == "" {
		opts.Prefix = "catalog"
	}
	if opts.ListTTL <= 0 {
		opts.ListTTL = 5 * time.Minute
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Catalog{store: store, opts: opts}
}

func (c *Catalog) enabled() bool { return c != nil && c.store != nil }

// GenerationKey is the counter bumped when entity e is written.
func (c *Catalog) GenerationKey(e Entity) string {
	return fmt.Sprintf("%s:%s:gen", c.opts.Prefix, e)
}

func (c *Catalog) generation(ctx context.Context, e Entity) (int64, error) {
	b, err := c.store.Get(ctx, c.GenerationKey(e))
	if errors.Is(err, ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(b), 10, 64)
}

// ListKey returns the key of one page of a filtered list of e.
func (c *Catalog) ListKey(ctx context.Context, e Entity, filters Filters, page, perPage int) (string, error) {
	gen, err := c.generation(ctx, e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:g%d:list:%s:p%d:n%d", c.opts.Prefix, e, gen, filters.canonical(), page, perPage), nil
}

// StatsKey returns the key of the aggregate stats of e.
func (c *Catalog) StatsKey(ctx context.Context, e Entity) (string, error) {
	gen, err := c.generation(ctx, e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:g%d:stats", c.opts.Prefix, e, gen), nil
}

// Invalidate makes every list and stats key of the given entities
// unreachable. Stale entries expire through their TTL.
func (c *Catalog) Invalidate(ctx context.Context, entities ...Entity) error {
	if !c.enabled() {
		return nil
	}
	var errs []error
	for _, e := range entities {
		if _, err := c.store.Incr(ctx, c.GenerationKey(e)); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", e, err))
		}
	}
	return errors.Join(errs...)
}

// Kind selects the TTL used by Remember.
type Kind int

const (
	KindList Kind = iota
	KindStats
)

// Remember returns the cached value under the key built for (e, kind,
// filters, page, perPage), or calls load and stores its result. Cache
// failures are logged and fall back to load.
func Remember[T any](ctx context.Context, c *Catalog, e Entity, kind Kind, filters Filters, page, perPage int, load func() (T, error)) (T, error) {
	if !c.enabled() {
		return load()
	}
	log := c.opts.Logger.With(zap.String("entity", string(e)))

	var key string
	var err error
	if kind == KindStats {
		key, err = c.StatsKey(ctx, e)
	} else {
		key, err = c.ListKey(ctx, e, filters, page, perPage)
	}
	if err != nil {
		log.Warn("cache key lookup failed", zap.Error(err))
		return load()
	}

	if b, err := c.store.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			c.observe(e, true)
			return v, nil
		}
		log.Warn("cache entry undecodable", zap.String("key", key))
	} else if !errors.Is(err, ErrMiss) {
		log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	c.observe(e, false)

	v, err := load()
	if err != nil {
		return v, err
	}
	ttl := c.opts.ListTTL
	if kind == KindStats {
		ttl = c.opts.StatsTTL
	}
	if b, err := json.Marshal(v); err == nil {
		if err := c.store.Set(ctx, key, b, ttl); err != nil {
			log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func (c *Catalog) observe(e Entity, hit bool) {
	if c.opts.Observer != nil {
		c.opts.Observer.CacheLookup(string(e), hit)
	}
}
