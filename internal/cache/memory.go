package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultMemoryCapacity bounds the number of cached pages held in process.
const DefaultMemoryCapacity = 10000

// Memory is an in-process Store for single-instance deployments and tests.
// Entries live in a ttlcache with a background janitor and a capacity
// bound. Counters bumped through Incr are kept apart so eviction never
// resets a generation.
type Memory struct {
	items *ttlcache.Cache[string, []byte]

	mu       sync.Mutex
	counters map[string]int64
	stop     sync.Once
}

// NewMemory creates an empty in-memory store holding at most capacity
// entries (DefaultMemoryCapacity when capacity is 0) and starts its
// expiry janitor. Call Close to stop it.
func NewMemory(capacity uint64) *Memory {
	if capacity == 0 {
		capacity = DefaultMemoryCapacity
	}
	items := ttlcache.New[string, []byte](
		ttlcache.WithCapacity[string, []byte](capacity),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &Memory{items: items, counters: make(map[string]int64)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	n, ok := m.counters[key]
	m.mu.Unlock()
	if ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}

	item := m.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrMiss
	}
	return item.Value(), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.items.Set(key, value, ttl)
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.counters, k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.items.Delete(k)
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

// Len returns the number of stored keys, counters included.
func (m *Memory) Len() int {
	m.mu.Lock()
	n := len(m.counters)
	m.mu.Unlock()
	return n + m.items.Len()
}

// Sweep drops expired entries immediately instead of waiting for the
// janitor.
func (m *Memory) Sweep() { m.items.DeleteExpired() }

// Close stops the expiry janitor.
func (m *Memory) Close() error {
	m.stop.Do(m.items.Stop)
	return nil
}
