package agent

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
)

type Cache[S any] interface {
	Set(ctx context.Context, key string, val S) error
	Get(ctx context.Context, key string) (S, bool, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MemoryCache is an unbounded map, for session state.
type MemoryCache[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

func NewMemoryCache[S any]() *MemoryCache[S] {
	return &MemoryCache[S]{m: map[string]S{}}
}

func (m *MemoryCache[S]) Set(ctx context.Context, key string, val S) error {
	m.mu.Lock()
	m.m[key] = val
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	m.mu.RLock()
	val, ok := m.m[key]
	m.mu.RUnlock()
	return val, ok, nil
}

func (m *MemoryCache[S]) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.m[key]
	m.mu.RUnlock()
	return ok, nil
}

// LRUCache keeps at most size entries and evicts the least recently used one.
type LRUCache[S any] struct {
	mu sync.Mutex
	c  *lru.Cache
}

// NewLRUCache returns a cache holding at most size entries. A size <= 0 disables eviction.
func NewLRUCache[S any](size int) *LRUCache[S] {
	if size < 0 {
		size = 0
	}
	return &LRUCache[S]{c: lru.New(size)}
}

func (l *LRUCache[S]) Set(ctx context.Context, key string, val S) error {
	l.mu.Lock()
	l.c.Add(key, val)
	l.mu.Unlock()
	return nil
}

func (l *LRUCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.c.Get(key)
	if !ok {
		var zero S
		return zero, false, nil
	}
	return v.(S), true, nil
}

func (l *LRUCache[S]) Del(ctx context.Context, key string) error {
	l.mu.Lock()
	l.c.Remove(key)
	l.mu.Unlock()
	return nil
}

func (l *LRUCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.c.Get(key)
	return ok, nil
}

// Len reports the number of cached entries.
func (l *LRUCache[S]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Len()
}
