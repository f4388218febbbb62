package kv

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedStore is a read-through, write-through cache in front of another Store.
//
// Entries written by other processes become visible once the cached copy
// expires.
type CachedStore struct {
	next  Store
	cache *cache.Cache
}

// NewCachedStore wraps next with a cache of the given TTL.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Get serves from cache, falling back to the wrapped store.
func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	v, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, append([]byte(nil), v...))
	return v, nil
}

// Set writes through and refreshes the cached copy. On failure the cached
// copy is dropped so the next read goes to the backend.
func (s *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.next.Set(ctx, key, value); err != nil {
		s.cache.Delete(key)
		return err
	}
	s.cache.SetDefault(key, append([]byte(nil), value...))
	return nil
}

// Keys always asks the wrapped store.
func (s *CachedStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.next.Keys(ctx, prefix)
}

// Close flushes the cache and closes the wrapped store.
func (s *CachedStore) Close() error {
	s.cache.Flush()
	if s.next == nil {
		return nil
	}
	return s.next.Close()
}
