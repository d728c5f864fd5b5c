package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
//
// Fan-out reads the token list for every recipient of every notification, so
// this is the hottest query in the system. Writes go straight to the source of
// truth and invalidate the cached entry.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

// NewCachedTokenStore creates the decorator.
func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) DeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	key := s.cacheKey(userID)

	// 1. Try Cache
	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	// 2. Fallback to Real Store
	fresh, err := s.realStore.DeviceTokens(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache (Fire and Forget)
	// We ignore errors here because caching is an optimization, not a transaction.
	// If the cache is down, we just serve from the database.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) AddDeviceToken(ctx context.Context, userID uint, token string) (bool, error) {
	// 1. Write to Source of Truth
	added, err := s.realStore.AddDeviceToken(ctx, userID, token)
	if err != nil {
		return false, err
	}
	// 2. Invalidate Cache
	return added, s.invalidate(ctx, userID)
}

// RemoveDeviceToken also backs the prune path. Even though the DB write
// succeeded, we MUST clear the cache so the dead token stops being targeted
// on the very next fan-out.
func (s *CachedTokenStore) RemoveDeviceToken(ctx context.Context, userID uint, token string) error {
	if err := s.realStore.RemoveDeviceToken(ctx, userID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, userID uint) error {
	return s.cache.Del(ctx, s.cacheKey(userID))
}

func (s *CachedTokenStore) cacheKey(userID uint) string {
	return fmt.Sprintf("relay:tokens:%d", userID)
}
