package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cabinet/cabinet/internal/model"
)

const (
	// authCachePrefix is the Redis key prefix for auth context cache.
	authCachePrefix = "auth:ctx:"
	// authKeyIndexPrefix maps a key id to its cache key so revocation can
	// evict the entry without the plaintext key.
	authKeyIndexPrefix = "auth:key:"
	// authCacheTTL is the time-to-live for cached auth contexts.
	authCacheTTL = 5 * time.Minute
)

// CachedPrincipal is an API-key principal as stored in Redis.
type CachedPrincipal struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	UserID    string   `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Scopes    []string `json:"scopes"`
}

// GetPrincipal retrieves a cached API-key principal by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetPrincipal(ctx context.Context, cacheKey string) (*model.Principal, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached CachedPrincipal
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.Principal{
		UserID:     cached.UserID,
		Email:      cached.Email,
		AuthMethod: model.AuthMethodAPIKey,
		KeyID:      cached.KeyID,
		KeyPrefix:  cached.KeyPrefix,
		Scopes:     cached.Scopes,
	}, nil
}

// SetPrincipal caches an API-key principal.
func (c *Cache) SetPrincipal(ctx context.Context, cacheKey string, p *model.Principal) error {
	data, err := json.Marshal(CachedPrincipal{
		KeyID:     p.KeyID,
		KeyPrefix: p.KeyPrefix,
		UserID:    p.UserID,
		Email:     p.Email,
		Scopes:    p.Scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, authCachePrefix+cacheKey, data, authCacheTTL)
	pipe.Set(ctx, authKeyIndexPrefix+p.KeyID, cacheKey, authCacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// DeletePrincipal removes a cached principal.
func (c *Cache) DeletePrincipal(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, authCachePrefix+cacheKey).Err()
}

// InvalidateKeyPrincipal evicts whatever principal was cached for keyID.
// Used when a key is revoked.
func (c *Cache) InvalidateKeyPrincipal(ctx context.Context, keyID string) error {
	indexKey := authKeyIndexPrefix + keyID
	cacheKey, err := c.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get key index: %w", err)
	}
	return c.client.Del(ctx, authCachePrefix+cacheKey, indexKey).Err()
}
