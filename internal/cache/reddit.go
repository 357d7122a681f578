package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cabinet/cabinet/internal/model"
)

// Cache key prefixes and TTLs for scraped Reddit data.
const (
	profileKeyPrefix   = "reddit:profile:"
	subredditKeyPrefix = "reddit:sub:"
	negCacheKeySuffix  = ":neg"

	// ProfileTTL is the TTL for cached profile stats.
	ProfileTTL = 2 * time.Minute

	// SubredditTTL is the TTL for cached subreddit info.
	SubredditTTL = 1 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

func profileKey(username string) string {
	return profileKeyPrefix + strings.ToLower(username)
}

func subredditKey(name string) string {
	return subredditKeyPrefix + strings.ToLower(name)
}

// GetProfile returns cached stats for a Reddit user or ErrCacheMiss.
func (c *Cache) GetProfile(ctx context.Context, username string) (*model.ProfileStats, error) {
	var stats model.ProfileStats
	if err := c.getJSON(ctx, profileKey(username), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetProfile caches stats for a Reddit user.
func (c *Cache) SetProfile(ctx context.Context, stats *model.ProfileStats) error {
	return c.setJSON(ctx, profileKey(stats.Username), stats, ProfileTTL)
}

// GetSubreddit returns cached subreddit info or ErrCacheMiss.
func (c *Cache) GetSubreddit(ctx context.Context, name string) (*model.SubredditInfo, error) {
	var info model.SubredditInfo
	if err := c.getJSON(ctx, subredditKey(name), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetSubreddit caches subreddit info and clears its negative entry.
func (c *Cache) SetSubreddit(ctx context.Context, info *model.SubredditInfo) error {
	return c.setJSON(ctx, subredditKey(info.Name), info, SubredditTTL)
}

// IsSubredditMissing reports whether name was recently not found on Reddit.
func (c *Cache) IsSubredditMissing(ctx context.Context, name string) (bool, error) {
	exists, err := c.client.Exists(ctx, subredditKey(name)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return exists > 0, nil
}

// SetSubredditMissing marks name as not found.
func (c *Cache) SetSubredditMissing(ctx context.Context, name string) error {
	if err := c.client.SetEx(ctx, subredditKey(name)+negCacheKeySuffix, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, dst any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// Corrupted cache entry - treat as miss
		return ErrCacheMiss
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, ttl)
	// Remove negative cache if exists
	pipe.Del(ctx, key+negCacheKeySuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}
