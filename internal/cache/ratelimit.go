package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitUserPrefix = "ratelimit:user:"
	rateLimitIPPrefix   = "ratelimit:ip:"

	// minBucketTTL keeps idle buckets around long enough to refill.
	minBucketTTL = 10 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	// ResetAt is when the bucket is full again.
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token bucket atomically.
// Times are milliseconds so sub-second rates refill smoothly.
//
// Returns {allowed, retry_after_ms, remaining, full_in_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])   -- tokens per millisecond
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	local elapsed = math.max(0, now - ts)
	tokens = math.min(burst, tokens + elapsed * rate)

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('PEXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens), math.ceil((burst - tokens) / rate)}
`)

// CheckUserRateLimit consumes one token from the user's bucket. The bucket
// refills at ratePerMinute and holds burst tokens. Zero rate disables it.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}
	return c.checkRateLimit(ctx, rateLimitUserPrefix+userID, float64(ratePerMinute)/float64(time.Minute.Milliseconds()), burst)
}

// CheckIPRateLimit consumes one token from the bucket of a client IP. The
// IP is hashed before it is used as a key.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return unlimited(burst), nil
	}
	return c.checkRateLimit(ctx, rateLimitIPPrefix+hashIP(ip), float64(ratePerSecond)/float64(time.Second.Milliseconds()), burst)
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}
}

// checkRateLimit runs the bucket script. perMs is the refill rate in tokens
// per millisecond. Redis errors are returned so the caller decides whether to
// fail open.
func (c *Cache) checkRateLimit(ctx context.Context, key string, perMs float64, burst int) (*RateLimitResult, error) {
	if burst < 1 {
		burst = 1
	}
	now := time.Now()

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		perMs, burst, now.UnixMilli(), bucketTTL(perMs, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("rate limit script: unexpected reply of %d values", len(res))
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

// bucketTTL is the time an empty bucket needs to refill, with a floor.
func bucketTTL(perMs float64, burst int) time.Duration {
	full := time.Duration(math.Ceil(float64(burst)/perMs)) * time.Millisecond
	if full < minBucketTTL {
		return minBucketTTL
	}
	return full
}

// hashIP returns the first 8 bytes of the SHA-256 of ip, hex encoded.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
