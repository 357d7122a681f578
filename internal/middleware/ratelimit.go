package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/cache"
)

// RateLimiter is the token-bucket store behind the rate limit middlewares.
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter
	Enabled bool

	// Per authenticated user
	UserPerMinute int
	UserBurst     int

	// Per client IP, used on the unauthenticated endpoints
	IPRPS   int
	IPBurst int
}

// bucket names the subject of one check for the log line.
type bucket struct {
	kind    string
	subject string
}

// RateLimitUser limits requests per authenticated user and advertises the
// bucket state in X-RateLimit-* headers. It must run after authentication;
// anonymous requests pass through.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, func(r *http.Request) (bucket, *cache.RateLimitResult, bool, error) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil || cfg.UserPerMinute <= 0 {
			return bucket{}, nil, false, nil
		}
		res, err := cfg.Limiter.CheckUserRateLimit(r.Context(), p.UserID, cfg.UserPerMinute, cfg.UserBurst)
		return bucket{"user", p.UserID}, res, true, err
	}, cfg.UserPerMinute)
}

// RateLimitIP limits requests per client IP. Login, registration and the
// public invitation lookup use it.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, func(r *http.Request) (bucket, *cache.RateLimitResult, bool, error) {
		if cfg.IPRPS <= 0 {
			return bucket{}, nil, false, nil
		}
		ip := clientIP(r)
		res, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRPS, cfg.IPBurst)
		return bucket{"ip", ip}, res, true, err
	}, 0)
}

// rateLimit runs check for every request. A limiter error is logged and the
// request proceeds. headerLimit, when positive, turns on the X-RateLimit-*
// headers.
func rateLimit(cfg RateLimitConfig, check func(*http.Request) (bucket, *cache.RateLimitResult, bool, error), headerLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, res, applied, err := check(r)
			if !applied {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("bucket", b.kind),
					slog.String("subject", b.subject),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if headerLimit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(headerLimit))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := retryAfterSeconds(res.RetryAfter)
			cfg.Logger.Warn("rate limit exceeded",
				slog.String("bucket", b.kind),
				slog.String("subject", b.subject),
				slog.String("route", r.Method+" "+r.URL.Path),
				slog.Int("retry_after_seconds", retry),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"Rate limit exceeded. Retry after "+strconv.Itoa(retry)+" seconds.")
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// clientIP is the host part of RemoteAddr. Proxy headers are resolved
// earlier by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
