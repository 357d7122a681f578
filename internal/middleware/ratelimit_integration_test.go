//go:build integration

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/cache"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/testutil"
)

func newRedisLimiter(t *testing.T) *cache.Cache {
	t.Helper()
	ctx := context.Background()
	c, err := cache.New(ctx, testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return c
}

// TestIntegrationRateLimitUser_Concurrency verifies the per-user bucket
// under concurrent load.
func TestIntegrationRateLimitUser_Concurrency(t *testing.T) {
	limiter := newRedisLimiter(t)

	mw := RateLimitUser(RateLimitConfig{
		Logger:        discardLogger(),
		Limiter:       limiter,
		Enabled:       true,
		UserPerMinute: 10,
		UserBurst:     5,
	})(okHandler())

	var allowed, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
				req = req.WithContext(auth.ContextWithPrincipal(req.Context(), &model.Principal{UserID: "user-concurrent", AuthMethod: model.AuthMethodJWT}))
				rec := httptest.NewRecorder()
				mw.ServeHTTP(rec, req)
				if rec.Code == http.StatusOK {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&rejected, 1)
				}
			}
		}()
	}
	wg.Wait()

	t.Logf("user rate limit: %d allowed, %d rejected", allowed, rejected)
	if allowed > 5+10 {
		t.Errorf("too many requests allowed: %d", allowed)
	}
	if rejected == 0 {
		t.Error("expected some requests to be rejected")
	}
}

// TestIntegrationRateLimitIP_Concurrency verifies IP-based rate limiting.
func TestIntegrationRateLimitIP_Concurrency(t *testing.T) {
	limiter := newRedisLimiter(t)

	mw := RateLimitIP(RateLimitConfig{
		Logger:  discardLogger(),
		Limiter: limiter,
		Enabled: true,
		IPRPS:   5,
		IPBurst: 3,
	})(okHandler())

	var allowed, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = "192.168.1.100:5555"
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	t.Logf("IP rate limit: %d allowed, %d rejected", allowed, rejected)
	if rejected == 0 {
		t.Error("expected some requests to be rejected")
	}
}
