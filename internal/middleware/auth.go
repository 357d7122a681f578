package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
)

const (
	// minKeyAuthDuration is the minimum time to spend on API-key auth to
	// prevent timing attacks.
	minKeyAuthDuration = 200 * time.Millisecond

	// lastUsedTimeout bounds the background last_used_at update.
	lastUsedTimeout = 5 * time.Second
)

// SessionVerifier validates session tokens.
type SessionVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// APIKeyStore looks up extension API keys.
type APIKeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// PrincipalCache caches principals resolved from API keys.
type PrincipalCache interface {
	GetPrincipal(ctx context.Context, cacheKey string) (*model.Principal, error)
	SetPrincipal(ctx context.Context, cacheKey string, p *model.Principal) error
}

// AuthConfig holds configuration for the auth middlewares.
type AuthConfig struct {
	Logger   *slog.Logger
	Sessions SessionVerifier
	Keys     APIKeyStore
	// Cache is optional. When nil every API-key request hits the database.
	Cache PrincipalCache
	// MinKeyAuthDuration overrides minKeyAuthDuration when positive.
	MinKeyAuthDuration time.Duration
}

func (cfg AuthConfig) minKeyDuration() time.Duration {
	if cfg.MinKeyAuthDuration > 0 {
		return cfg.MinKeyAuthDuration
	}
	return minKeyAuthDuration
}

// Authenticate accepts either a session token or an extension API key and
// injects the resulting principal into the request context.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" {
				logAuthFailure(cfg.Logger, r, "missing_credential")
				writeAuthError(w)
				return
			}

			var principal *model.Principal
			if auth.LooksLikeAPIKey(credential) {
				principal = cfg.resolveAPIKey(r, credential)
			} else {
				principal = cfg.resolveSession(r, credential)
			}
			if principal == nil {
				writeAuthError(w)
				return
			}

			annotateLog(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// APIKeyAuth accepts only extension API keys.
func APIKeyAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" {
				logAuthFailure(cfg.Logger, r, "missing_key")
				writeAuthError(w)
				return
			}

			principal := cfg.resolveAPIKey(r, credential)
			if principal == nil {
				writeAuthError(w)
				return
			}

			annotateLog(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func (cfg AuthConfig) resolveSession(r *http.Request, token string) *model.Principal {
	claims, err := cfg.Sessions.Verify(token)
	if err != nil {
		logAuthFailure(cfg.Logger, r, "invalid_token")
		return nil
	}
	return &model.Principal{
		UserID:     claims.Subject,
		Email:      claims.Email,
		AuthMethod: model.AuthMethodJWT,
	}
}

func (cfg AuthConfig) resolveAPIKey(r *http.Request, key string) *model.Principal {
	startTime := time.Now()

	// Ensure consistent timing regardless of outcome
	defer func() {
		if elapsed := time.Since(startTime); elapsed < cfg.minKeyDuration() {
			time.Sleep(cfg.minKeyDuration() - elapsed)
		}
	}()

	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		logAuthFailure(cfg.Logger, r, "invalid_format")
		return nil
	}

	cacheKey := auth.QuickHash(key)
	if cfg.Cache != nil {
		if cached, _ := cfg.Cache.GetPrincipal(r.Context(), cacheKey); cached != nil {
			cfg.Logger.Debug("authentication successful",
				slog.String("key_id", cached.KeyID),
				slog.String("user_id", cached.UserID),
				slog.Bool("cache_hit", true),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			return cached
		}
	}

	keys, err := cfg.Keys.GetAPIKeysByPrefix(r.Context(), parsed.Prefix)
	if err != nil {
		cfg.Logger.Error("database error during auth",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		return nil
	}

	// Verify against each candidate key (handles prefix collisions)
	var matched *model.APIKey
	for _, k := range keys {
		if ok, err := auth.VerifyPassword(key, k.KeyHash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil {
		logAuthFailure(cfg.Logger, r, "invalid_key")
		return nil
	}

	principal := &model.Principal{
		UserID:     matched.UserID,
		AuthMethod: model.AuthMethodAPIKey,
		KeyID:      matched.ID,
		KeyPrefix:  matched.KeyPrefix,
		Scopes:     matched.Scopes,
	}

	if cfg.Cache != nil {
		if err := cfg.Cache.SetPrincipal(r.Context(), cacheKey, principal); err != nil {
			cfg.Logger.Warn("failed to cache principal", slog.String("error", err.Error()))
		}
	}

	go func(ctx context.Context, id string) {
		ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
		defer cancel()
		_ = cfg.Keys.UpdateAPIKeyLastUsed(ctx, id)
	}(context.WithoutCancel(r.Context()), matched.ID)

	cfg.Logger.Info("authentication successful",
		slog.String("key_id", principal.KeyID),
		slog.String("key_prefix", principal.KeyPrefix),
		slog.String("user_id", principal.UserID),
		slog.Bool("cache_hit", false),
		slog.String("request_id", GetRequestID(r.Context())),
	)
	return principal
}

// extractCredential extracts the bearer credential from the request.
// Supports both "Authorization: Bearer <token>" and "X-API-Key: <key>" headers.
func extractCredential(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", clientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
}
