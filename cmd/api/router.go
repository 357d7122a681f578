package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cabinet/cabinet/internal/config"
	"github.com/cabinet/cabinet/internal/handler"
	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/middleware"
)

// routes groups the HTTP handlers mounted by setupRouter.
type routes struct {
	info       *handler.Handler
	health     *handler.HealthHandler
	auth       *handler.AuthHandler
	accounts   *handler.AccountHandler
	cabinet    *handler.CabinetHandler
	subreddits *handler.SubredditHandler
	sync       *handler.SyncHandler
	settings   *handler.SettingsHandler
	engagement *handler.EngagementHandler
	apiKeys    *handler.APIKeyHandler
	metrics    http.Handler
}

// routerDeps are the collaborators of the auth and rate limit middleware.
type routerDeps struct {
	tokens  middleware.SessionVerifier
	keys    middleware.APIKeyStore
	cache   middleware.PrincipalCache
	limiter middleware.RateLimiter
	metrics metrics.Recorder
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(rt routes, deps routerDeps, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	rec := deps.metrics
	if rec == nil {
		rec = metrics.NewNoop()
	}

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(rec))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	r.Get("/", rt.info.Info)

	authCfg := middleware.AuthConfig{
		Logger:   logger,
		Sessions: deps.tokens,
		Keys:     deps.keys,
		Cache:    deps.cache,
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:        logger,
		Limiter:       deps.limiter,
		Enabled:       cfg.RateLimitEnabled && deps.limiter != nil,
		UserPerMinute: cfg.RateLimitPerMinute,
		UserBurst:     cfg.RateLimitBurst,
		IPRPS:         cfg.RateLimitAuthRPS,
		IPBurst:       cfg.RateLimitAuthBurst,
	}
	requireJSON := middleware.RequireJSON()

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimitIP(rateLimitCfg), requireJSON).Post("/register", rt.auth.Register)
			r.With(middleware.RateLimitIP(rateLimitCfg), requireJSON).Post("/login", rt.auth.Login)
			r.With(middleware.Authenticate(authCfg)).Get("/me", rt.auth.Me)
		})

		// Invitation previews are opened from the email link before login.
		r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/invitations/{token}", rt.cabinet.GetInvitation)

		// Extension routes accept API keys only.
		r.Route("/extension", func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(authCfg))
			r.Use(middleware.RequireExtension())
			r.Use(middleware.RateLimitUser(rateLimitCfg))
			r.Use(requireJSON)

			r.Post("/tasks/claim", rt.engagement.Claim)
			r.Post("/tasks/{id}/result", rt.engagement.Result)
		})

		// Dashboard routes. API keys need read for GET and admin otherwise.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(authCfg))
			r.Use(middleware.RateLimitUser(rateLimitCfg))
			r.Use(middleware.RequireAccess())

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", rt.accounts.List)
				r.With(requireJSON).Post("/", rt.accounts.Create)
				r.Get("/summary", rt.accounts.Summary)
				r.With(middleware.RequireContentType("multipart/form-data")).Post("/import", rt.accounts.Import)
				r.With(requireJSON).Post("/import/sheets", rt.accounts.ImportSheet)
				r.Get("/{id}", rt.accounts.Get)
				r.With(requireJSON).Patch("/{id}", rt.accounts.Update)
				r.Delete("/{id}", rt.accounts.Delete)
				r.Post("/{id}/refresh", rt.accounts.Refresh)
				r.With(requireJSON).Post("/{id}/verify", rt.accounts.Verify)
			})

			r.Route("/cabinet", func(r chi.Router) {
				r.Use(requireJSON)
				r.Get("/members", rt.cabinet.ListMembers)
				r.Patch("/members/{id}", rt.cabinet.UpdateMember)
				r.Delete("/members/{id}", rt.cabinet.RemoveMember)
				r.Get("/shared", rt.cabinet.ListShared)
				r.Delete("/shared/{ownerId}", rt.cabinet.Leave)
				r.Get("/invitations", rt.cabinet.ListInvitations)
				r.Post("/invitations", rt.cabinet.Invite)
				r.Delete("/invitations/{id}", rt.cabinet.RevokeInvitation)
			})
			r.Post("/invitations/{token}/accept", rt.cabinet.AcceptInvitation)
			r.Post("/invitations/{token}/decline", rt.cabinet.DeclineInvitation)

			r.Route("/subreddit-tabs", func(r chi.Router) {
				r.Use(requireJSON)
				r.Get("/", rt.subreddits.ListTabs)
				r.Post("/", rt.subreddits.CreateTab)
				r.Put("/order", rt.subreddits.ReorderTabs)
				r.Patch("/{id}", rt.subreddits.RenameTab)
				r.Delete("/{id}", rt.subreddits.DeleteTab)
			})

			r.Route("/subreddits", func(r chi.Router) {
				r.Use(requireJSON)
				r.Get("/", rt.subreddits.List)
				r.Post("/", rt.subreddits.Create)
				r.Patch("/{id}", rt.subreddits.Update)
				r.Post("/{id}/move", rt.subreddits.Move)
				r.Post("/{id}/refresh", rt.subreddits.Refresh)
				r.Delete("/{id}", rt.subreddits.Delete)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Use(requireJSON)
				r.Get("/", rt.sync.List)
				r.Get("/{key}", rt.sync.Get)
				r.Put("/{key}", rt.sync.Put)
				r.Delete("/{key}", rt.sync.Delete)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Use(requireJSON)
				r.Get("/", rt.settings.Get)
				r.Put("/", rt.settings.Update)
			})

			r.Route("/engagement", func(r chi.Router) {
				r.Use(requireJSON)
				r.Post("/tasks", rt.engagement.CreateTask)
				r.Get("/tasks", rt.engagement.ListTasks)
				r.Delete("/tasks/{id}", rt.engagement.CancelTask)
				r.Post("/generate", rt.engagement.Generate)
			})

			// Key management needs a password login, never another key.
			r.Route("/keys", func(r chi.Router) {
				r.Use(middleware.RequireSession())
				r.Use(requireJSON)
				r.Get("/", rt.apiKeys.List)
				r.Post("/", rt.apiKeys.Create)
				r.Delete("/{id}", rt.apiKeys.Revoke)
				r.Post("/{id}/rotate", rt.apiKeys.Rotate)
			})
		})
	})

	r.NotFound(rt.info.NotFound)
	r.MethodNotAllowed(rt.info.MethodNotAllowed)

	return r
}
