// Package main is the entrypoint for the Cabinet API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/cache"
	"github.com/cabinet/cabinet/internal/config"
	"github.com/cabinet/cabinet/internal/handler"
	"github.com/cabinet/cabinet/internal/importer"
	"github.com/cabinet/cabinet/internal/mailer"
	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/ollama"
	"github.com/cabinet/cabinet/internal/reddit"
	"github.com/cabinet/cabinet/internal/repository"
	"github.com/cabinet/cabinet/internal/scheduler"
	"github.com/cabinet/cabinet/internal/server"
	"github.com/cabinet/cabinet/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// queueGaugeTimeout bounds the task count query run on each scrape.
const queueGaugeTimeout = 2 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if cfg.AutoMigrate {
		v, err := repository.Migrate(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to run migrations",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			)
			os.Exit(1)
		}
		logger.Info("database migrated", slog.Uint64("version", uint64(v)))
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL,
		repository.WithMaxConns(cfg.DBMaxConns),
		repository.WithMinConns(cfg.DBMinConns),
	)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.WithPoolSize(cfg.RedisPoolSize))
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	promRecorder := metrics.NewPrometheus()
	promRecorder.Registry().MustRegister(metrics.NewTaskQueueCollector(repo, queueGaugeTimeout))

	redditClient := reddit.NewClient(reddit.Config{
		BaseURL:   cfg.RedditBaseURL,
		OAuthURL:  cfg.RedditOAuthURL,
		UserAgent: cfg.RedditUserAgent,
		RPS:       cfg.RedditRPS,
		Timeout:   cfg.RedditTimeout,
		Logger:    logger,
		Metrics:   promRecorder,
	})
	scraper := reddit.NewCachedScraper(redditClient, cacheClient)

	var mail mailer.Mailer
	if cfg.MailEnabled() {
		mail = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	} else {
		mail = mailer.NewLog(logger)
		logger.Info("SMTP not configured, invitation emails are logged")
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	authService := service.NewAuthService(repo, tokens, nil)
	cabinetService := service.NewCabinetService(service.CabinetConfig{
		Store:         repo,
		Users:         repo,
		Mailer:        mail,
		PublicURL:     cfg.PublicURL,
		InvitationTTL: cfg.InvitationTTL,
		Metrics:       promRecorder,
		Logger:        logger,
	})
	accountService := service.NewAccountService(service.AccountConfig{
		Store:    repo,
		Cabinets: cabinetService,
		Scraper:  scraper,
		Importer: importer.New(repo, cfg.ImportMaxRows, promRecorder),
		Sheets:   importer.NewSheetsClient(cfg.SheetsBaseURL, cfg.SheetsTimeout),
		Metrics:  promRecorder,
		Logger:   logger,
	})
	subredditService := service.NewSubredditService(repo, scraper, logger)
	syncService := service.NewSyncService(cacheClient, repo, cfg.SyncMaxValueBytes, promRecorder, logger)
	settingsService := service.NewSettingsService(repo, cfg.OllamaModel)
	engagementService := service.NewEngagementService(service.EngagementConfig{
		Tasks:       repo,
		Accounts:    repo,
		Cabinets:    cabinetService,
		Posts:       scraper,
		Generator:   ollama.NewClient(cfg.OllamaURL, cfg.OllamaTimeout),
		Settings:    settingsService,
		MaxAttempts: cfg.TaskMaxAttempts,
		ClaimTTL:    cfg.TaskClaimTTL,
		Metrics:     promRecorder,
		Logger:      logger,
	})
	apiKeyService := service.NewAPIKeyService(repo, cacheClient, apiKeyEnv(cfg), logger)

	rt := routes{
		info:       handler.New(version),
		health:     handler.NewHealthHandler(repo, cacheClient),
		auth:       handler.NewAuthHandler(authService, logger),
		accounts:   handler.NewAccountHandler(accountService, logger),
		cabinet:    handler.NewCabinetHandler(cabinetService, logger),
		subreddits: handler.NewSubredditHandler(subredditService, logger),
		sync:       handler.NewSyncHandler(syncService, logger),
		settings:   handler.NewSettingsHandler(settingsService, logger),
		engagement: handler.NewEngagementHandler(engagementService, logger),
		apiKeys:    handler.NewAPIKeyHandler(apiKeyService, logger),
		metrics:    promRecorder.Handler(),
	}
	r := setupRouter(rt, routerDeps{
		tokens:  tokens,
		keys:    repo,
		cache:   cacheClient,
		limiter: cacheClient,
		metrics: promRecorder,
	}, cfg, logger)

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     2 * cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	if cfg.SchedulerEnabled {
		sched, err := scheduler.New(scheduler.Config{
			Accounts:      repo,
			Refresher:     accountService,
			Invitations:   cabinetService,
			Claims:        engagementService,
			StatsSchedule: cfg.StatsRefreshSchedule,
			StatsMaxAge:   cfg.StatsRefreshMaxAge,
			StatsBatch:    cfg.StatsRefreshBatch,
			Metrics:       promRecorder,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("failed to create scheduler", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sched.Start()
		srv.OnShutdown("scheduler", sched.Stop)
	}

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("env", cfg.AppEnv),
		slog.String("version", version),
		slog.Bool("smtp", cfg.MailEnabled()),
		slog.Bool("scheduler", cfg.SchedulerEnabled),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// apiKeyEnv picks the environment segment minted into new API keys.
func apiKeyEnv(cfg *config.Config) string {
	if cfg.IsProduction() {
		return auth.EnvLive
	}
	return auth.EnvTest
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With(slog.String("service", "cabinet"))
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
