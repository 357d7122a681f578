// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// defaultEnvFile is read when present and ENV_FILE is unset.
const defaultEnvFile = ".env"

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Cache and sync store (Redis)
	RedisURL      string `env:"REDIS_URL,required,notEmpty"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Session tokens
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	RateLimitBurst     int  `env:"RATE_LIMIT_BURST" envDefault:"30"`
	RateLimitAuthRPS   int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"2"`
	RateLimitAuthBurst int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"5"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://app.example.com,chrome-extension://abc")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 10MB, spreadsheets are uploaded)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"10485760"`

	// Reddit scraping
	RedditBaseURL   string        `env:"REDDIT_BASE_URL" envDefault:"https://www.reddit.com"`
	RedditOAuthURL  string        `env:"REDDIT_OAUTH_URL" envDefault:"https://oauth.reddit.com"`
	RedditUserAgent string        `env:"REDDIT_USER_AGENT" envDefault:"cabinet/1.0 (account dashboard)"`
	RedditRPS       float64       `env:"REDDIT_RPS" envDefault:"1"`
	RedditTimeout   time.Duration `env:"REDDIT_TIMEOUT" envDefault:"15s"`

	// Bulk import
	ImportMaxRows int           `env:"IMPORT_MAX_ROWS" envDefault:"1000"`
	SheetsBaseURL string        `env:"SHEETS_BASE_URL" envDefault:"https://docs.google.com"`
	SheetsTimeout time.Duration `env:"SHEETS_TIMEOUT" envDefault:"30s"`

	// Ollama
	OllamaURL     string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel   string        `env:"OLLAMA_MODEL" envDefault:"llama3"`
	OllamaTimeout time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"60s"`

	// Mail (empty host disables SMTP and logs invitations instead)
	SMTPHost     string `env:"SMTP_HOST" envDefault:""`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME" envDefault:""`
	SMTPPassword string `env:"SMTP_PASSWORD" envDefault:""`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"cabinet@localhost"`
	PublicURL    string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`

	// Cabinet invitations
	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"168h"`

	// Sync store
	SyncMaxValueBytes int `env:"SYNC_MAX_VALUE_BYTES" envDefault:"262144"`

	// Engagement tasks
	TaskMaxAttempts int           `env:"TASK_MAX_ATTEMPTS" envDefault:"5"`
	TaskClaimTTL    time.Duration `env:"TASK_CLAIM_TTL" envDefault:"10m"`

	// Scheduled jobs
	SchedulerEnabled     bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	StatsRefreshSchedule string        `env:"STATS_REFRESH_SCHEDULE" envDefault:"@every 6h"`
	StatsRefreshMaxAge   time.Duration `env:"STATS_REFRESH_MAX_AGE" envDefault:"6h"`
	StatsRefreshBatch    int           `env:"STATS_REFRESH_BATCH" envDefault:"100"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// MailEnabled reports whether invitation emails go out over SMTP.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// Load parses environment variables and returns a Config.
// Variables from the dotenv file named by ENV_FILE (or ./.env when present)
// fill in anything the environment does not already set.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := loadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
