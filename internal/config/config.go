package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Remote
		Sync
		Auth
		Audit
		Tasks
		Log
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path        string
		BusyTimeout time.Duration
		Seed        bool
	}
	Remote struct {
		BaseURL            string
		InteractiveTimeout time.Duration
		BulkTimeout        time.Duration
		RateLimit          float64 // requests per second, 0 disables throttling
		RateBurst          int
		MaxRetries         int
		RetryBaseDelay     time.Duration
		BreakerFailures    int           // consecutive failures that open the breaker
		BreakerCooldown    time.Duration // how long the breaker stays open
	}
	Sync struct {
		PageSize    int
		Enabled     bool   // periodic full sync
		Schedule    string // Cron format: "*/15 * * * *" = every 15 minutes
		OnStartup   bool
		PurgeAfter  time.Duration // hard-delete soft-deleted rows older than this
		PushPending bool
	}
	Auth struct {
		Email        string
		Password     string
		TokenSecret  string // base64 key or passphrase used to encrypt the persisted token
		BcryptCost   int
		OfflineLogin bool // accept the last verified credentials when the remote is unreachable
	}
	Audit struct {
		RetentionDays int
		Buffer        int // per-subscriber channel size
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Log struct {
		Level       string
		Development bool
	}
)

// Load reads an optional dotenv file into the process environment and then
// builds the configuration from it.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return NewConfig(), nil
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8189)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_busy_timeout", "5s")
	v.SetDefault("database_seed", true)

	v.SetDefault("remote_url", DefaultRemoteURL)
	v.SetDefault("remote_interactive_timeout", "30s")
	v.SetDefault("remote_bulk_timeout", "2m")
	v.SetDefault("remote_rate_limit", 10)
	v.SetDefault("remote_rate_burst", 5)
	v.SetDefault("remote_max_retries", 3)
	v.SetDefault("remote_retry_base_delay", "500ms")
	v.SetDefault("remote_breaker_failures", 5)
	v.SetDefault("remote_breaker_cooldown", "30s")

	v.SetDefault("sync_page_size", 1000)
	v.SetDefault("sync_enabled", false)
	v.SetDefault("sync_schedule", "*/15 * * * *")
	v.SetDefault("sync_on_startup", true)
	v.SetDefault("sync_purge_after", "720h") // 30 days
	v.SetDefault("sync_push_pending", true)

	v.SetDefault("auth_email", "")
	v.SetDefault("auth_password", "")
	v.SetDefault("auth_token_secret", "")
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("auth_offline_login", true)

	v.SetDefault("audit_retention_days", 30)
	v.SetDefault("audit_buffer", 64)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_timeout", "10m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path:        v.GetString("DATABASE_PATH"),
			BusyTimeout: v.GetDuration("DATABASE_BUSY_TIMEOUT"),
			Seed:        v.GetBool("DATABASE_SEED"),
		},
		Remote: Remote{
			BaseURL:            v.GetString("REMOTE_URL"),
			InteractiveTimeout: v.GetDuration("REMOTE_INTERACTIVE_TIMEOUT"),
			BulkTimeout:        v.GetDuration("REMOTE_BULK_TIMEOUT"),
			RateLimit:          v.GetFloat64("REMOTE_RATE_LIMIT"),
			RateBurst:          v.GetInt("REMOTE_RATE_BURST"),
			MaxRetries:         v.GetInt("REMOTE_MAX_RETRIES"),
			RetryBaseDelay:     v.GetDuration("REMOTE_RETRY_BASE_DELAY"),
			BreakerFailures:    v.GetInt("REMOTE_BREAKER_FAILURES"),
			BreakerCooldown:    v.GetDuration("REMOTE_BREAKER_COOLDOWN"),
		},
		Sync: Sync{
			PageSize:    v.GetInt("SYNC_PAGE_SIZE"),
			Enabled:     v.GetBool("SYNC_ENABLED"),
			Schedule:    v.GetString("SYNC_SCHEDULE"),
			OnStartup:   v.GetBool("SYNC_ON_STARTUP"),
			PurgeAfter:  v.GetDuration("SYNC_PURGE_AFTER"),
			PushPending: v.GetBool("SYNC_PUSH_PENDING"),
		},
		Auth: Auth{
			Email:        v.GetString("AUTH_EMAIL"),
			Password:     v.GetString("AUTH_PASSWORD"),
			TokenSecret:  v.GetString("AUTH_TOKEN_SECRET"),
			BcryptCost:   v.GetInt("AUTH_BCRYPT_COST"),
			OfflineLogin: v.GetBool("AUTH_OFFLINE_LOGIN"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
			Buffer:        v.GetInt("AUDIT_BUFFER"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Log: Log{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
	}
}
