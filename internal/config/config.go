// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// The orchestrator reads a fresh snapshot at the start of each run and
// never mutates it mid-run.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	API       APIConfig       `mapstructure:"api"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Proxies   []string        `mapstructure:"proxies"`
	Sheet     SheetConfig     `mapstructure:"sheet"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// APIConfig holds the upstream rating provider credentials and endpoint.
type APIConfig struct {
	Key     string `mapstructure:"key"`
	BaseURL string `mapstructure:"base_url"`
	Host    string `mapstructure:"host"`
	Site    string `mapstructure:"site"`
}

// CrawlConfig tunes the fetch pipeline: inter-request jitter, the
// anti-bot retry protocol, and the hourly request budget.
type CrawlConfig struct {
	MinDelayMs         int `mapstructure:"min_delay_ms"`
	MaxDelayMs         int `mapstructure:"max_delay_ms"`
	MaxRetries         int `mapstructure:"max_retries"`
	RetryMinDelayMs    int `mapstructure:"retry_min_delay_ms"`
	RetryMaxDelayMs    int `mapstructure:"retry_max_delay_ms"`
	MaxRequestsPerHour int `mapstructure:"max_requests_per_hour"`
	BatchSize          int `mapstructure:"batch_size"`
	WarmupMinDelayMs   int `mapstructure:"warmup_min_delay_ms"`
	WarmupMaxDelayMs   int `mapstructure:"warmup_max_delay_ms"`
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
}

// SheetConfig identifies the downstream spreadsheet sync target.
type SheetConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
}

// DBConfig controls access to the relational database. Provider may be
// "postgres" or "memory" (local development, nothing survives restart).
type DBConfig struct {
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int32  `mapstructure:"max_open_conns"`
	MinOpenConns int32  `mapstructure:"min_open_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An
// empty project disables the Pub/Sub collaborators (log-only alerts, no
// sheet-sync trigger events).
type PubSubConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	SyncTopic  string `mapstructure:"sync_topic"`
	AlertTopic string `mapstructure:"alert_topic"`
}

// SchedulerConfig governs the periodic crawl trigger.
type SchedulerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	IntervalHours  int  `mapstructure:"interval_hours"`
	RandomizeStart bool `mapstructure:"randomize_start"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPEECRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.base_url", "https://shopee-e-commerce-data.p.rapidapi.com/shopee/item/ratings")
	v.SetDefault("api.host", "shopee-e-commerce-data.p.rapidapi.com")
	v.SetDefault("api.site", "vn")
	v.SetDefault("crawl.min_delay_ms", 1000)
	v.SetDefault("crawl.max_delay_ms", 3000)
	v.SetDefault("crawl.max_retries", 3)
	v.SetDefault("crawl.retry_min_delay_ms", 5000)
	v.SetDefault("crawl.retry_max_delay_ms", 15000)
	v.SetDefault("crawl.max_requests_per_hour", 100)
	v.SetDefault("crawl.batch_size", 10)
	v.SetDefault("crawl.warmup_min_delay_ms", 500)
	v.SetDefault("crawl.warmup_max_delay_ms", 2000)
	v.SetDefault("crawl.timeout_seconds", 30)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("db.min_open_conns", 1)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_hours", 24)
	v.SetDefault("scheduler.randomize_start", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Crawl.MinDelayMs < 0 || c.Crawl.MaxDelayMs < c.Crawl.MinDelayMs {
		return fmt.Errorf("crawl delay bounds are inverted")
	}
	if c.Crawl.RetryMaxDelayMs < c.Crawl.RetryMinDelayMs {
		return fmt.Errorf("crawl retry delay bounds are inverted")
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("crawl.max_retries must be >= 0")
	}
	if c.Crawl.MaxRequestsPerHour <= 0 {
		return fmt.Errorf("crawl.max_requests_per_hour must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.provider is postgres")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for _, p := range c.Proxies {
		if _, err := url.Parse(p); err != nil {
			return fmt.Errorf("invalid proxy url %q: %w", p, err)
		}
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalHours <= 0 {
		return fmt.Errorf("scheduler.interval_hours must be > 0 when scheduler is enabled")
	}
	return nil
}

// MinDelay returns the lower inter-request jitter bound.
func (c CrawlConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper inter-request jitter bound.
func (c CrawlConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// RetryMinDelay returns the lower retry backoff bound, pre-multiplier.
func (c CrawlConfig) RetryMinDelay() time.Duration {
	return time.Duration(c.RetryMinDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the upper retry backoff bound, pre-multiplier.
func (c CrawlConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// WarmupMinDelay returns the lower warm-up sleep bound.
func (c CrawlConfig) WarmupMinDelay() time.Duration {
	return time.Duration(c.WarmupMinDelayMs) * time.Millisecond
}

// WarmupMaxDelay returns the upper warm-up sleep bound.
func (c CrawlConfig) WarmupMaxDelay() time.Duration {
	return time.Duration(c.WarmupMaxDelayMs) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
