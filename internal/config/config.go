// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Steam   SteamConfig   `mapstructure:"steam"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig governs the orchestration loop.
type CrawlConfig struct {
	BatchSize   int    `mapstructure:"batch_size"`
	MinReviews  int64  `mapstructure:"min_reviews"`
	TargetType  string `mapstructure:"target_type"`
	DelayMs     int    `mapstructure:"delay_ms"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	Concurrency int    `mapstructure:"concurrency"`
	Limit       int    `mapstructure:"limit"`
}

// HTTPConfig configures the source client HTTP behavior.
type HTTPConfig struct {
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
	BackoffBaseSeconds int `mapstructure:"backoff_base_seconds"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SteamConfig holds the remote source endpoints.
type SteamConfig struct {
	APIURL     string `mapstructure:"api_url"`
	StoreURL   string `mapstructure:"store_url"`
	AppListURL string `mapstructure:"applist_url"`
	Country    string `mapstructure:"country"`
	Language   string `mapstructure:"language"`
	UserAgent  string `mapstructure:"user_agent"`
}

// LedgerConfig sets where failure ledgers are written.
type LedgerConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STEAMCRAWLER")
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
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.min_reviews", 100)
	v.SetDefault("crawl.target_type", "game")
	v.SetDefault("crawl.delay_ms", 500)
	v.SetDefault("crawl.max_attempts", 7)
	v.SetDefault("crawl.concurrency", 1)
	v.SetDefault("crawl.limit", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.backoff_base_seconds", 2)
	// An explicit empty default keeps the env binding visible to Unmarshal.
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("steam.api_url", "https://store.steampowered.com/api/appdetails")
	v.SetDefault("steam.store_url", "https://store.steampowered.com/app/")
	v.SetDefault("steam.applist_url", "https://api.steampowered.com/ISteamApps/GetAppList/v2/")
	v.SetDefault("steam.country", "us")
	v.SetDefault("steam.language", "english")
	v.SetDefault("steam.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("ledger.dir", "logs")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.MinReviews < 0 {
		return fmt.Errorf("crawl.min_reviews must be >= 0")
	}
	if c.Crawl.TargetType == "" {
		return fmt.Errorf("crawl.target_type must be set")
	}
	if c.Crawl.MaxAttempts < 0 {
		return fmt.Errorf("crawl.max_attempts must be >= 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("http.backoff_base_seconds must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the status server is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase converts the configured backoff base into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseSeconds) * time.Second
}

// Delay converts the configured inter-request delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawl.DelayMs) * time.Millisecond
}
