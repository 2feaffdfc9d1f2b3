// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage provider names accepted by db.provider.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the discovery side of the pipeline.
type CrawlerConfig struct {
	MaxDepth        int    `mapstructure:"max_depth"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	UserAgent       string `mapstructure:"user_agent"`
}

// HTTPConfig configures outbound HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
}

// EmbeddingConfig governs the orchestrator's sweep and poll cadence.
type EmbeddingConfig struct {
	IntervalMinutes    int `mapstructure:"interval_minutes"`
	RecrawlHours       int `mapstructure:"recrawl_hours"`
	PollMs             int `mapstructure:"poll_ms"`
	PollTimeoutMinutes int `mapstructure:"poll_timeout_minutes"`
}

// IndexConfig locates the external indexing engine.
type IndexConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig selects and configures the record store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBKNOWLEDGE")
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
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.interval_seconds", 5)
	v.SetDefault("crawler.user_agent", "webknowledge-bot/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("embedding.interval_minutes", 10)
	v.SetDefault("embedding.recrawl_hours", 72)
	v.SetDefault("embedding.poll_ms", 500)
	v.SetDefault("embedding.poll_timeout_minutes", 10)
	v.SetDefault("db.provider", ProviderMemory)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.IntervalSeconds <= 0 {
		return fmt.Errorf("crawler.interval_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Embedding.IntervalMinutes <= 0 {
		return fmt.Errorf("embedding.interval_minutes must be > 0")
	}
	if c.Embedding.RecrawlHours <= 0 {
		return fmt.Errorf("embedding.recrawl_hours must be > 0")
	}
	if c.Embedding.PollMs <= 0 {
		return fmt.Errorf("embedding.poll_ms must be > 0")
	}
	if c.Embedding.PollTimeoutMinutes <= 0 {
		return fmt.Errorf("embedding.poll_timeout_minutes must be > 0")
	}
	if c.Index.BaseURL == "" {
		return fmt.Errorf("index.base_url must be set")
	}
	switch c.DB.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be %q or %q", ProviderMemory, ProviderPostgres)
	}
	return nil
}

// HTTPTimeout converts the outbound client timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CrawlInterval converts the scheduler tick cadence into a duration.
func (c Config) CrawlInterval() time.Duration {
	return time.Duration(c.Crawler.IntervalSeconds) * time.Second
}

// SweepInterval converts the orchestrator tick cadence into a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Embedding.IntervalMinutes) * time.Minute
}

// RecrawlAge converts the stale-embedding threshold into a duration.
func (c Config) RecrawlAge() time.Duration {
	return time.Duration(c.Embedding.RecrawlHours) * time.Hour
}

// PollInterval converts the readiness poll cadence into a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Embedding.PollMs) * time.Millisecond
}

// PollTimeout converts the per-document poll budget into a duration.
func (c Config) PollTimeout() time.Duration {
	return time.Duration(c.Embedding.PollTimeoutMinutes) * time.Minute
}
