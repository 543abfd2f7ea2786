// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"reportwatch/internal/urlnorm"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	LLM      LLMConfig      `mapstructure:"llm"`
	DB       DBConfig       `mapstructure:"db"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Source   SourceConfig   `mapstructure:"source"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PipelineConfig governs orchestrator behavior.
type PipelineConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	BatchLimit  int    `mapstructure:"batch_limit"`
	DedupScope  string `mapstructure:"dedup_scope"`
	Marker      string `mapstructure:"marker"`
}

// FetchConfig configures the content fetcher.
type FetchConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	UserAgent        string `mapstructure:"user_agent"`
	MaxBodyBytes     int    `mapstructure:"max_body_bytes"`
	// PerHostRPS throttles fetches per publisher host. Zero disables.
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// LLMConfig configures the classification and extraction calls.
type LLMConfig struct {
	Model              string `mapstructure:"model"`
	APIKeyEnv          string `mapstructure:"api_key_env"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"`
	RequestsPerMinute  int    `mapstructure:"requests_per_minute"`
}

// DBConfig controls ledger and catalog persistence.
type DBConfig struct {
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MessageTable string `mapstructure:"message_table"`
	ReportTable  string `mapstructure:"report_table"`
	CatalogTable string `mapstructure:"catalog_table"`
}

// BlobConfig sets where raw report bodies are archived.
type BlobConfig struct {
	Provider    string `mapstructure:"provider"`
	BaseDir     string `mapstructure:"base_dir"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// SourceConfig selects where alert messages come from.
type SourceConfig struct {
	Provider           string `mapstructure:"provider"`
	Path               string `mapstructure:"path"`
	ProjectID          string `mapstructure:"project_id"`
	SubscriptionID     string `mapstructure:"subscription_id"`
	DrainWindowSeconds int    `mapstructure:"drain_window_seconds"`
}

// ServerConfig controls the HTTP review surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REPORTWATCH")
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
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.batch_limit", 200)
	v.SetDefault("pipeline.dedup_scope", "url")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.user_agent", "reportwatch/0.1")
	v.SetDefault("fetch.max_body_bytes", 262144)
	v.SetDefault("fetch.per_host_rps", 2.0)
	v.SetDefault("fetch.per_host_burst", 2)
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.call_timeout_seconds", 90)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.message_table", "seen_messages")
	v.SetDefault("db.report_table", "seen_reports")
	v.SetDefault("db.catalog_table", "catalog_entries")
	v.SetDefault("blob.provider", "noop")
	v.SetDefault("blob.prefix", "reports")
	v.SetDefault("blob.content_type", "text/plain; charset=utf-8")
	v.SetDefault("source.provider", "file")
	v.SetDefault("source.drain_window_seconds", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if !urlnorm.DedupScope(c.Pipeline.DedupScope).Valid() {
		return fmt.Errorf("pipeline.dedup_scope must be %q or %q", urlnorm.ScopeURL, urlnorm.ScopeHost)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	switch c.Blob.Provider {
	case "noop":
	case "local":
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir must be set when blob.provider is local")
		}
	case "gcs":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket must be set when blob.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown blob provider: %s", c.Blob.Provider)
	}
	switch c.Source.Provider {
	case "file", "pubsub":
		// Per-provider requirements are enforced when the source is built;
		// serve-only deployments never construct one.
	default:
		return fmt.Errorf("unknown source provider: %s", c.Source.Provider)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchBackoff converts the initial backoff into a duration.
func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}

// LLMCallTimeout converts the model call timeout into a duration.
func (c Config) LLMCallTimeout() time.Duration {
	return time.Duration(c.LLM.CallTimeoutSeconds) * time.Second
}

// SourceDrainWindow converts the pubsub drain window into a duration.
func (c Config) SourceDrainWindow() time.Duration {
	return time.Duration(c.Source.DrainWindowSeconds) * time.Second
}
