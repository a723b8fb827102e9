// Package config loads experience-mcp configuration from an optional file
// and EXPERIENCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/dshills/experience-mcp/internal/embedder"
	"github.com/dshills/experience-mcp/internal/lifecycle"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment variable overrides
const EnvPrefix = "EXPERIENCE"

// Config is the root configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Search    SearchConfig    `mapstructure:"search"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// DatabaseConfig configures the record store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider        string        `mapstructure:"provider"` // openai, jina, compatible, local, disabled; empty auto-detects
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	Dimension       int           `mapstructure:"dimension"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheSize       int           `mapstructure:"cache_size"`
	AvailabilityTTL time.Duration `mapstructure:"availability_ttl"`
	Probe           bool          `mapstructure:"probe"`
}

// SearchConfig configures the hybrid query handler
type SearchConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	DefaultLimit        int     `mapstructure:"default_limit"`
	MaxLimit            int     `mapstructure:"max_limit"`
	CountQueryHits      bool    `mapstructure:"count_query_hits"`
}

// LifecycleConfig configures embedding backfill
type LifecycleConfig struct {
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	BatchWorkers  int           `mapstructure:"batch_workers"`
	SweepSchedule string        `mapstructure:"sweep_schedule"` // cron spec or @every; empty disables
	SweepPageSize int           `mapstructure:"sweep_page_size"`
	ClearOnEdit   bool          `mapstructure:"clear_on_edit"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: defaultDatabasePath(),
		},
		Embedding: EmbeddingConfig{
			Timeout:         embedder.DefaultTimeout,
			CacheSize:       embedder.DefaultCacheSize,
			AvailabilityTTL: embedder.DefaultAvailabilityTTL,
		},
		Search: SearchConfig{
			SimilarityThreshold: 0.3,
			DefaultLimit:        10,
			MaxLimit:            100,
		},
		Lifecycle: LifecycleConfig{
			BatchDelay:    200 * time.Millisecond,
			BatchWorkers:  1,
			SweepPageSize: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "experiences.db"
	}
	return filepath.Join(home, ".experience-mcp", "experiences.db")
}

// Load reads configuration. An empty path skips the file and uses defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Embedding.APIKey == "" {
		switch strings.ToLower(cfg.Embedding.Provider) {
		case embedder.ProviderOpenAI:
			cfg.Embedding.APIKey = os.Getenv(embedder.EnvOpenAIAPIKey)
		case embedder.ProviderJina:
			cfg.Embedding.APIKey = os.Getenv(embedder.EnvJinaAPIKey)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.availability_ttl", d.Embedding.AvailabilityTTL)
	v.SetDefault("embedding.probe", d.Embedding.Probe)

	v.SetDefault("search.similarity_threshold", d.Search.SimilarityThreshold)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.max_limit", d.Search.MaxLimit)
	v.SetDefault("search.count_query_hits", d.Search.CountQueryHits)

	v.SetDefault("lifecycle.batch_delay", d.Lifecycle.BatchDelay)
	v.SetDefault("lifecycle.batch_workers", d.Lifecycle.BatchWorkers)
	v.SetDefault("lifecycle.sweep_schedule", d.Lifecycle.SweepSchedule)
	v.SetDefault("lifecycle.sweep_page_size", d.Lifecycle.SweepPageSize)
	v.SetDefault("lifecycle.clear_on_edit", d.Lifecycle.ClearOnEdit)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "", embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderCompatible,
		embedder.ProviderLocal, embedder.ProviderDisabled:
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("%w: embedding.dimension must not be negative", ErrInvalidConfig)
	}

	if c.Search.SimilarityThreshold < -1 || c.Search.SimilarityThreshold >= 1 {
		return fmt.Errorf("%w: search.similarity_threshold must be in [-1, 1)", ErrInvalidConfig)
	}
	if c.Search.MaxLimit <= 0 {
		return fmt.Errorf("%w: search.max_limit must be positive", ErrInvalidConfig)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("%w: search.default_limit must be in [1, max_limit]", ErrInvalidConfig)
	}

	if c.Lifecycle.BatchDelay < 0 {
		return fmt.Errorf("%w: lifecycle.batch_delay must not be negative", ErrInvalidConfig)
	}
	if c.Lifecycle.BatchWorkers < 1 {
		return fmt.Errorf("%w: lifecycle.batch_workers must be at least 1", ErrInvalidConfig)
	}
	if c.Lifecycle.SweepPageSize < 1 {
		return fmt.Errorf("%w: lifecycle.sweep_page_size must be at least 1", ErrInvalidConfig)
	}
	if c.Lifecycle.SweepSchedule != "" {
		if _, err := lifecycle.ScheduleParser.Parse(c.Lifecycle.SweepSchedule); err != nil {
			return fmt.Errorf("%w: lifecycle.sweep_schedule: %v", ErrInvalidConfig, err)
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console", ErrInvalidConfig)
	}

	return nil
}

// EmbedderConfig converts the embedding section for the embedder factory
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:        c.Embedding.Provider,
		APIKey:          c.Embedding.APIKey,
		Model:           c.Embedding.Model,
		BaseURL:         c.Embedding.BaseURL,
		Dimension:       c.Embedding.Dimension,
		Timeout:         c.Embedding.Timeout,
		CacheSize:       c.Embedding.CacheSize,
		AvailabilityTTL: c.Embedding.AvailabilityTTL,
		Probe:           c.Embedding.Probe,
	}
}
