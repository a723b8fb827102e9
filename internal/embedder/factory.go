package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Dimension       int
	Timeout         time.Duration
	CacheSize       int // 0 disables the vector cache
	AvailabilityTTL time.Duration
	Probe           bool
	Retry           *RetryConfig // nil uses DefaultRetryConfig
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) availabilityTTL() time.Duration {
	if c.AvailabilityTTL <= 0 {
		return DefaultAvailabilityTTL
	}
	return c.AvailabilityTTL
}

func (c Config) retryConfig() RetryConfig {
	if c.Retry != nil {
		return *c.Retry
	}
	return DefaultRetryConfig()
}

// New creates an embedder with explicit configuration. The provider is
// resolved once here; an empty provider is detected from the environment.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderJina:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv(EnvJinaAPIKey)
		}
		return NewJinaProvider(cfg, cache), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(cfg, cache), nil
	case ProviderCompatible:
		return NewCompatibleProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension), nil
	case ProviderDisabled:
		return NewDisabledProvider(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider implied by the credentials in the
// environment. Without credentials embeddings are disabled and retrieval
// runs lexical-only.
func DetectProvider() string {
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderDisabled
}
