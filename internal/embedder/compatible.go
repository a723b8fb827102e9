package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/dshills/experience-mcp/pkg/types"
)

// CompatibleProvider implements Embedder against any OpenAI-compatible
// endpoint (Ollama, LM Studio, vLLM) through langchaingo. Availability is
// always probed.
type CompatibleProvider struct {
	remote
	embedder embeddings.Embedder
	baseURL  string
	timeout  time.Duration
}

// NewCompatibleProvider creates an embedder for a self-hosted endpoint.
// Local services usually need no credentials, so a placeholder token is used
// when no API key is configured.
func NewCompatibleProvider(cfg Config, cache *Cache) (*CompatibleProvider, error) {
	baseURL := orDefault(cfg.BaseURL, DefaultCompatibleBaseURL)
	model := orDefault(cfg.Model, DefaultCompatibleModel)

	client, err := lcopenai.New(
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithToken(orDefault(cfg.APIKey, "none")),
		lcopenai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create compatible client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create compatible embedder: %w", err)
	}

	c := &CompatibleProvider{
		embedder: emb,
		baseURL:  baseURL,
		timeout:  cfg.timeout(),
	}
	c.remote = remote{
		provider:   ProviderCompatible,
		model:      model,
		dimension:  orDefaultInt(cfg.Dimension, CompatibleDimension),
		configured: true,
		probe:      true,
		cache:      cache,
		avail:      NewAvailabilityCache(cfg.availabilityTTL()),
		retry:      cfg.retryConfig(),
		call:       c.callAPI,
	}
	return c, nil
}

func (c *CompatibleProvider) callAPI(ctx context.Context, texts []string) ([]types.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	vecs := make([]types.Vector, len(out))
	for i, v := range out {
		vec := make(types.Vector, len(v))
		for k, f := range v {
			vec[k] = float64(f)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (c *CompatibleProvider) IsAvailable(ctx context.Context) bool {
	return c.isAvailable(ctx)
}

func (c *CompatibleProvider) GenerateEmbedding(ctx context.Context, text string) (types.Vector, error) {
	return c.generate(ctx, text)
}

func (c *CompatibleProvider) Dimension() int {
	return c.dimension
}

func (c *CompatibleProvider) Provider() string {
	return ProviderCompatible
}

func (c *CompatibleProvider) Model() string {
	return c.model
}

func (c *CompatibleProvider) Close() error {
	return nil
}
