package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/experience-mcp/pkg/types"
)

// OpenAIProvider implements Embedder using the official OpenAI client
type OpenAIProvider struct {
	remote
	client openai.Client
	// sendDimensions requests truncated vectors; only set when configured explicitly
	sendDimensions bool
}

// NewOpenAIProvider creates an OpenAI embedder. A missing API key yields an
// unavailable provider rather than an error.
func NewOpenAIProvider(cfg Config, cache *Cache) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.timeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	o := &OpenAIProvider{
		client:         openai.NewClient(opts...),
		sendDimensions: cfg.Dimension > 0,
	}
	o.remote = remote{
		provider:   ProviderOpenAI,
		model:      orDefault(cfg.Model, DefaultOpenAIModel),
		dimension:  orDefaultInt(cfg.Dimension, OpenAIDimension),
		configured: cfg.APIKey != "",
		probe:      cfg.Probe,
		cache:      cache,
		avail:      NewAvailabilityCache(cfg.availabilityTTL()),
		retry:      cfg.retryConfig(),
		call:       o.callAPI,
	}
	return o
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([]types.Vector, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          openai.EmbeddingModel(o.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.sendDimensions {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
			apiErr.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(err)
		}
		return nil, fmt.Errorf("api call: %w", err)
	}

	data := resp.Data
	sort.Slice(data, func(a, b int) bool { return data[a].Index < data[b].Index })
	vecs := make([]types.Vector, len(data))
	for i, d := range data {
		vecs[i] = types.Vector(d.Embedding)
	}
	return vecs, nil
}

func (o *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	return o.isAvailable(ctx)
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) (types.Vector, error) {
	return o.generate(ctx, text)
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
