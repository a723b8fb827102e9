package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/experience-mcp/pkg/types"
)

var fastRetry = &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

// embeddingServer returns an OpenAI-style embeddings endpoint producing vectors of dim
func embeddingServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			vec := make([]float64, dim)
			vec[i%dim] = 1
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			}
		}
		resp := map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestJinaProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful embedding", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 8, &calls)

		p := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL, Dimension: 8, Retry: fastRetry}, NewCache(10))
		defer p.Close()

		assert.True(t, p.IsAvailable(ctx))
		vec, err := p.GenerateEmbedding(ctx, "  cors error  ")
		require.NoError(t, err)
		assert.Len(t, vec, 8)

		_, err = p.GenerateEmbedding(ctx, "cors error")
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load(), "second call should be served from cache")
	})

	t.Run("authorization header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		p := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL, Retry: fastRetry}, nil)
		_, err := p.GenerateEmbedding(ctx, "text")
		assert.ErrorIs(t, err, ErrEmbeddingRequestFailed)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad model", http.StatusBadRequest)
		}))
		defer server.Close()

		p := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Retry: fastRetry}, nil)
		_, err := p.GenerateEmbedding(ctx, "text")
		assert.ErrorIs(t, err, ErrEmbeddingRequestFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		p := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Retry: fastRetry}, nil)
		_, err := p.GenerateEmbedding(ctx, "text")
		assert.ErrorIs(t, err, ErrEmbeddingRequestFailed)
		assert.Equal(t, int32(MaxRetries), calls.Load())
	})

	t.Run("dimension mismatch is a request failure", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 4, &calls)

		p := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Dimension: 8, Retry: fastRetry}, nil)
		_, err := p.GenerateEmbedding(ctx, "text")
		assert.ErrorIs(t, err, ErrEmbeddingRequestFailed)
	})

	t.Run("missing key means unavailable", func(t *testing.T) {
		p := NewJinaProvider(Config{}, nil)
		assert.False(t, p.IsAvailable(ctx))
		_, err := p.GenerateEmbedding(ctx, "text")
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	})

	t.Run("empty input", func(t *testing.T) {
		p := NewJinaProvider(Config{APIKey: "k"}, nil)
		_, err := p.GenerateEmbedding(ctx, " \n\t ")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("probe result is cached", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, JinaDimension, &calls)

		p := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Probe: true, AvailabilityTTL: time.Hour}, nil)
		assert.True(t, p.IsAvailable(ctx))
		assert.True(t, p.IsAvailable(ctx))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled caller does not poison availability", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, JinaDimension, &calls)
		p := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Probe: true, AvailabilityTTL: time.Hour}, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.False(t, p.IsAvailable(cancelled))
		assert.True(t, p.IsAvailable(ctx))
		assert.True(t, p.IsAvailable(ctx))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("probe failure reports unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		p := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Probe: true, Retry: fastRetry}, nil)
		assert.False(t, p.IsAvailable(ctx))
	})

	t.Run("provider metadata", func(t *testing.T) {
		p := NewJinaProvider(Config{APIKey: "k"}, nil)
		assert.Equal(t, ProviderJina, p.Provider())
		assert.Equal(t, DefaultJinaModel, p.Model())
		assert.Equal(t, JinaDimension, p.Dimension())
	})
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful embedding", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 16, &calls)

		p := NewOpenAIProvider(Config{APIKey: "sk-test", BaseURL: server.URL, Dimension: 16, Retry: fastRetry}, nil)
		assert.True(t, p.IsAvailable(ctx))

		vec, err := p.GenerateEmbedding(ctx, "next.js cors")
		require.NoError(t, err)
		assert.Len(t, vec, 16)
		assert.Equal(t, 1.0, vec[0])
	})

	t.Run("missing key means unavailable", func(t *testing.T) {
		p := NewOpenAIProvider(Config{}, nil)
		assert.False(t, p.IsAvailable(ctx))
		_, err := p.GenerateEmbedding(ctx, "text")
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	})

	t.Run("provider metadata", func(t *testing.T) {
		p := NewOpenAIProvider(Config{APIKey: "k"}, nil)
		assert.Equal(t, ProviderOpenAI, p.Provider())
		assert.Equal(t, DefaultOpenAIModel, p.Model())
		assert.Equal(t, OpenAIDimension, p.Dimension())
		assert.NoError(t, p.Close())
	})
}

func TestCompatibleProvider(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	server := embeddingServer(t, 8, &calls)

	p, err := NewCompatibleProvider(Config{BaseURL: server.URL, Dimension: 8, Retry: fastRetry}, nil)
	require.NoError(t, err)

	assert.Equal(t, ProviderCompatible, p.Provider())
	assert.Equal(t, DefaultCompatibleModel, p.Model())
	assert.True(t, p.IsAvailable(ctx))

	vec, err := p.GenerateEmbedding(ctx, "connection refused")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.Equal(t, int32(2), calls.Load(), "one readiness check plus one embedding call")
}

func TestCompatibleProviderEndpointDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	p, err := NewCompatibleProvider(Config{BaseURL: url, Dimension: 8, Retry: fastRetry}, nil)
	require.NoError(t, err)
	assert.False(t, p.IsAvailable(context.Background()))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(0)

	assert.True(t, p.IsAvailable(ctx))
	assert.Equal(t, LocalDimension, p.Dimension())

	a, err := p.GenerateEmbedding(ctx, "CORS error on Next.js API route")
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(ctx, "CORS error on Next.js API route")
	require.NoError(t, err)
	assert.Equal(t, a, b, "local embeddings must be deterministic")
	assert.Len(t, a, LocalDimension)

	related, _ := p.GenerateEmbedding(ctx, "cors error in api")
	unrelated, _ := p.GenerateEmbedding(ctx, "postgres vacuum settings")
	assert.Greater(t, dot(a, related), dot(a, unrelated))

	_, err = p.GenerateEmbedding(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestDisabledProvider(t *testing.T) {
	ctx := context.Background()
	p := NewDisabledProvider()

	assert.False(t, p.IsAvailable(ctx))
	_, err := p.GenerateEmbedding(ctx, "text")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	_, err = p.GenerateEmbedding(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, ProviderDisabled, p.Provider())
}

func dot(a, b types.Vector) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
