package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/experience-mcp/pkg/types"
)

// Provider configuration
const (
	ProviderJina       = "jina"
	ProviderOpenAI     = "openai"
	ProviderCompatible = "compatible"
	ProviderLocal      = "local"
	ProviderDisabled   = "disabled"

	// Environment fallbacks for credentials
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel       = "jina-embeddings-v3"
	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultCompatibleModel = "nomic-embed-text"
	DefaultLocalModel      = "local-hash"

	// Default endpoints
	DefaultJinaBaseURL       = "https://api.jina.ai/v1"
	DefaultCompatibleBaseURL = "http://localhost:11434/v1"

	// Dimensions
	JinaDimension       = 1024
	OpenAIDimension     = 1536
	CompatibleDimension = 768
	LocalDimension      = 384

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	DefaultCacheSize       = 10000
	DefaultTimeout         = 30 * time.Second
	DefaultAvailabilityTTL = 5 * time.Second

	probeText = "connectivity check"
)

// batchFunc calls a backend for a batch of texts
type batchFunc func(ctx context.Context, texts []string) ([]types.Vector, error)

// remote holds the behavior shared by every network-backed provider:
// input validation, caching, retry, dimension checks and readiness probing.
type remote struct {
	provider   string
	model      string
	dimension  int
	configured bool
	probe      bool
	cache      *Cache
	avail      *AvailabilityCache
	retry      RetryConfig
	call       batchFunc
}

func (r *remote) isAvailable(ctx context.Context) bool {
	if !r.configured {
		return false
	}
	if !r.probe {
		return true
	}
	return r.avail.Check(ctx, func(ctx context.Context) bool {
		defer func() { _ = recover() }()
		vecs, err := r.call(ctx, []string{probeText})
		return err == nil && len(vecs) == 1
	})
}

func (r *remote) generate(ctx context.Context, text string) (types.Vector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if !r.configured {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, r.provider)
	}

	hash := ComputeHash(r.model + "\x00" + text)
	if r.cache != nil {
		if v, ok := r.cache.Get(hash); ok {
			return v, nil
		}
	}

	vecs, err := retryWithBackoff(ctx, r.retry, func() ([]types.Vector, error) {
		return r.call(ctx, []string{text})
	})
	if err != nil {
		r.avail.Invalidate()
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingRequestFailed, r.provider, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d embeddings", ErrEmbeddingRequestFailed, r.provider, len(vecs))
	}
	vec := vecs[0]
	if len(vec) != r.dimension {
		return nil, fmt.Errorf("%w: %s returned dimension %d, expected %d",
			ErrEmbeddingRequestFailed, r.provider, len(vec), r.dimension)
	}

	if r.cache != nil {
		r.cache.Set(hash, vec)
	}
	return vec, nil
}

// JinaProvider implements Embedder using the Jina AI REST API
type JinaProvider struct {
	remote
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewJinaProvider creates a Jina AI embedder. A missing API key yields an
// unavailable provider rather than an error.
func NewJinaProvider(cfg Config, cache *Cache) *JinaProvider {
	j := &JinaProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(orDefault(cfg.BaseURL, DefaultJinaBaseURL), "/"),
		httpClient: &http.Client{
			Timeout: cfg.timeout(),
		},
	}
	j.remote = remote{
		provider:   ProviderJina,
		model:      orDefault(cfg.Model, DefaultJinaModel),
		dimension:  orDefaultInt(cfg.Dimension, JinaDimension),
		configured: j.apiKey != "",
		probe:      cfg.Probe,
		cache:      cache,
		avail:      NewAvailabilityCache(cfg.availabilityTTL()),
		retry:      cfg.retryConfig(),
		call:       j.callAPI,
	}
	return j
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string) ([]types.Vector, error) {
	reqBody := map[string]interface{}{
		"input":      texts,
		"model":      j.model,
		"dimensions": j.dimension,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(err)
		}
		return nil, err
	}

	var apiResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	sort.Slice(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})
	vecs := make([]types.Vector, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vecs[i] = types.Vector(data.Embedding)
	}

	return vecs, nil
}

func (j *JinaProvider) IsAvailable(ctx context.Context) bool {
	return j.isAvailable(ctx)
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, text string) (types.Vector, error) {
	return j.generate(ctx, text)
}

func (j *JinaProvider) Dimension() int {
	return j.dimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider is a deterministic offline embedder based on feature hashing.
// Texts sharing words produce similar vectors, which is enough for development
// and tests without a network backend.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int) *LocalProvider {
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: orDefaultInt(dimension, LocalDimension),
	}
}

func (l *LocalProvider) IsAvailable(ctx context.Context) bool {
	return true
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, text string) (types.Vector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	vector := make(types.Vector, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := sha256.Sum256([]byte(w))
		idx := binary.LittleEndian.Uint32(h[:4]) % uint32(l.dimension)
		if h[4]&1 == 0 {
			vector[idx]++
		} else {
			vector[idx]--
		}
	}

	return NormalizeVector(vector), nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// DisabledProvider is never available. It forces callers onto their
// non-vector code paths.
type DisabledProvider struct{}

// NewDisabledProvider creates a provider that is always unavailable
func NewDisabledProvider() *DisabledProvider {
	return &DisabledProvider{}
}

func (DisabledProvider) IsAvailable(ctx context.Context) bool { return false }

func (DisabledProvider) GenerateEmbedding(ctx context.Context, text string) (types.Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, ProviderDisabled)
}

func (DisabledProvider) Dimension() int   { return 0 }
func (DisabledProvider) Provider() string { return ProviderDisabled }
func (DisabledProvider) Model() string    { return "" }
func (DisabledProvider) Close() error     { return nil }

// NormalizeVector normalizes a vector to unit length
func NormalizeVector(v types.Vector) types.Vector {
	var sum float64
	for _, val := range v {
		sum += val * val
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make(types.Vector, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
