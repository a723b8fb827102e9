package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  error
	}{
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k"}, provider: ProviderOpenAI},
		{name: "jina upper case", cfg: Config{Provider: "JINA", APIKey: "k"}, provider: ProviderJina},
		{name: "compatible", cfg: Config{Provider: "compatible"}, provider: ProviderCompatible},
		{name: "local", cfg: Config{Provider: "local", Dimension: 32}, provider: ProviderLocal},
		{name: "disabled", cfg: Config{Provider: "disabled"}, provider: ProviderDisabled},
		{name: "unknown", cfg: Config{Provider: "anthropic"}, wantErr: ErrUnsupportedProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer emb.Close()
			assert.Equal(t, tt.provider, emb.Provider())
		})
	}
}

func TestNewLocalDimension(t *testing.T) {
	emb, err := New(Config{Provider: ProviderLocal, Dimension: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, emb.Dimension())
}

func TestNewFallsBackToEnvironmentKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	emb, err := New(Config{Provider: ProviderOpenAI})
	require.NoError(t, err)
	p, ok := emb.(*OpenAIProvider)
	require.True(t, ok)
	assert.True(t, p.configured)
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name   string
		jina   string
		openai string
		want   string
	}{
		{name: "no keys", want: ProviderDisabled},
		{name: "jina key", jina: "j", want: ProviderJina},
		{name: "openai key", openai: "o", want: ProviderOpenAI},
		{name: "both prefer jina", jina: "j", openai: "o", want: ProviderJina},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvJinaAPIKey, tt.jina)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)
			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}
