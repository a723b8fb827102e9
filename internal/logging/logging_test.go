package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(Config{Level: "debug", Output: &buf}), "searcher")

	logger.Debug().Int("count", 3).Msg("ranked")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "searcher", entry["component"])
	assert.Equal(t, "ranked", entry["message"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestNewLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		debugOK bool
	}{
		{level: "debug", debugOK: true},
		{level: "info", debugOK: false},
		{level: "", debugOK: false},
		{level: "nonsense", debugOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: tt.level, Output: &buf})
			logger.Debug().Msg("hidden?")
			assert.Equal(t, tt.debugOK, buf.Len() > 0)
		})
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "console", Output: &buf})
	logger.Info().Msg("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))
	assert.False(t, json.Valid(buf.Bytes()))
}
