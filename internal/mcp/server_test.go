package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/experience-mcp/internal/embedder"
	"github.com/dshills/experience-mcp/internal/lifecycle"
	"github.com/dshills/experience-mcp/internal/searcher"
	"github.com/dshills/experience-mcp/internal/storage"
	"github.com/dshills/experience-mcp/pkg/types"
)

func setupTestServer(t *testing.T, emb embedder.Embedder) (*Server, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s, err := NewServer(Deps{
		Storage:   store,
		Searcher:  searcher.NewSearcher(store, emb, searcher.Options{SimilarityThreshold: 0.3}),
		Lifecycle: lifecycle.NewManager(store, emb, lifecycle.Options{}),
		Embedder:  emb,
	})
	require.NoError(t, err)
	return s, store
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func recordPublished(t *testing.T, s *Server, args map[string]interface{}) string {
	t.Helper()
	args["publish"] = true
	res, err := s.handleRecordExperience(context.Background(), callRequest(args))
	require.NoError(t, err)
	out := decodeResult(t, res)
	return out["id"].(string)
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestRecordAndQueryExperiences(t *testing.T) {
	ctx := context.Background()
	emb := embedder.NewLocalProvider(64)
	s, _ := setupTestServer(t, emb)

	corsID := recordPublished(t, s, map[string]interface{}{
		"title":    "CORS error on Next.js API route",
		"problem":  "Browser blocks the preflight request",
		"solution": "Return Access-Control-Allow-Origin from the route handler",
		"keywords": []interface{}{"NextJS", "cors", "api"},
	})
	recordPublished(t, s, map[string]interface{}{
		"title":    "Docker layer cache ignored",
		"problem":  "Every build reinstalls dependencies",
		"solution": "Copy the lockfile before the sources",
		"keywords": []interface{}{"docker"},
	})

	// Embed the CORS record only
	res, err := s.handleEnsureEmbedding(ctx, callRequest(map[string]interface{}{"id": corsID}))
	require.NoError(t, err)
	assert.Equal(t, "embedded", decodeResult(t, res)["outcome"])

	res, err = s.handleQueryExperiences(ctx, callRequest(map[string]interface{}{
		"keywords": []interface{}{"nextjs", "cors"},
		"limit":    float64(10),
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)

	assert.Equal(t, "hybrid", out["mode"])
	assert.Equal(t, false, out["degraded"])
	assert.Equal(t, float64(1), out["total_count"])
	assert.Equal(t, false, out["has_more"])
	experiences := out["experiences"].([]interface{})
	require.Len(t, experiences, 1)
	first := experiences[0].(map[string]interface{})
	assert.Equal(t, corsID, first["id"])
	assert.GreaterOrEqual(t, first["relevance"].(float64), 2.0/3.0)
	assert.NotContains(t, first, "embedding")
}

func TestQueryExperiencesBrowse(t *testing.T) {
	s, _ := setupTestServer(t, embedder.NewDisabledProvider())
	for _, title := range []string{"one", "two", "three"} {
		recordPublished(t, s, map[string]interface{}{"title": title, "problem": "p", "solution": "s"})
	}

	res, err := s.handleQueryExperiences(context.Background(), callRequest(map[string]interface{}{
		"sort":  "created_at",
		"limit": float64(2),
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "browse", out["mode"])
	assert.Equal(t, float64(3), out["total_count"])
	assert.Equal(t, true, out["has_more"])
	assert.Len(t, out["experiences"], 2)
}

func TestQueryExperiencesValidation(t *testing.T) {
	s, _ := setupTestServer(t, embedder.NewDisabledProvider())
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{name: "limit too large", args: map[string]interface{}{"limit": float64(101)}},
		{name: "limit zero", args: map[string]interface{}{"limit": float64(0)}},
		{name: "negative offset", args: map[string]interface{}{"offset": float64(-1)}},
		{name: "unknown sort", args: map[string]interface{}{"sort": "popularity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleQueryExperiences(ctx, callRequest(tt.args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}

	var req mcp.CallToolRequest
	req.Params.Arguments = "not an object"
	_, err := s.handleQueryExperiences(ctx, req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestQueryExperiencesConfiguredLimit(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	newServer := func(maxLimit int) *Server {
		emb := embedder.NewDisabledProvider()
		s, err := NewServer(Deps{
			Storage:   store,
			Searcher:  searcher.NewSearcher(store, emb, searcher.Options{DefaultLimit: 5, MaxLimit: maxLimit}),
			Lifecycle: lifecycle.NewManager(store, emb, lifecycle.Options{}),
			Embedder:  emb,
		})
		require.NoError(t, err)
		return s
	}

	t.Run("larger configured max accepts larger limits", func(t *testing.T) {
		s := newServer(500)
		_, err := s.handleQueryExperiences(ctx, callRequest(map[string]interface{}{"limit": float64(300)}))
		assert.NoError(t, err)

		_, err = s.handleQueryExperiences(ctx, callRequest(map[string]interface{}{"limit": float64(501)}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("smaller configured max rejects instead of capping", func(t *testing.T) {
		s := newServer(20)
		_, err := s.handleQueryExperiences(ctx, callRequest(map[string]interface{}{"limit": float64(20)}))
		assert.NoError(t, err)

		_, err = s.handleQueryExperiences(ctx, callRequest(map[string]interface{}{"limit": float64(50)}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("schema advertises configured bounds", func(t *testing.T) {
		tool := queryExperiencesTool(newServer(20).searcher.Limits())
		limit := tool.InputSchema.Properties["limit"].(map[string]interface{})
		assert.Equal(t, 20, limit["maximum"])
		assert.Equal(t, 5, limit["default"])
	})
}

func TestQueryExperiencesDegraded(t *testing.T) {
	s, _ := setupTestServer(t, embedder.NewDisabledProvider())
	recordPublished(t, s, map[string]interface{}{
		"title": "CORS error on Next.js API route", "problem": "p", "solution": "s",
		"keywords": []interface{}{"nextjs", "cors"},
	})

	res, err := s.handleQueryExperiences(context.Background(), callRequest(map[string]interface{}{
		"keywords": []interface{}{"nextjs", "cors"},
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["degraded"])
	assert.Equal(t, "lexical", out["mode"])
	assert.Len(t, out["experiences"], 1)
}

func TestEmbeddingToolErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestServer(t, embedder.NewDisabledProvider())
	id := recordPublished(t, s, map[string]interface{}{"title": "t", "problem": "p", "solution": "s"})

	_, err := s.handleEnsureEmbedding(ctx, callRequest(map[string]interface{}{"id": id}))
	requireMCPError(t, err, ErrorCodeEmbeddingUnavailable)

	_, err = s.handleEnsureEmbedding(ctx, callRequest(map[string]interface{}{"id": "missing"}))
	requireMCPError(t, err, ErrorCodeNotFound)

	_, err = s.handleEnsureEmbedding(ctx, callRequest(map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	// Clearing a record without an embedding succeeds
	res, err := s.handleClearEmbedding(ctx, callRequest(map[string]interface{}{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, res)["cleared"])
}

func TestEnsureAndClearEmbedding(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestServer(t, embedder.NewLocalProvider(32))
	id := recordPublished(t, s, map[string]interface{}{"title": "t", "problem": "p", "solution": "s"})

	res, err := s.handleEnsureEmbedding(ctx, callRequest(map[string]interface{}{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, "embedded", decodeResult(t, res)["outcome"])

	res, err = s.handleEnsureEmbedding(ctx, callRequest(map[string]interface{}{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, "already_embedded", decodeResult(t, res)["outcome"])

	got, err := store.GetExperience(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Embedding, 32)

	for i := 0; i < 2; i++ {
		_, err = s.handleClearEmbedding(ctx, callRequest(map[string]interface{}{"id": id}))
		require.NoError(t, err)
	}
	got, err = store.GetExperience(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.HasEmbedding)
}

func TestBatchEnsureEmbeddingsTool(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestServer(t, embedder.NewLocalProvider(16))
	for _, title := range []string{"a", "b", "c"} {
		recordPublished(t, s, map[string]interface{}{"title": title, "problem": "p", "solution": "s"})
	}

	res, err := s.handleBatchEnsureEmbeddings(ctx, callRequest(map[string]interface{}{"limit": float64(2)}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(2), out["processed"])
	assert.Equal(t, float64(2), out["succeeded"])
	assert.Equal(t, float64(0), out["failed"])

	res, err = s.handleGetStatus(ctx, callRequest(nil))
	require.NoError(t, err)
	stats := decodeResult(t, res)["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["embedded"])
	assert.Equal(t, float64(1), stats["missing_embeddings"])

	_, err = s.handleBatchEnsureEmbeddings(ctx, callRequest(map[string]interface{}{"offset": float64(-2)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestRecordExperienceUpdate(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestServer(t, embedder.NewLocalProvider(16))
	id := recordPublished(t, s, map[string]interface{}{"title": "old", "problem": "p", "solution": "s"})

	res, err := s.handleRecordExperience(ctx, callRequest(map[string]interface{}{
		"id": id, "title": "new", "problem": "p2", "solution": "s2", "keywords": []interface{}{" Go ", "go"},
	}))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, res)["updated"])

	got, err := store.GetExperience(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, []string{"go"}, got.Keywords)

	_, err = s.handleRecordExperience(ctx, callRequest(map[string]interface{}{"title": "missing problem", "solution": "s"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleRecordExperience(ctx, callRequest(map[string]interface{}{
		"id": "missing", "title": "t", "problem": "p", "solution": "s",
	}))
	requireMCPError(t, err, ErrorCodeNotFound)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Contains(t, mcpErr.Data.(map[string]interface{})["hint"], "omit id")

	_, err = store.GetExperience(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound, "an unknown id never creates a record")
}

func TestRecordExperienceSchemaDescribesID(t *testing.T) {
	tool := recordExperienceTool()
	assert.Contains(t, tool.Description, "server")
	assert.Contains(t, tool.Description, "not found")
	id := tool.InputSchema.Properties["id"].(map[string]interface{})
	assert.Contains(t, id["description"], "Omit to create")
}

func TestPublishAndDeleteExperience(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestServer(t, embedder.NewDisabledProvider())

	res, err := s.handleRecordExperience(ctx, callRequest(map[string]interface{}{"title": "t", "problem": "p", "solution": "s"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "draft", out["publish_status"])
	id := out["id"].(string)

	_, err = s.handlePublishExperience(ctx, callRequest(map[string]interface{}{"id": id}))
	require.NoError(t, err)
	got, err := store.GetExperience(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, got.PublishStatus)

	_, err = s.handlePublishExperience(ctx, callRequest(map[string]interface{}{"id": id, "status": "archived"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleDeleteExperience(ctx, callRequest(map[string]interface{}{"id": id}))
	require.NoError(t, err)
	got, err = store.GetExperience(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	_, err = s.handleDeleteExperience(ctx, callRequest(map[string]interface{}{"id": id, "restore": true}))
	require.NoError(t, err)
	got, err = store.GetExperience(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)

	_, err = s.handleDeleteExperience(ctx, callRequest(map[string]interface{}{"id": "missing"}))
	requireMCPError(t, err, ErrorCodeNotFound)
}

func TestGetStatus(t *testing.T) {
	s, _ := setupTestServer(t, embedder.NewLocalProvider(8))

	res, err := s.handleGetStatus(context.Background(), callRequest(nil))
	require.NoError(t, err)
	out := decodeResult(t, res)

	emb := out["embedding"].(map[string]interface{})
	assert.Equal(t, "local", emb["provider"])
	assert.Equal(t, float64(8), emb["dimension"])
	assert.Equal(t, true, emb["available"])

	db := out["database"].(map[string]interface{})
	assert.Equal(t, storage.CurrentSchemaVersion, db["schema_version"])
	assert.Equal(t, storage.BuildMode, db["build_mode"])
}
