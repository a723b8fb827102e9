package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/experience-mcp/internal/lifecycle"
	"github.com/dshills/experience-mcp/internal/searcher"
	"github.com/dshills/experience-mcp/internal/storage"
	"github.com/dshills/experience-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound             = -32001 // Experience does not exist
	ErrorCodeEmbeddingUnavailable = -32002 // Embedding provider not configured or unreachable
	ErrorCodeEmbeddingFailed      = -32003 // Provider call failed, retryable
	ErrorCodeEmptyContent         = -32004 // Experience has no content to embed
)

// handleQueryExperiences handles the query_experiences tool invocation
func (s *Server) handleQueryExperiences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	defaultLimit, maxLimit := s.searcher.Limits()
	limit := getIntDefault(args, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
			"max":   maxLimit,
		})
	}
	offset := getIntDefault(args, "offset", 0)
	if offset < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "offset must not be negative", map[string]interface{}{
			"param": "offset",
			"value": offset,
		})
	}
	sortMode, err := types.ParseSortMode(getStringDefault(args, "sort", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid sort", map[string]interface{}{
			"param":   "sort",
			"value":   args["sort"],
			"allowed": []string{"relevance", "query_count", "created_at"},
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.Query{
		Text:     getStringDefault(args, "q", ""),
		Keywords: getStringSlice(args, "keywords"),
		Limit:    limit,
		Offset:   offset,
		Sort:     sortMode,
	})
	if err != nil {
		return nil, s.toMCPError("query failed", err)
	}

	experiences := make([]map[string]interface{}, len(resp.Experiences))
	for i, r := range resp.Experiences {
		item := experienceJSON(r.Experience)
		item["relevance"] = r.Relevance
		if r.VectorScore != nil {
			item["vector_score"] = *r.VectorScore
		}
		if r.LexicalScore != nil {
			item["lexical_score"] = *r.LexicalScore
		}
		experiences[i] = item
	}

	response := map[string]interface{}{
		"experiences": experiences,
		"total_count": resp.TotalCount,
		"has_more":    resp.HasMore,
		"degraded":    resp.Degraded,
		"mode":        string(resp.Mode),
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEnsureEmbedding handles the ensure_embedding tool invocation
func (s *Server) handleEnsureEmbedding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return nil, err
	}

	outcome, err := s.lifecycle.EnsureEmbedding(ctx, id)
	if err != nil {
		return nil, s.toMCPError("ensure embedding failed", err)
	}

	response := map[string]interface{}{
		"id":      id,
		"outcome": string(outcome),
		"model":   s.embedder.Model(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearEmbedding handles the clear_embedding tool invocation
func (s *Server) handleClearEmbedding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return nil, err
	}

	if err := s.lifecycle.ClearEmbedding(ctx, id); err != nil {
		return nil, s.toMCPError("clear embedding failed", err)
	}

	response := map[string]interface{}{
		"id":      id,
		"cleared": true,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBatchEnsureEmbeddings handles the batch_ensure_embeddings tool invocation
func (s *Server) handleBatchEnsureEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	limit := getIntDefault(args, "limit", 0)
	offset := getIntDefault(args, "offset", 0)
	if limit < 0 || offset < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit and offset must not be negative", map[string]interface{}{
			"limit":  limit,
			"offset": offset,
		})
	}

	res, err := s.lifecycle.BatchEnsureEmbeddings(ctx, limit, offset)
	if err != nil && !res.Cancelled {
		return nil, s.toMCPError("batch embedding failed", err)
	}

	response := map[string]interface{}{
		"processed":   res.Processed,
		"succeeded":   res.Succeeded,
		"failed":      res.Failed,
		"skipped":     res.Skipped,
		"cancelled":   res.Cancelled,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if len(res.Errors) > 0 {
		// Include first few errors
		if len(res.Errors) > 5 {
			response["errors"] = res.Errors[:5]
			response["error_count"] = res.Failed
		} else {
			response["errors"] = res.Errors
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordExperience handles the record_experience tool invocation
func (s *Server) handleRecordExperience(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	exp := &types.Experience{
		ID:        getStringDefault(args, "id", ""),
		Title:     getStringDefault(args, "title", ""),
		Problem:   getStringDefault(args, "problem", ""),
		RootCause: getStringDefault(args, "root_cause", ""),
		Solution:  getStringDefault(args, "solution", ""),
		Context:   getStringDefault(args, "context", ""),
		Keywords:  types.NormalizeKeywords(getStringSlice(args, "keywords")),
	}
	if err := exp.ValidateContent(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}

	if exp.ID != "" {
		if err := s.storage.UpdateContent(ctx, exp); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, newMCPError(ErrorCodeNotFound, "experience not found", map[string]interface{}{
					"error": err.Error(),
					"hint":  "id updates an existing experience; omit id to create one",
				})
			}
			return nil, s.toMCPError("update failed", err)
		}
		if err := s.lifecycle.OnContentEdit(ctx, exp.ID); err != nil {
			return nil, s.toMCPError("update failed", err)
		}
		response := map[string]interface{}{
			"id":      exp.ID,
			"updated": true,
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	if getBoolDefault(args, "publish", false) {
		exp.PublishStatus = types.StatusPublished
	}
	if err := s.storage.CreateExperience(ctx, exp); err != nil {
		return nil, s.toMCPError("create failed", err)
	}
	if exp.PublishStatus == types.StatusPublished {
		if err := s.lifecycle.OnPublish(ctx, exp.ID); err != nil {
			return nil, s.toMCPError("create failed", err)
		}
	}

	response := map[string]interface{}{
		"id":             exp.ID,
		"created":        true,
		"publish_status": string(exp.PublishStatus),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handlePublishExperience handles the publish_experience tool invocation
func (s *Server) handlePublishExperience(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return nil, err
	}
	args, _ := arguments(request)

	status := types.PublishStatus(getStringDefault(args, "status", string(types.StatusPublished)))
	if !status.Valid() {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid status", map[string]interface{}{
			"param":   "status",
			"value":   string(status),
			"allowed": []string{"published", "draft"},
		})
	}

	if err := s.storage.SetPublishStatus(ctx, id, status); err != nil {
		return nil, s.toMCPError("publish failed", err)
	}
	if status == types.StatusPublished {
		if err := s.lifecycle.OnPublish(ctx, id); err != nil {
			return nil, s.toMCPError("publish failed", err)
		}
	}

	response := map[string]interface{}{
		"id":             id,
		"publish_status": string(status),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteExperience handles the delete_experience tool invocation
func (s *Server) handleDeleteExperience(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(request)
	if err != nil {
		return nil, err
	}
	args, _ := arguments(request)

	if getBoolDefault(args, "restore", false) {
		if err := s.storage.Restore(ctx, id); err != nil {
			return nil, s.toMCPError("restore failed", err)
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{"id": id, "deleted": false})), nil
	}

	if err := s.storage.SoftDelete(ctx, id); err != nil {
		return nil, s.toMCPError("delete failed", err)
	}
	if err := s.lifecycle.OnDelete(ctx, id); err != nil {
		return nil, s.toMCPError("delete failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"id": id, "deleted": true})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, s.toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"total":              status.Total,
			"published":          status.Published,
			"drafts":             status.Drafts,
			"deleted":            status.Deleted,
			"eligible":           status.Eligible,
			"embedded":           status.Embedded,
			"missing_embeddings": status.MissingEmbeddings,
			"models":             status.Models,
		},
		"embedding": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
			"available": s.embedder.IsAvailable(ctx),
		},
		"database": map[string]interface{}{
			"schema_version": status.SchemaVersion,
			"driver":         status.Driver,
			"build_mode":     status.BuildMode,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps domain errors to MCP error codes
func (s *Server) toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "experience not found", data)
	case errors.Is(err, lifecycle.ErrEmbeddingServiceUnavailable):
		return newMCPError(ErrorCodeEmbeddingUnavailable, "embedding service unavailable", data)
	case errors.Is(err, lifecycle.ErrEmbeddingGenerationFailed):
		data["retryable"] = true
		return newMCPError(ErrorCodeEmbeddingFailed, "embedding generation failed", data)
	case errors.Is(err, lifecycle.ErrEmbeddingEmptyInput):
		return newMCPError(ErrorCodeEmptyContent, "experience has no content to embed", data)
	case errors.Is(err, searcher.ErrInvalidQuery),
		errors.Is(err, types.ErrMissingTitle),
		errors.Is(err, types.ErrMissingProblem),
		errors.Is(err, types.ErrMissingSolution),
		errors.Is(err, types.ErrInvalidPublishStatus):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	}

	s.logger.Error().Err(err).Msg(message)
	return newMCPError(ErrorCodeInternalError, message, data)
}

// experienceJSON renders an experience without its embedding vector
func experienceJSON(e *types.Experience) map[string]interface{} {
	return map[string]interface{}{
		"id":             e.ID,
		"title":          e.Title,
		"problem":        e.Problem,
		"root_cause":     e.RootCause,
		"solution":       e.Solution,
		"context":        e.Context,
		"keywords":       e.Keywords,
		"has_embedding":  e.HasEmbedding,
		"publish_status": string(e.PublishStatus),
		"query_count":    e.QueryCount,
		"view_count":     e.ViewCount,
		"created_at":     e.CreatedAt.Format(time.RFC3339),
	}
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, true
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

// requireID extracts the mandatory id parameter
func requireID(request mcp.CallToolRequest) (string, error) {
	args, ok := arguments(request)
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}
	return id, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, skipping non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
