package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func idProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// queryExperiencesTool returns the tool definition for query_experiences,
// advertising the searcher's configured page size bounds
func queryExperiencesTool(defaultLimit, maxLimit int) mcp.Tool {
	return mcp.Tool{
		Name:        "query_experiences",
		Description: "Find troubleshooting experiences by free text and/or keywords. Without a query, lists the most recent experiences.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"q": map[string]interface{}{
					"type":        "string",
					"description": "Free-text description of the problem",
				},
				"keywords": map[string]interface{}{
					"type":        "array",
					"description": "Keywords such as technologies or error names",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of results to return (1-%d)", maxLimit),
					"default":     defaultLimit,
					"minimum":     1,
					"maximum":     maxLimit,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results to skip",
					"default":     0,
					"minimum":     0,
				},
				"sort": map[string]interface{}{
					"type":        "string",
					"description": "Result ordering",
					"enum":        []string{"relevance", "query_count", "created_at"},
					"default":     "relevance",
				},
			},
		},
	}
}

// ensureEmbeddingTool returns the tool definition for ensure_embedding
func ensureEmbeddingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ensure_embedding",
		Description: "Generate and store the embedding of an experience if it has none",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Experience ID"),
			},
			Required: []string{"id"},
		},
	}
}

// clearEmbeddingTool returns the tool definition for clear_embedding
func clearEmbeddingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_embedding",
		Description: "Remove the stored embedding of an experience",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Experience ID"),
			},
			Required: []string{"id"},
		},
	}
}

// batchEnsureEmbeddingsTool returns the tool definition for batch_ensure_embeddings
func batchEnsureEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "batch_ensure_embeddings",
		Description: "Backfill embeddings for published experiences that lack one",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of experiences to process (0 for all)",
					"default":     0,
					"minimum":     0,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of candidates to skip",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}

// recordExperienceTool returns the tool definition for record_experience
func recordExperienceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_experience",
		Description: "Create a troubleshooting experience, or update the content of an existing one when id is given. " +
			"IDs are always assigned by the server: a create must omit id, and an id that does not exist returns not found.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id":         idProperty("ID of an existing experience to update. Omit to create; new IDs are server-assigned"),
				"title":      map[string]interface{}{"type": "string", "description": "Short summary of the problem"},
				"problem":    map[string]interface{}{"type": "string", "description": "What went wrong"},
				"root_cause": map[string]interface{}{"type": "string", "description": "Why it happened"},
				"solution":   map[string]interface{}{"type": "string", "description": "How it was fixed"},
				"context":    map[string]interface{}{"type": "string", "description": "Environment, versions, related links"},
				"keywords": map[string]interface{}{
					"type":        "array",
					"description": "Keywords used for lexical matching",
					"items":       map[string]interface{}{"type": "string"},
				},
				"publish": map[string]interface{}{
					"type":        "boolean",
					"description": "Publish the new experience immediately",
					"default":     false,
				},
			},
			Required: []string{"title", "problem", "solution"},
		},
	}
}

// publishExperienceTool returns the tool definition for publish_experience
func publishExperienceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "publish_experience",
		Description: "Change the publish status of an experience",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Experience ID"),
				"status": map[string]interface{}{
					"type":        "string",
					"description": "New publish status",
					"enum":        []string{"published", "draft"},
					"default":     "published",
				},
			},
			Required: []string{"id"},
		},
	}
}

// deleteExperienceTool returns the tool definition for delete_experience
func deleteExperienceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_experience",
		Description: "Soft-delete an experience, or restore a deleted one",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Experience ID"),
				"restore": map[string]interface{}{
					"type":        "boolean",
					"description": "Restore instead of delete",
					"default":     false,
				},
			},
			Required: []string{"id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report record counts, embedding coverage and provider availability",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
