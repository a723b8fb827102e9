// Package mcp implements the Model Context Protocol (MCP) server for the
// experience store.
//
// The server exposes eight tools to AI assistants:
//   - query_experiences: hybrid retrieval, or browse recent when no query is given
//   - ensure_embedding / clear_embedding: single-record embedding lifecycle
//   - batch_ensure_embeddings: administrative backfill
//   - record_experience, publish_experience, delete_experience: record management
//   - get_status: record counts, embedding coverage and provider health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs must therefore go to stderr; stdout belongs to the protocol.
//
// # Tool: query_experiences
//
//	Request:
//	{
//	  "name": "query_experiences",
//	  "arguments": {
//	    "q": "preflight request blocked",
//	    "keywords": ["nextjs", "cors"],
//	    "limit": 10,
//	    "sort": "relevance"
//	  }
//	}
//
//	Response:
//	{
//	  "experiences": [
//	    {
//	      "id": "1f0c...",
//	      "title": "CORS error on Next.js API route",
//	      "relevance": 0.92,
//	      "vector_score": 0.81,
//	      "lexical_score": 0.92
//	    }
//	  ],
//	  "total_count": 1,
//	  "has_more": false,
//	  "degraded": false,
//	  "mode": "hybrid"
//	}
//
// degraded is true when a query was supplied but the embedding provider could
// not be used; results are then ranked lexically.
//
// # Error Handling
//
// Tool errors are returned as MCPError values with JSON-RPC style codes:
//   - -32602: invalid parameters
//   - -32603: internal error (storage failures)
//   - -32001: experience not found
//   - -32002: embedding service unavailable
//   - -32003: embedding generation failed (retryable)
//   - -32004: experience has no content to embed
package mcp
