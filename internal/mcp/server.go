package mcp

import (
	"context"
	"errors"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/experience-mcp/internal/embedder"
	"github.com/dshills/experience-mcp/internal/lifecycle"
	"github.com/dshills/experience-mcp/internal/logging"
	"github.com/dshills/experience-mcp/internal/searcher"
	"github.com/dshills/experience-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "experience-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the components the tools operate on
type Deps struct {
	Storage   storage.Storage
	Searcher  *searcher.Searcher
	Lifecycle *lifecycle.Manager
	Embedder  embedder.Embedder
	Logger    zerolog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	searcher  *searcher.Searcher
	lifecycle *lifecycle.Manager
	embedder  embedder.Embedder
	logger    zerolog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Storage == nil || deps.Searcher == nil || deps.Lifecycle == nil || deps.Embedder == nil {
		return nil, errors.New("mcp server requires storage, searcher, lifecycle and embedder")
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:   deps.Storage,
		searcher:  deps.Searcher,
		lifecycle: deps.Lifecycle,
		embedder:  deps.Embedder,
		logger:    logging.Component(deps.Logger, "mcp"),
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until ctx is done or the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Str("version", ServerVersion).Msg("serving MCP over stdio")
	err := server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	// Retrieval
	s.mcp.AddTool(queryExperiencesTool(s.searcher.Limits()), s.handleQueryExperiences)

	// Embedding lifecycle
	s.mcp.AddTool(ensureEmbeddingTool(), s.handleEnsureEmbedding)
	s.mcp.AddTool(clearEmbeddingTool(), s.handleClearEmbedding)
	s.mcp.AddTool(batchEnsureEmbeddingsTool(), s.handleBatchEnsureEmbeddings)

	// Record management
	s.mcp.AddTool(recordExperienceTool(), s.handleRecordExperience)
	s.mcp.AddTool(publishExperienceTool(), s.handlePublishExperience)
	s.mcp.AddTool(deleteExperienceTool(), s.handleDeleteExperience)

	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
