package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/experience-mcp/internal/config"
	"github.com/dshills/experience-mcp/internal/embedder"
	"github.com/dshills/experience-mcp/internal/lifecycle"
	"github.com/dshills/experience-mcp/internal/logging"
	"github.com/dshills/experience-mcp/internal/metrics"
	"github.com/dshills/experience-mcp/internal/searcher"
	"github.com/dshills/experience-mcp/internal/storage"
)

// app holds the wired components shared by commands
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	manager  *lifecycle.Manager
	searcher *searcher.Searcher
}

// configPath returns the --config flag value, empty when unset
func configPath(cmd *cobra.Command) string {
	f := cmd.Flags().Lookup("config")
	if f == nil {
		return ""
	}
	return f.Value.String()
}

// newApp loads configuration and wires storage, embedder, lifecycle and searcher
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}

	// stdout carries MCP traffic and command output
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})

	if dir := filepath.Dir(cfg.Database.Path); dir != "" && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	m := metrics.NewMetrics()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		store:    store,
		embedder: emb,
		manager: lifecycle.NewManager(store, emb, lifecycle.Options{
			BatchDelay:  cfg.Lifecycle.BatchDelay,
			Workers:     cfg.Lifecycle.BatchWorkers,
			ClearOnEdit: cfg.Lifecycle.ClearOnEdit,
			Logger:      logger,
			Metrics:     m,
		}),
		searcher: searcher.NewSearcher(store, emb, searcher.Options{
			SimilarityThreshold: cfg.Search.SimilarityThreshold,
			DefaultLimit:        cfg.Search.DefaultLimit,
			MaxLimit:            cfg.Search.MaxLimit,
			RecordQueryHits:     cfg.Search.CountQueryHits,
			Logger:              logger,
			Metrics:             m,
		}),
	}

	logger.Info().
		Str("database", cfg.Database.Path).
		Str("driver", storage.DriverName).
		Str("provider", emb.Provider()).
		Str("model", emb.Model()).
		Int("dimension", emb.Dimension()).
		Msg("components initialized")
	return a, nil
}

// Close releases the embedder and the database
func (a *app) Close() error {
	return errors.Join(a.embedder.Close(), a.store.Close())
}
