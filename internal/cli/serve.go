package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/experience-mcp/internal/lifecycle"
	"github.com/dshills/experience-mcp/internal/mcp"
)

// NewServeCmd creates the 'serve' command for running the MCP server
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the experience-mcp server using stdio transport.

When lifecycle.sweep_schedule is set, missing embeddings are backfilled on
that schedule. When metrics.listen is set, Prometheus metrics are served
at /metrics on that address.`,
		Example: `  # Run directly
  experience-mcp serve

  # With a config file
  experience-mcp serve --config ~/.experience-mcp/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
	return cmd
}

// runServe wires the server and blocks until ctx is done or stdin closes
func runServe(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server, err := mcp.NewServer(mcp.Deps{
		Storage:   a.store,
		Searcher:  a.searcher,
		Lifecycle: a.manager,
		Embedder:  a.embedder,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if schedule := a.cfg.Lifecycle.SweepSchedule; schedule != "" {
		sweeper, err := lifecycle.NewSweeper(a.manager, schedule, a.cfg.Lifecycle.SweepPageSize)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	if addr := a.cfg.Metrics.Listen; addr != "" {
		srv := newMetricsServer(addr, a.metrics.Handler())
		go func() {
			a.logger.Info().Str("addr", addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = server.Serve(ctx)
	a.logger.Info().Msg("server stopped")
	return err
}

func newMetricsServer(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
