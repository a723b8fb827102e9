package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewBackfillCmd creates the 'backfill' command
func NewBackfillCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Generate missing embeddings for published experiences",
		Long: `Run one batch of embedding generation over published, non-deleted
experiences without an embedding. Failures are counted and reported; an
interrupt stops the batch after the current item.`,
		Example: `  # Embed everything that is missing
  experience-mcp backfill

  # Embed the next 100 candidates
  experience-mcp backfill --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || offset < 0 {
				return fmt.Errorf("--limit and --offset must not be negative")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.manager.BatchEnsureEmbeddings(ctx, limit, offset)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"processed":   res.Processed,
				"succeeded":   res.Succeeded,
				"failed":      res.Failed,
				"skipped":     res.Skipped,
				"cancelled":   res.Cancelled,
				"errors":      res.Errors,
				"duration_ms": res.Duration.Milliseconds(),
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of experiences to process (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of candidates to skip")
	return cmd
}
