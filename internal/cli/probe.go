package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const defaultProbeText = "connection refused when calling the API from a container"

// NewProbeCmd creates the 'probe' command
func NewProbeCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the embedding provider",
		Long: `Report the configured embedding provider, check its availability and
generate one sample embedding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			emb := a.embedder
			fmt.Fprintf(out, "Provider:  %s\n", emb.Provider())
			fmt.Fprintf(out, "Model:     %s\n", emb.Model())
			fmt.Fprintf(out, "Dimension: %d\n", emb.Dimension())

			available := emb.IsAvailable(cmd.Context())
			fmt.Fprintf(out, "Available: %v\n", available)
			if !available {
				return fmt.Errorf("embedding provider %s is not available", emb.Provider())
			}

			start := time.Now()
			vec, err := emb.GenerateEmbedding(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("sample embedding failed: %w", err)
			}
			fmt.Fprintf(out, "Sample:    %d values in %s\n", len(vec), time.Since(start).Round(time.Millisecond))
			if len(vec) > 0 {
				n := min(len(vec), 5)
				fmt.Fprintf(out, "Head:      %.4f\n", []float64(vec[:n]))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", defaultProbeText, "text to embed")
	return cmd
}
