/*
Package cli implements the experience-mcp command tree.

Commands:

	serve     Run the MCP server over stdio, with the optional sweeper and metrics endpoint
	backfill  Generate embeddings for published experiences that lack one
	probe     Check the embedding provider and generate a sample embedding
	version   Show version and build information

Configuration is read from the file given by --config and from EXPERIENCE_*
environment variables.
*/
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo is set by the main package from linker flags
type BuildInfo struct {
	Version   string
	BuildTime string
}

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd(info BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "experience-mcp",
		Short: "Hybrid retrieval over troubleshooting experiences",
		Long: `experience-mcp stores troubleshooting experiences and retrieves them with
hybrid search: vector similarity when an embedding provider is available,
lexical matching always, and browse-recent when no query is given.`,
		Version:       fmt.Sprintf("%s (built: %s)", info.Version, info.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to a YAML, JSON or TOML config file")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewBackfillCmd())
	rootCmd.AddCommand(NewProbeCmd())
	rootCmd.AddCommand(NewVersionCmd(info))
	return rootCmd
}
