package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/experience-mcp/internal/mcp"
	"github.com/dshills/experience-mcp/internal/storage"
)

// NewVersionCmd creates the 'version' command
func NewVersionCmd(info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version, build time, SQLite driver and schema version.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", mcp.ServerName)
			fmt.Fprintf(out, "Version:        %s\n", info.Version)
			fmt.Fprintf(out, "Build Time:     %s\n", info.BuildTime)
			fmt.Fprintf(out, "Build Mode:     %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver:  %s\n", storage.DriverName)
			fmt.Fprintf(out, "Schema Version: %s\n", storage.CurrentSchemaVersion)
			return nil
		},
	}
	return cmd
}
