// Command experience-mcp serves hybrid retrieval over troubleshooting
// experiences as an MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/dshills/experience-mcp/internal/cli"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	rootCmd := cli.NewRootCmd(cli.BuildInfo{Version: version, BuildTime: buildTime})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
