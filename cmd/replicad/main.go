package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apistol78/traktor-sub009/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┬─┐┌─┐┌─┐┬  ┬┌─┐┌─┐┌┬┐
  ├┬┘├┤ ├─┘│  ││  ├─┤ ││
  ┴└─└─┘┴  ┴─┘┴└─┘┴ ┴─┴┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "replicad",
		Short: "State replication node",
		Long: `replicad runs a node of a state replication mesh.

Each node owns one entity, sends compact snapshots of it to its peers
and extrapolates theirs between snapshots. Features include:

  • Three way handshake and clock synchronization
  • Distance based send rates
  • Reliable ordered and unordered events
  • Prometheus metrics and traffic recording`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		inspectCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// printBanner prints the replicad ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
