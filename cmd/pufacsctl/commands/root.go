// Package commands implements the pufacsctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is shared by every subcommand that talks to a daemon's
	// health/status endpoint.
	httpClient = &http.Client{Timeout: 5 * time.Second}

	// serverAddr is the daemon's health-server address (host:port).
	serverAddr string

	// outputFormat controls the output format for commands that print
	// structured data (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for pufacsctl.
var rootCmd = &cobra.Command{
	Use:   "pufacsctl",
	Short: "CLI client for pufacsd and pufacs-supplicant",
	Long:  "pufacsctl queries a pufacsd or pufacs-supplicant process's health/status endpoint.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051",
		"daemon health-server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
