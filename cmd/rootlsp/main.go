// Package main is the entry point for the rootlsp daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "rootlsp",
	Short: "Per-folder language server lifecycle manager",
	Long: `rootlsp starts one language server per workspace folder, keeps each
folder's diagnostics, and tears everything down cleanly. One folder's
server failing never affects the others.`,
}

func main() {
	rootCmd.Version = version + " (" + commit + ")"

	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to rootlsp.toml")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
