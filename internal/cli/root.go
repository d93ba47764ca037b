// Package cli wires the tabwarden commands. One file per command,
// package-level flag variables bound in init.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "tabwarden",
	Short: "Local governance daemon for AI tool use in the browser",
	Long: "Scores page navigations and in-page AI signals against an administrator\n" +
		"policy, opens consent prompts in the page, and records every decision in\n" +
		"a hash-chained log. Pages connect over a local WebSocket.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config.yaml (default ~/.tabwarden/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
