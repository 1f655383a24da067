// Package cli implements the valet command tree.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/valetd/valet/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		" __     __    _      _\n" +
		" \\ \\   / /_ _| | ___| |_\n" +
		"  \\ \\ / / _` | |/ _ \\ __|\n" +
		"   \\ V / (_| | |  __/ |_\n" +
		"    \\_/ \\__,_|_|\\___|\\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "valet",
	Short: "Valet - natural-language host assistant",
	Long:  color.CyanString(logo) + "\nA personal assistant that turns chat messages into authorized host actions.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(auditCmd)
}
