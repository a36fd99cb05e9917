package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the workspace-agent application
var rootCmd = &cobra.Command{
	Use:   "workspace-agent",
	Short: "Proposes free meeting slots from Google Calendar",
	Long: `workspace-agent finds free meeting slots in a user's Google Calendar.

It can run as:
  - An HTTP API for the dashboard frontend (serve)
  - An MCP (Model Context Protocol) server for AI assistants (mcp)
  - An offline slot finder over exported busy times (slots)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "workspace-agent version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newSlotsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
