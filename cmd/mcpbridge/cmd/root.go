// Package cmd provides the mcpbridge CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpbridge",
	Short: "mcpbridge - MCP transport proxy and introspection core",
	Long: `mcpbridge bridges a Model Context Protocol client on one transport to an
MCP server on another, rewriting request ids and forwarding notifications
and server-initiated requests in both directions.

Quick start:
  1. Create a config file: mcpbridge.yaml
  2. Run: mcpbridge serve

Configuration:
  Config is loaded from mcpbridge.yaml in the current directory,
  $HOME/.mcpbridge/, or /etc/mcpbridge/.

  Environment variables override config values with the MCPBRIDGE_ prefix.
  Example: MCPBRIDGE_BACKEND_STDIO_COMMAND=node

Commands:
  serve     Start the proxy, bridging backend and frontend transports
  inspect   Connect to the backend once and print its ServerSpec as JSON
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpbridge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
