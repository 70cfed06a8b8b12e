package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/config"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Connect to the backend once and print its ServerSpec as JSON",
	Long: `Inspect dials the configured backend, runs the initialize/list
handshake, and prints the resulting ServerSpec to stdout as JSON. No
frontend is required for this command.

Examples:
  mcpbridge inspect
  mcpbridge --config /path/to/mcpbridge.yaml inspect`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	builder, err := config.LoadBuilder()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := builder.Build()
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(logLevelFlag),
	}))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.IntrospectBudget)
	defer cancel()

	orch := config.NewOrchestrator(cfg, logger)
	spec, err := orch.RunInspect(ctx)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(spec)
}
