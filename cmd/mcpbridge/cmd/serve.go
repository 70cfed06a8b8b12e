package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpbridge/mcpbridge/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy, bridging backend and frontend transports",
	Long: `Serve dials the configured backend MCP server and stands up the
configured frontend listener, forwarding client requests/notifications to
the backend and backend notifications/reverse requests to the client until
interrupted.

Examples:
  # Start with config file settings
  mcpbridge serve

  # Start with a specific config file
  mcpbridge --config /path/to/mcpbridge.yaml serve`,
	RunE: runServe,
}

var logLevelFlag string

func init() {
	serveCmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	logger.Info("mcpbridge starting",
		"version", Version,
		"backend_kind", cfg.Backend.Kind,
	)
	if cfg.Frontend != nil {
		logger.Info("frontend configured", "frontend_kind", cfg.Frontend.Kind)
	}

	orch := config.NewOrchestrator(cfg, logger)
	if err := orch.RunServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("mcpbridge stopped")
	return nil
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// Info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
