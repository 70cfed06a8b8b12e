package frontend

import (
	"context"
	"log/slog"
	"os"

	"github.com/mcpbridge/mcpbridge/internal/port/inbound"
)

// StdioFrontend serves one client over this process's own stdin/stdout, a
// thin wrapper around the shared newline-delimited session loop
// (runLineSession).
type StdioFrontend struct {
	logger *slog.Logger
}

// NewStdioFrontend constructs a StdioFrontend.
func NewStdioFrontend(logger *slog.Logger) *StdioFrontend {
	return &StdioFrontend{logger: logger}
}

// Serve blocks until stdin is exhausted or fails. Cancelling ctx cancels
// in-flight requests but does not interrupt a pending read of stdin.
func (f *StdioFrontend) Serve(ctx context.Context, proxy inbound.ProxyService) error {
	return runLineSession(ctx, proxy, os.Stdin, os.Stdout, f.logger)
}

// Close is a no-op: there is no listener resource to release for Stdio.
func (f *StdioFrontend) Close() error {
	return nil
}

var _ inbound.FrontendServer = (*StdioFrontend)(nil)
