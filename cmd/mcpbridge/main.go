// Command mcpbridge is the CLI entry point: run_inspect and run_serve over
// a backend/frontend pair described by YAML config, flags, or environment
// variables.
package main

import "github.com/mcpbridge/mcpbridge/cmd/mcpbridge/cmd"

func main() {
	cmd.Execute()
}
