// Package cli implements the orchestrator's operator-facing command
// line using Cobra, one subcommand per file, matching the teacher's
// internal/cli layout (each command wired directly to a Core method or
// component rather than through the out-of-scope HTTP façade).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/orchestrator/internal/config"
	"github.com/tutu-network/orchestrator/internal/core"
)

var rootCmd = &cobra.Command{
	Use:           "orchestrator",
	Short:         "orchestrator — local multi-model LLM orchestrator",
	Long:          `orchestrator discovers quantized models on disk, supervises inference-server subprocesses, and routes queries through single-stage, two-stage, council (consensus/debate), or benchmark pipelines.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI; version is set at build time via -ldflags.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withCore loads config, constructs a Core, starts its background
// tasks, runs fn, and always closes the Core afterward — the shape
// every subcommand in this package follows.
func withCore(fn func(*core.Core) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c, err := core.New(cfg)
	if err != nil {
		return fmt.Errorf("construct core: %w", err)
	}
	c.Start()
	defer c.Close()
	return fn(c)
}
