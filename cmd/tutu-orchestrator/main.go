// Package main is the single-binary entrypoint for the orchestrator.
// It supervises a fleet of local llama-server processes and exposes
// discovery, query, and chat operations over a cobra CLI.
package main

import "github.com/tutu-network/orchestrator/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
