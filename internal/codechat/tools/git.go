package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// runGit runs a git subcommand rooted at root, never touching anything
// outside the workspace and never invoking a mutating/destructive
// subcommand beyond the explicit commit tool below.
func runGit(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

// GitStatusTool reports the working tree status.
type GitStatusTool struct{ Root string }

func (t GitStatusTool) Name() string        { return "git_status" }
func (t GitStatusTool) Description() string { return "Show the git working tree status" }
func (t GitStatusTool) Schema() Schema      { return Schema{} }
func (t GitStatusTool) RequiresConfirmation() bool { return false }

func (t GitStatusTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	out, err := runGit(ctx, t.Root, "status", "--short", "--branch")
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: out}, nil
}

// GitDiffTool shows unstaged (or staged) changes.
type GitDiffTool struct{ Root string }

func (t GitDiffTool) Name() string        { return "git_diff" }
func (t GitDiffTool) Description() string { return "Show pending changes as a unified diff" }
func (t GitDiffTool) Schema() Schema {
	return Schema{Properties: map[string]string{"staged": "bool"}, Required: []string{}}
}
func (t GitDiffTool) RequiresConfirmation() bool { return false }

func (t GitDiffTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	gitArgs := []string{"diff"}
	if args["staged"] == "true" {
		gitArgs = append(gitArgs, "--staged")
	}
	out, err := runGit(ctx, t.Root, gitArgs...)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: out}, nil
}

// GitLogTool shows recent commit history.
type GitLogTool struct{ Root string }

func (t GitLogTool) Name() string        { return "git_log" }
func (t GitLogTool) Description() string { return "Show recent commit history" }
func (t GitLogTool) Schema() Schema {
	return Schema{Properties: map[string]string{"count": "int"}, Required: []string{}}
}
func (t GitLogTool) RequiresConfirmation() bool { return false }

func (t GitLogTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	count := "20"
	if c, ok := args["count"]; ok && c != "" {
		count = c
	}
	out, err := runGit(ctx, t.Root, "log", "--oneline", "-n", count)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: out}, nil
}

// GitCommitTool creates a commit of the currently staged changes.
// Requires confirmation (spec.md §4.12).
type GitCommitTool struct{ Root string }

func (t GitCommitTool) Name() string        { return "git_commit" }
func (t GitCommitTool) Description() string { return "Commit staged changes" }
func (t GitCommitTool) Schema() Schema {
	return Schema{Properties: map[string]string{"message": "string"}, Required: []string{"message"}}
}
func (t GitCommitTool) RequiresConfirmation() bool { return true }

func (t GitCommitTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	message, ok := args["message"]
	if !ok || strings.TrimSpace(message) == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: message"}, nil
	}
	out, err := runGit(ctx, t.Root, "commit", "-m", message)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: out}, nil
}
