package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// ReadFileTool reads a text file from within the workspace.
type ReadFileTool struct{ Root string }

func (t ReadFileTool) Name() string        { return "read_file" }
func (t ReadFileTool) Description() string { return "Read file contents from the workspace" }
func (t ReadFileTool) Schema() Schema {
	return Schema{Properties: map[string]string{"path": "string"}, Required: []string{"path"}}
}
func (t ReadFileTool) RequiresConfirmation() bool { return false }

func (t ReadFileTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	path, ok := args["path"]
	if !ok || path == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: path"}, nil
	}
	resolved, err := resolveSandboxed(t.Root, path)
	if err != nil {
		return domain.ToolResult{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if info.Size() > MaxFileSize {
		return domain.ToolResult{Success: false, Error: fmt.Sprintf("file exceeds %d byte limit", MaxFileSize)}, nil
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: string(content)}, nil
}

// WriteFileTool creates or overwrites a file within the workspace.
// Requires confirmation (spec.md §4.12).
type WriteFileTool struct{ Root string }

func (t WriteFileTool) Name() string        { return "write_file" }
func (t WriteFileTool) Description() string { return "Create or overwrite a file in the workspace" }
func (t WriteFileTool) Schema() Schema {
	return Schema{
		Properties: map[string]string{"path": "string", "content": "string"},
		Required:   []string{"path", "content"},
	}
}
func (t WriteFileTool) RequiresConfirmation() bool { return true }

func (t WriteFileTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	path, ok := args["path"]
	if !ok || path == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: path"}, nil
	}
	content := args["content"]
	if len(content) > MaxFileSize {
		return domain.ToolResult{Success: false, Error: fmt.Sprintf("content exceeds %d byte limit", MaxFileSize)}, nil
	}
	resolved, err := resolveSandboxed(t.Root, path)
	if err != nil {
		return domain.ToolResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}

// DeleteFileTool removes a file within the workspace. Requires
// confirmation (spec.md §4.12).
type DeleteFileTool struct{ Root string }

func (t DeleteFileTool) Name() string        { return "delete_file" }
func (t DeleteFileTool) Description() string { return "Delete a file in the workspace" }
func (t DeleteFileTool) Schema() Schema {
	return Schema{Properties: map[string]string{"path": "string"}, Required: []string{"path"}}
}
func (t DeleteFileTool) RequiresConfirmation() bool { return true }

func (t DeleteFileTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	path, ok := args["path"]
	if !ok || path == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: path"}, nil
	}
	resolved, err := resolveSandboxed(t.Root, path)
	if err != nil {
		return domain.ToolResult{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if info.IsDir() {
		return domain.ToolResult{Success: false, Error: "refusing to delete a directory"}, nil
	}
	if err := os.Remove(resolved); err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: fmt.Sprintf("deleted %s", path)}, nil
}

// ListDirectoryTool lists one directory's immediate entries.
type ListDirectoryTool struct{ Root string }

func (t ListDirectoryTool) Name() string        { return "list_directory" }
func (t ListDirectoryTool) Description() string { return "List a directory's contents" }
func (t ListDirectoryTool) Schema() Schema {
	return Schema{Properties: map[string]string{"path": "string"}, Required: []string{}}
}
func (t ListDirectoryTool) RequiresConfirmation() bool { return false }

const maxDirectoryEntries = 1000

func (t ListDirectoryTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	path := args["path"]
	resolved, err := resolveSandboxed(t.Root, path)
	if err != nil {
		return domain.ToolResult{}, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if BlockedDirs[e.Name()] {
			continue
		}
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
		if len(names) >= maxDirectoryEntries {
			break
		}
	}
	sort.Strings(names)
	return domain.ToolResult{Success: true, Output: strings.Join(names, "\n")}, nil
}
