package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tutu-network/orchestrator/internal/domain"
)

func TestResolveSandboxed_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	if _, err := resolveSandboxed(root, "../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestResolveSandboxed_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("top secret"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := resolveSandboxed(root, "escape/secret.txt"); err == nil {
		t.Fatalf("expected symlink escape to be rejected")
	}
}

func TestResolveSandboxed_AllowsWithinRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	resolved, err := resolveSandboxed(root, "sub/file.txt")
	if err != nil {
		t.Fatalf("resolveSandboxed: %v", err)
	}
	if !withinRoot(root, resolved) {
		t.Fatalf("resolved path %q escaped root %q", resolved, root)
	}
}

func TestReadWriteDeleteFileTool(t *testing.T) {
	root := t.TempDir()
	write := WriteFileTool{Root: root}
	result, err := write.Execute(context.Background(), map[string]string{"path": "notes.txt", "content": "hello"})
	if err != nil || !result.Success {
		t.Fatalf("write: result=%+v err=%v", result, err)
	}

	read := ReadFileTool{Root: root}
	result, err = read.Execute(context.Background(), map[string]string{"path": "notes.txt"})
	if err != nil || !result.Success || result.Output != "hello" {
		t.Fatalf("read: result=%+v err=%v", result, err)
	}

	del := DeleteFileTool{Root: root}
	result, err = del.Execute(context.Background(), map[string]string{"path": "notes.txt"})
	if err != nil || !result.Success {
		t.Fatalf("delete: result=%+v err=%v", result, err)
	}

	if _, err := os.Stat(filepath.Join(root, "notes.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be gone, stat err=%v", err)
	}
}

func TestWriteFileTool_RejectsEscape(t *testing.T) {
	root := t.TempDir()
	write := WriteFileTool{Root: root}
	if _, err := write.Execute(context.Background(), map[string]string{"path": "../outside.txt", "content": "x"}); err == nil {
		t.Fatalf("expected escape to be rejected")
	}
}

func TestListDirectoryTool_SkipsBlockedDirs(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "node_modules"), 0o755)
	os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644)

	list := ListDirectoryTool{Root: root}
	result, err := list.Execute(context.Background(), map[string]string{"path": ""})
	if err != nil || !result.Success {
		t.Fatalf("list: result=%+v err=%v", result, err)
	}
	if !strings.Contains(result.Output, "main.go") {
		t.Fatalf("expected main.go in listing, got %q", result.Output)
	}
	if strings.Contains(result.Output, "node_modules") {
		t.Fatalf("expected node_modules to be skipped, got %q", result.Output)
	}
}

func TestGrepFilesTool_FindsMatch(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "a.go"), []byte("func TargetFunc() {}\n"), 0o644)
	os.MkdirAll(filepath.Join(root, ".git"), 0o755)
	os.WriteFile(filepath.Join(root, ".git", "b.go"), []byte("func TargetFunc() {}\n"), 0o644)

	grep := GrepFilesTool{Root: root}
	result, err := grep.Execute(context.Background(), map[string]string{"pattern": "TargetFunc"})
	if err != nil || !result.Success {
		t.Fatalf("grep: result=%+v err=%v", result, err)
	}
	if !strings.Contains(result.Output, "a.go") {
		t.Fatalf("expected a.go match, got %q", result.Output)
	}
	if strings.Contains(result.Output, ".git") {
		t.Fatalf("expected .git to be skipped, got %q", result.Output)
	}
}

func TestFindDefinitionTool_LocatesGoFunc(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "a.go"), []byte("package x\n\nfunc Widget() {}\n"), 0o644)

	find := FindDefinitionTool{Root: root}
	result, err := find.Execute(context.Background(), map[string]string{"symbol": "Widget"})
	if err != nil || !result.Success {
		t.Fatalf("find_definition: result=%+v err=%v", result, err)
	}
	if !strings.Contains(result.Output, "a.go:3") {
		t.Fatalf("expected a.go:3 in output, got %q", result.Output)
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.Register(ReadFileTool{Root: t.TempDir()})
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatalf("expected nonexistent tool to be absent")
	}
	if _, err := r.Execute(context.Background(), domain.ToolCall{Tool: "nonexistent"}); err == nil {
		t.Fatalf("expected execute of unknown tool to fail")
	}
}
