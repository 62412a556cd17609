package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tutu-network/orchestrator/internal/domain"
)

const (
	maxGrepResults  = 500
	maxGrepLineLen  = 500
	maxGrepFileSize = 10 * 1024 * 1024
)

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".so": true,
	".dll": true, ".exe": true, ".bin": true, ".sqlite": true, ".db": true,
}

// GrepFilesTool runs a regex over every non-blocked, non-binary file
// under the workspace and returns matching lines.
type GrepFilesTool struct{ Root string }

func (t GrepFilesTool) Name() string        { return "grep_files" }
func (t GrepFilesTool) Description() string { return "Search file contents with a regular expression" }
func (t GrepFilesTool) Schema() Schema {
	return Schema{Properties: map[string]string{"pattern": "string", "path": "string"}, Required: []string{"pattern"}}
}
func (t GrepFilesTool) RequiresConfirmation() bool { return false }

func (t GrepFilesTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	pattern, ok := args["pattern"]
	if !ok || pattern == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: pattern"}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return domain.ToolResult{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}, nil
	}
	searchPath := args["path"]
	root, err := resolveSandboxed(t.Root, searchPath)
	if err != nil {
		return domain.ToolResult{}, err
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(t.Root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if isBlockedPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxGrepFileSize {
			return nil
		}
		matches = append(matches, grepFile(path, rel, re)...)
		if len(matches) >= maxGrepResults {
			return fmt.Errorf("limit reached")
		}
		return nil
	})
	if err != nil && len(matches) < maxGrepResults {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if len(matches) > maxGrepResults {
		matches = matches[:maxGrepResults]
	}
	return domain.ToolResult{Success: true, Output: strings.Join(matches, "\n")}, nil
}

func grepFile(path, rel string, re *regexp.Regexp) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			if len(line) > maxGrepLineLen {
				line = line[:maxGrepLineLen] + "..."
			}
			out = append(out, fmt.Sprintf("%s:%d: %s", rel, lineNum, line))
		}
	}
	return out
}

// FindFilesTool lists workspace-relative paths matching a glob pattern.
type FindFilesTool struct{ Root string }

func (t FindFilesTool) Name() string        { return "find_files" }
func (t FindFilesTool) Description() string { return "Find files matching a glob pattern" }
func (t FindFilesTool) Schema() Schema {
	return Schema{Properties: map[string]string{"pattern": "string"}, Required: []string{"pattern"}}
}
func (t FindFilesTool) RequiresConfirmation() bool { return false }

func (t FindFilesTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	pattern, ok := args["pattern"]
	if !ok || pattern == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: pattern"}, nil
	}

	var matches []string
	err := filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(t.Root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if isBlockedPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return domain.ToolResult{Success: true, Output: strings.Join(matches, "\n")}, nil
}
