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

const maxSymbolResults = 500

// definitionPatterns matches common definition syntax across the few
// languages a workspace is likely to contain. Deliberately simplified:
// no real language server, just line-oriented regexes.
var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?(\w+)\s*\(`),   // Go
	regexp.MustCompile(`^\s*type\s+(\w+)\s+(?:struct|interface)\b`), // Go
	regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`),                      // Python
	regexp.MustCompile(`^\s*class\s+(\w+)\b`),                       // Python
	regexp.MustCompile(`^\s*(?:export\s+)?function\s+(\w+)\s*\(`),  // JS/TS
}

// FindDefinitionTool locates where a symbol is defined via a regex-based
// line scan over the workspace (no real LSP client; a deliberate
// simplification).
type FindDefinitionTool struct{ Root string }

func (t FindDefinitionTool) Name() string        { return "find_definition" }
func (t FindDefinitionTool) Description() string { return "Find where a symbol is defined" }
func (t FindDefinitionTool) Schema() Schema {
	return Schema{Properties: map[string]string{"symbol": "string"}, Required: []string{"symbol"}}
}
func (t FindDefinitionTool) RequiresConfirmation() bool { return false }

func (t FindDefinitionTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	symbol, ok := args["symbol"]
	if !ok || symbol == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: symbol"}, nil
	}

	var hits []string
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
		hits = append(hits, findDefinitionsInFile(path, rel, symbol)...)
		return nil
	})
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if len(hits) == 0 {
		return domain.ToolResult{Success: true, Output: "no definitions found"}, nil
	}
	return domain.ToolResult{Success: true, Output: strings.Join(hits, "\n")}, nil
}

func findDefinitionsInFile(path, rel, symbol string) []string {
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
		for _, pattern := range definitionPatterns {
			m := pattern.FindStringSubmatch(line)
			if m != nil && m[1] == symbol {
				out = append(out, fmt.Sprintf("%s:%d: %s", rel, lineNum, strings.TrimSpace(line)))
			}
		}
	}
	return out
}

// FindReferencesTool finds every whole-word occurrence of a symbol
// across the workspace.
type FindReferencesTool struct{ Root string }

func (t FindReferencesTool) Name() string        { return "find_references" }
func (t FindReferencesTool) Description() string { return "Find all usages of a symbol" }
func (t FindReferencesTool) Schema() Schema {
	return Schema{Properties: map[string]string{"symbol": "string"}, Required: []string{"symbol"}}
}
func (t FindReferencesTool) RequiresConfirmation() bool { return false }

func (t FindReferencesTool) Execute(ctx context.Context, args map[string]string) (domain.ToolResult, error) {
	symbol, ok := args["symbol"]
	if !ok || symbol == "" {
		return domain.ToolResult{Success: false, Error: "missing required argument: symbol"}, nil
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
	if err != nil {
		return domain.ToolResult{Success: false, Error: err.Error()}, nil
	}

	var hits []string
	walkErr := filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
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
		if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		hits = append(hits, grepFile(path, rel, re)...)
		if len(hits) >= maxSymbolResults {
			return fmt.Errorf("limit reached")
		}
		return nil
	})
	if walkErr != nil && len(hits) < maxSymbolResults {
		return domain.ToolResult{Success: false, Error: walkErr.Error()}, nil
	}
	if len(hits) > maxSymbolResults {
		hits = hits[:maxSymbolResults]
	}
	return domain.ToolResult{Success: true, Output: strings.Join(hits, "\n")}, nil
}
