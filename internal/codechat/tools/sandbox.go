// Package tools implements the Code-Chat Agent's tool registry: sandboxed
// file operations, workspace search, git inspection and commit, and a
// lightweight symbol finder (spec.md §4.12, §12 original-source
// supplement).
package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// BlockedDirs are skipped by any tool that walks the workspace tree,
// mirroring the original agent's directory blocklist.
var BlockedDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, ".git": true,
	".venv": true, "venv": true, ".tox": true, "dist": true,
	"build": true, ".cache": true, ".pytest_cache": true, ".mypy_cache": true,
}

// MaxFileSize caps any single file read or write.
const MaxFileSize = 10 * 1024 * 1024

// resolveSandboxed resolves rel against root and guarantees the result
// stays within root, including through symlinks. A path that does not
// yet exist (a write target) is resolved by walking up to its nearest
// existing ancestor, resolving *that* ancestor's symlinks, and
// rejoining the remaining components.
func resolveSandboxed(root, rel string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(root, rel)
	if !withinRoot(root, joined) {
		return "", domain.ErrPathEscapesWorkspace
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err == nil {
		if !withinRoot(root, resolved) {
			return "", domain.ErrPathEscapesWorkspace
		}
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Target doesn't exist yet (write/delete-then-recreate case): walk up
	// to the nearest existing ancestor and validate that instead.
	dir := filepath.Dir(joined)
	tail := []string{filepath.Base(joined)}
	for {
		resolvedDir, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if !withinRoot(root, resolvedDir) {
				return "", domain.ErrPathEscapesWorkspace
			}
			full := resolvedDir
			for i := len(tail) - 1; i >= 0; i-- {
				full = filepath.Join(full, tail[i])
			}
			return full, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if dir == root || dir == string(filepath.Separator) || dir == "." {
			return "", domain.ErrPathEscapesWorkspace
		}
		tail = append(tail, filepath.Base(dir))
		dir = filepath.Dir(dir)
	}
}

func withinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func isBlockedPath(relPath string) bool {
	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		if BlockedDirs[part] {
			return true
		}
	}
	return false
}
