package internal

import (
	"path/filepath"
	"strings"
)

// NormalizeWorkspace cleans a workspace path for comparison.
func NormalizeWorkspace(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimRight(filepath.Clean(path), "/")
}

// WorkspaceMatches reports whether a turn's workspace matches the querying
// context's workspace, either exactly or by path containment (one being a
// parent directory of the other).
func WorkspaceMatches(turnWorkspace, queryWorkspace string) bool {
	a := NormalizeWorkspace(turnWorkspace)
	b := NormalizeWorkspace(queryWorkspace)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// WorkspaceBase returns the final path element for display.
func WorkspaceBase(path string) string {
	p := NormalizeWorkspace(path)
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}
