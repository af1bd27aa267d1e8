package sync

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnoreLines are never synced: hidden files, and the dependency and
// build output directories of typical JavaScript projects.
var defaultIgnoreLines = []string{
	".*",
	"node_modules/",
	"out/",
}

// IgnoreList decides which paths are excluded from syncing. Patterns use
// gitignore syntax.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
}

// NewIgnoreList returns an IgnoreList containing the default patterns and
// the given extra ones.
func NewIgnoreList(patterns ...string) *IgnoreList {
	lines := append(append([]string{}, defaultIgnoreLines...), patterns...)
	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...)}
}

// ShouldIgnore returns whether p is excluded. Directory-only patterns such
// as `out/` only match when isDir is set.
func (l *IgnoreList) ShouldIgnore(p RelPath, isDir bool) bool {
	if l == nil {
		return false
	}

	if isDir {
		return l.ignore.MatchesPath(string(p) + "/")
	}
	return l.ignore.MatchesPath(string(p))
}
