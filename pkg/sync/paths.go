package sync

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// RelPath is a forward-slash separated path relative to a sync root. It's
// the key shared by the local tree, the remote tree and the ledger.
type RelPath string

// ToRemote converts a relative local path into a RelPath.
func ToRemote(p string) RelPath {
	p = filepath.ToSlash(p)
	return RelPath(strings.ReplaceAll(p, `\`, "/"))
}

// ToLocal converts p into a path using the local separator.
func ToLocal(p RelPath) string {
	return filepath.FromSlash(string(p))
}

// Rel returns the RelPath of localPath within root. It returns false if
// localPath is root itself, or isn't inside root.
func Rel(root, localPath string) (RelPath, bool) {
	rel, err := filepath.Rel(root, localPath)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return ToRemote(rel), true
}

// JoinRemote returns the absolute remote path of p under base.
func JoinRemote(base string, p RelPath) string {
	return path.Join(base, string(p))
}

// JoinLocal returns the absolute local path of p under root.
func JoinLocal(root string, p RelPath) string {
	return filepath.Join(root, ToLocal(p))
}

// shallowestFirst orders paths by ascending length. Parents are always
// shorter than their children, so they sort first.
func shallowestFirst(paths []RelPath) {
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return paths[i] < paths[j]
	})
}

// deepestFirst orders paths by descending length, so that children sort
// before their parents.
func deepestFirst(paths []RelPath) {
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
}
