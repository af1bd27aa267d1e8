package sync

import (
	"sort"
	"time"
)

// Entry contains the metadata used to compare a local path with its remote
// counterpart.
type Entry struct {
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Tree is a flat listing of every entry under a root.
type Tree map[RelPath]Entry

// Paths returns the paths in the tree in lexicographic order.
func (tree Tree) Paths() []RelPath {
	paths := make([]RelPath, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// Plan is the set of operations that make the remote tree match the local
// tree. Each list is already in the order it must be applied in.
type Plan struct {
	// Delete are remote paths that don't exist locally, deepest first.
	Delete []RelPath

	// Mkdir are directories missing on the remote, shallowest first.
	Mkdir []RelPath

	// Upload are files that are missing on the remote, or whose local copy
	// is newer.
	Upload []RelPath
}

// Empty returns whether the plan has nothing to do.
func (plan Plan) Empty() bool {
	return len(plan.Delete) == 0 && len(plan.Mkdir) == 0 && len(plan.Upload) == 0
}

// Diff returns the operations necessary to make the remote tree mirror the
// local tree.
//   - Paths that only exist remotely are deleted.
//   - Paths that only exist locally are created.
//   - Files that exist on both sides are uploaded if the local modification
//     time is strictly newer. There's no conflict detection: the local copy
//     always wins.
//
// A path that is a file on one side and a directory on the other is deleted
// and then re-created.
func (local Tree) Diff(remote Tree) (plan Plan) {
	for p, exp := range local {
		curr, ok := remote[p]
		switch {
		case !ok || curr.IsDir != exp.IsDir:
			if exp.IsDir {
				plan.Mkdir = append(plan.Mkdir, p)
			} else {
				plan.Upload = append(plan.Upload, p)
			}
		case !exp.IsDir && exp.ModTime.After(curr.ModTime):
			plan.Upload = append(plan.Upload, p)
		}
	}

	for p, curr := range remote {
		exp, ok := local[p]
		if !ok || curr.IsDir != exp.IsDir {
			plan.Delete = append(plan.Delete, p)
		}
	}

	deepestFirst(plan.Delete)
	shallowestFirst(plan.Mkdir)
	sort.Slice(plan.Upload, func(i, j int) bool { return plan.Upload[i] < plan.Upload[j] })
	return plan
}
