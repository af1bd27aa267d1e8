package sync

import (
	"context"
	"os"
	"path"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/remote"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// ListRemote recursively lists everything under base on the server. Paths
// matching ignore aren't descended into or returned, so that they're left
// alone on the server. Any failure is returned as an AccessError for the
// offending path.
func ListRemote(ctx context.Context, client remote.Client, base string,
	ignore *IgnoreList) (Tree, error) {

	tree := Tree{}
	var walk func(dir string, rel RelPath) error
	walk = func(dir string, rel RelPath) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		children, err := client.ReadDir(dir)
		if err != nil {
			return errors.NewAccessError(dir, err)
		}

		for _, child := range children {
			name := child.Name()
			if name == "." || name == ".." {
				continue
			}

			childRel := RelPath(name)
			if rel != "" {
				childRel = RelPath(path.Join(string(rel), name))
			}
			if ignore.ShouldIgnore(childRel, child.IsDir()) {
				continue
			}

			tree[childRel] = Entry{
				IsDir:   child.IsDir(),
				Size:    child.Size(),
				ModTime: child.ModTime(),
			}

			if child.IsDir() {
				if err := walk(path.Join(dir, name), childRel); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(base, ""); err != nil {
		return nil, err
	}
	return tree, nil
}

// ListLocal recursively lists everything under root that isn't ignored.
// Entries below root that can't be read are treated as if they don't exist.
// If root itself can't be read, ListLocal fails with a WorkspaceMissing
// error, since an empty listing would make the remote tree look stale.
func ListLocal(root string, ignore *IgnoreList) (Tree, error) {
	tree := Tree{}
	err := afero.Walk(fs, root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			if p == root {
				return errors.WithCode(errors.NewAccessError(p, err),
					errors.WorkspaceMissing)
			}

			log.WithError(err).WithField("path", p).Debug("Skipping unreadable local path")
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, ok := Rel(root, p)
		if !ok {
			return nil
		}

		if ignore.ShouldIgnore(rel, fi.IsDir()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, devices and sockets aren't synced.
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}

		tree[rel] = Entry{
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithContext(err, "list local files")
	}
	return tree, nil
}
