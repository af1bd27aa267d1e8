package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/remote/remotetest"
)

func TestListLocal(t *testing.T) {
	fs = afero.NewMemMapFs()
	modTime := time.Date(2019, 11, 10, 12, 0, 0, 0, time.UTC)

	files := map[string]string{
		"/local/index.js":                      "console.log('hi')",
		"/local/src/app.js":                    "app",
		"/local/src/.env":                      "SECRET=1",
		"/local/.git/HEAD":                     "ref",
		"/local/node_modules/express/index.js": "express",
		"/local/out/bundle.js":                 "bundle",
		"/local/debug.log":                     "log",
		"/elsewhere/file":                      "not synced",
	}
	for path, contents := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
		require.NoError(t, fs.Chtimes(path, modTime, modTime))
	}
	require.NoError(t, fs.MkdirAll("/local/empty", 0755))

	tree, err := ListLocal("/local", NewIgnoreList("*.log"))
	require.NoError(t, err)
	assert.Equal(t, []RelPath{"empty", "index.js", "src", "src/app.js"}, tree.Paths())
	assert.Equal(t, Entry{Size: 17, ModTime: modTime}, tree["index.js"])
	assert.True(t, tree["src"].IsDir)
}

func TestListLocalMissingRoot(t *testing.T) {
	fs = afero.NewMemMapFs()
	tree, err := ListLocal("/does-not-exist", NewIgnoreList())
	assert.Equal(t, errors.WorkspaceMissing, errors.Classify(err))
	assert.Nil(t, tree)
}

// unreadableFs fails to open the given directories, as if their permissions
// didn't allow it.
type unreadableFs struct {
	afero.Fs
	dirs map[string]bool
}

func (fs unreadableFs) Open(name string) (afero.File, error) {
	if fs.dirs[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return fs.Fs.Open(name)
}

func TestListLocalUnreadable(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, memFs.MkdirAll("/local/private", 0755))
	require.NoError(t, afero.WriteFile(memFs, "/local/private/key", []byte("key"), 0600))
	require.NoError(t, afero.WriteFile(memFs, "/local/index.js", []byte("js"), 0644))

	// An unreadable directory below the root is skipped.
	fs = unreadableFs{Fs: memFs, dirs: map[string]bool{"/local/private": true}}
	tree, err := ListLocal("/local", NewIgnoreList())
	require.NoError(t, err)
	assert.Equal(t, []RelPath{"index.js", "private"}, tree.Paths())

	// An unreadable root fails the whole listing.
	fs = unreadableFs{Fs: memFs, dirs: map[string]bool{"/local": true}}
	_, err = ListLocal("/local", NewIgnoreList())
	assert.Equal(t, errors.WorkspaceMissing, errors.Classify(err))

	var accessErr errors.AccessError
	require.True(t, errors.As(err, &accessErr))
	assert.Equal(t, "/local", accessErr.Path)
	assert.True(t, accessErr.Permission)
}

func TestListRemote(t *testing.T) {
	client := remotetest.NewClient()
	modTime := time.Date(2019, 11, 10, 12, 0, 0, 0, time.UTC)
	client.WriteFile("/srv/www/index.html", "<html>", modTime)
	client.WriteFile("/srv/www/css/site.css", "body {}", modTime)
	client.WriteFile("/srv/www/.htaccess", "deny", modTime)
	client.WriteFile("/srv/other", "not listed", modTime)

	tree, err := ListRemote(context.Background(), client, "/srv/www", NewIgnoreList())
	require.NoError(t, err)
	assert.Equal(t, []RelPath{"css", "css/site.css", "index.html"}, tree.Paths())
	assert.Equal(t, Entry{Size: 6, ModTime: modTime}, tree["index.html"])
	assert.True(t, tree["css"].IsDir)
}

func TestListRemoteError(t *testing.T) {
	client := remotetest.NewClient()
	client.WriteFile("/srv/www/private/secret", "", time.Now())
	client.FailOn(remotetest.OpReadDir, "/srv/www/private", os.ErrPermission)

	_, err := ListRemote(context.Background(), client, "/srv/www", nil)
	var accessErr errors.AccessError
	require.True(t, errors.As(err, &accessErr))
	assert.Equal(t, "/srv/www/private", accessErr.Path)
	assert.True(t, accessErr.Permission)

	client = remotetest.NewClient()
	_, err = ListRemote(context.Background(), client, "/missing", nil)
	require.True(t, errors.As(err, &accessErr))
	assert.Equal(t, "/missing", accessErr.Path)
	assert.False(t, accessErr.Permission)
}
