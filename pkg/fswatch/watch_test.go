package fswatch

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/sync"
)

func TestGetDirsToWatch(t *testing.T) {
	tests := []struct {
		name    string
		dirs    []string
		files   []string
		ignore  []string
		expDirs []string
	}{
		{
			name:    "All directories",
			dirs:    []string{"/local/src", "/local/src/app", "/local/tests"},
			files:   []string{"/local/index.js", "/local/src/app/main.js"},
			expDirs: []string{"/local", "/local/src", "/local/src/app", "/local/tests"},
		},
		{
			name: "Default ignores",
			dirs: []string{"/local/.git", "/local/.git/objects", "/local/node_modules",
				"/local/node_modules/express", "/local/out", "/local/src"},
			expDirs: []string{"/local", "/local/src"},
		},
		{
			name:    "Custom ignores",
			dirs:    []string{"/local/vendor", "/local/src", "/local/src/vendor"},
			ignore:  []string{"/vendor/"},
			expDirs: []string{"/local", "/local/src", "/local/src/vendor"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll("/local", 0755))
			for _, dir := range test.dirs {
				require.NoError(t, fs.MkdirAll(dir, 0755))
			}
			for _, file := range test.files {
				require.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
			}

			dirs, err := getDirsToWatch("/local", sync.NewIgnoreList(test.ignore...))
			require.NoError(t, err)

			sort.Strings(dirs)
			assert.Equal(t, test.expDirs, dirs)
		})
	}
}

func TestGetDirsToWatchMissingRoot(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := getDirsToWatch("/local", sync.NewIgnoreList())
	assert.Equal(t, errors.FileNotFound{Path: "/local"}, err)

	require.NoError(t, afero.WriteFile(fs, "/file", nil, 0644))
	_, err = getDirsToWatch("/file", sync.NewIgnoreList())
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name      string
		event     fsnotify.Event
		expEvents []Event
	}{
		{
			name:      "Create file",
			event:     fsnotify.Event{Name: "/local/src/app.js", Op: fsnotify.Create},
			expEvents: []Event{{"src/app.js", sync.Add}},
		},
		{
			name:  "Create directory with contents",
			event: fsnotify.Event{Name: "/local/assets", Op: fsnotify.Create},
			expEvents: []Event{
				{"assets", sync.AddDirectory},
				{"assets/img", sync.AddDirectory},
				{"assets/img/logo.png", sync.Add},
				{"assets/site.css", sync.Add},
			},
		},
		{
			name:      "Write file",
			event:     fsnotify.Event{Name: "/local/src/app.js", Op: fsnotify.Write},
			expEvents: []Event{{"src/app.js", sync.Modify}},
		},
		{
			name:  "Write directory",
			event: fsnotify.Event{Name: "/local/src", Op: fsnotify.Write},
		},
		{
			name:      "Remove file",
			event:     fsnotify.Event{Name: "/local/src/old.js", Op: fsnotify.Remove},
			expEvents: []Event{{"src/old.js", sync.DeleteFile}},
		},
		{
			name:      "Remove watched directory",
			event:     fsnotify.Event{Name: "/local/src", Op: fsnotify.Remove},
			expEvents: []Event{{"src", sync.DeleteDirectory}},
		},
		{
			name:      "Rename is a delete",
			event:     fsnotify.Event{Name: "/local/src/app.js", Op: fsnotify.Rename},
			expEvents: []Event{{"src/app.js", sync.DeleteFile}},
		},
		{
			name:  "Create ignored file",
			event: fsnotify.Event{Name: "/local/src/.env", Op: fsnotify.Create},
		},
		{
			name:  "Write ignored file",
			event: fsnotify.Event{Name: "/local/debug.log", Op: fsnotify.Write},
		},
		{
			name:  "Remove ignored directory",
			event: fsnotify.Event{Name: "/local/node_modules", Op: fsnotify.Remove},
		},
		{
			name:  "Create vanished file",
			event: fsnotify.Event{Name: "/local/src/tmp.swp~", Op: fsnotify.Create},
		},
		{
			name:  "Outside of root",
			event: fsnotify.Event{Name: "/elsewhere/file", Op: fsnotify.Create},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			files := []string{
				"/local/src/app.js",
				"/local/src/.env",
				"/local/debug.log",
				"/local/assets/site.css",
				"/local/assets/img/logo.png",
				"/local/assets/.DS_Store",
				"/elsewhere/file",
			}
			for _, file := range files {
				require.NoError(t, fs.MkdirAll(filepath.Dir(file), 0755))
				require.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
			}

			w := newWatcher("/local", sync.NewIgnoreList("*.log"), sync.NewLedger())
			require.NoError(t, w.watchDir("/local"))
			require.NoError(t, w.watchDir("/local/src"))

			assert.Equal(t, test.expEvents, w.translate(test.event))
		})
	}
}

func TestHandle(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/local/src", 0755))
	require.NoError(t, afero.WriteFile(fs, "/local/src/app.js", nil, 0644))

	ledger := sync.NewLedger()
	w := newWatcher("/local", sync.NewIgnoreList(), ledger)

	w.handle(fsnotify.Event{Name: "/local/src/app.js", Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: "/local/src/app.js", Op: fsnotify.Write})

	assert.Equal(t, map[sync.RelPath]sync.ChangeKind{"src/app.js": sync.Modify},
		ledger.Snapshot())

	select {
	case <-w.Triggers():
	case <-time.After(5 * time.Second):
		t.Fatal("expected a trigger")
	}

	// Nothing is recorded after the watcher is closed.
	require.NoError(t, w.Close())
	w.handle(fsnotify.Event{Name: "/local/src/app.js", Op: fsnotify.Remove})
	assert.Equal(t, map[sync.RelPath]sync.ChangeKind{"src/app.js": sync.Modify},
		ledger.Snapshot())
}

func TestCloseStopsRecording(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/local", 0755))
	require.NoError(t, afero.WriteFile(fs, "/local/app.js", nil, 0644))

	ledger := sync.NewLedger()
	w := newWatcher("/local", sync.NewIgnoreList(), ledger)

	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for i := 0; i < 1000; i++ {
			w.handle(fsnotify.Event{Name: "/local/app.js", Op: fsnotify.Write})
		}
	}()

	// Stopping a sync closes the watcher and then clears the ledger. Events
	// that race with the close must not end up in the cleared ledger.
	require.NoError(t, w.Close())
	ledger.Clear()
	<-handled
	assert.Zero(t, ledger.Len())
}

func TestForgetDir(t *testing.T) {
	w := newWatcher("/local", sync.NewIgnoreList(), sync.NewLedger())
	var removed []string
	w.removeWatch = func(dir string) error {
		removed = append(removed, dir)
		return nil
	}

	for _, dir := range []string{"/local", "/local/src", "/local/src/app", "/local/srcs"} {
		require.NoError(t, w.watchDir(dir))
	}

	assert.True(t, w.forgetDir("/local/src"))
	sort.Strings(removed)
	assert.Equal(t, []string{"/local/src", "/local/src/app"}, removed)
	assert.Equal(t, map[string]struct{}{"/local": {}, "/local/srcs": {}}, w.dirs)

	assert.False(t, w.forgetDir("/local/index.js"))
}

func TestCombineUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan Event, 1024)
	addEvents := func(num int) {
		for i := 0; i < num; i++ {
			updates <- Event{}
		}
	}

	// Seed with events.
	numUpdates := 100
	addEvents(numUpdates)
	combined := combineUpdates(updates)

	// Assert that the events are being combined.
	numCombined := countEvents(combined)
	assert.True(t, numCombined < numUpdates,
		"expected less combined events (%d) than %d", numCombined, numUpdates)

	// Add more events.
	addEvents(100)
	<-combined
}

func countEvents(c chan struct{}) (n int) {
	// Block until the first event.
	<-c
	n++

	// Count the number of events until there hasn't been any new events in 500
	// milliseconds.
	for {
		select {
		case <-c:
			n++
		case <-time.After(500 * time.Millisecond):
			return n
		}
	}
}
