package fswatch

import (
	"os"
	"path/filepath"
	"strings"
	goSync "sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/sync"
)

var fs = afero.NewOsFs()

// Event is a local change, translated into the ledger's terms.
type Event struct {
	Path sync.RelPath
	Kind sync.ChangeKind
}

// Watcher records changes to the files under a local root into a ledger.
type Watcher struct {
	root   string
	ignore *sync.IgnoreList
	ledger *sync.Ledger

	watcher *fsnotify.Watcher

	// addWatch and removeWatch are mocked out for unit testing.
	addWatch    func(string) error
	removeWatch func(string) error

	lock goSync.Mutex
	dirs map[string]struct{}

	events   chan Event
	triggers chan struct{}

	// recordLock is held while recording a change, so that nothing is
	// recorded once Close returns.
	recordLock goSync.Mutex
	done       chan struct{}
	stopOnce   goSync.Once
}

// Watch starts watching every directory under root that isn't ignored.
// Changes are recorded in ledger, and a value is sent on Triggers after
// each batch of changes.
func Watch(root string, ignore *sync.IgnoreList, ledger *sync.Ledger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := newWatcher(root, ignore, ledger)
	w.watcher = watcher
	w.addWatch = watcher.Add
	w.removeWatch = watcher.Remove

	dirs, err := getDirsToWatch(root, ignore)
	if err != nil {
		w.abort()
		return nil, errors.WithContext(err, "get paths")
	}

	for _, dir := range dirs {
		if err := w.watchDir(dir); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			w.abort()
			return nil, err
		}
	}

	go w.run()
	return w, nil
}

func newWatcher(root string, ignore *sync.IgnoreList, ledger *sync.Ledger) *Watcher {
	events := make(chan Event, 1024)
	return &Watcher{
		root:        root,
		ignore:      ignore,
		ledger:      ledger,
		addWatch:    func(string) error { return nil },
		removeWatch: func(string) error { return nil },
		dirs:        map[string]struct{}{},
		events:      events,
		triggers:    combineUpdates(events),
		done:        make(chan struct{}),
	}
}

// Triggers receives a value whenever new changes were recorded. Bursts of
// changes are combined into a single trigger.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Close stops watching. No changes are recorded after Close returns.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		w.recordLock.Lock()
		close(w.done)
		w.recordLock.Unlock()

		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

func (w *Watcher) abort() {
	if err := w.Close(); err != nil {
		log.WithError(err).Warn("Failed to close file watcher")
	}
	close(w.events)
}

func (w *Watcher) run() {
	defer close(w.events)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watcher error")
		case <-w.done:
			return
		}
	}
}

// handle records the change described by event, and notifies listeners.
func (w *Watcher) handle(event fsnotify.Event) {
	for _, change := range w.translate(event) {
		if !w.record(change) {
			return
		}

		select {
		case w.events <- change:
		default:
			// The change is in the ledger, so it will be picked up by the
			// next pass even if this notification is dropped.
		}
	}
}

// record adds change to the ledger. It returns false if the watcher is
// closed.
func (w *Watcher) record(change Event) bool {
	w.recordLock.Lock()
	defer w.recordLock.Unlock()

	select {
	case <-w.done:
		return false
	default:
	}

	log.WithField("path", change.Path).Debugf("Recorded %s", change.Kind)
	w.ledger.Record(change.Path, change.Kind)
	return true
}

// translate converts an fsnotify event into ledger changes. Creating a
// directory may result in multiple changes, since files may have been added
// to it before it was watched.
func (w *Watcher) translate(event fsnotify.Event) []Event {
	path := filepath.Clean(event.Name)
	rel, ok := sync.Rel(w.root, path)
	if !ok {
		return nil
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The path is gone, so we can't stat it to find out whether it was
		// a directory. Instead, check whether we were watching it.
		isDir := w.forgetDir(path)
		if w.ignore.ShouldIgnore(rel, isDir) {
			return nil
		}

		// Ignored directories are never watched, so an unknown path may
		// still be one of them.
		if !isDir && w.ignore.ShouldIgnore(rel, true) {
			return nil
		}
		if isDir {
			return []Event{{rel, sync.DeleteDirectory}}
		}
		return []Event{{rel, sync.DeleteFile}}

	case event.Op&fsnotify.Create != 0:
		fi, err := fs.Stat(path)
		if err != nil {
			// Temporary files are often removed before we get to them.
			log.WithError(err).WithField("path", path).Debug("Failed to stat created file")
			return nil
		}

		if w.ignore.ShouldIgnore(rel, fi.IsDir()) {
			return nil
		}
		if !fi.IsDir() {
			return []Event{{rel, sync.Add}}
		}
		return w.addDir(path, rel)

	case event.Op&fsnotify.Write != 0:
		fi, err := fs.Stat(path)
		if err != nil || fi.IsDir() {
			return nil
		}
		if w.ignore.ShouldIgnore(rel, false) {
			return nil
		}
		return []Event{{rel, sync.Modify}}
	}
	return nil
}

// addDir starts watching a newly created directory, and returns changes
// for everything inside it.
func (w *Watcher) addDir(path string, rel sync.RelPath) []Event {
	changes := []Event{{rel, sync.AddDirectory}}
	if err := w.watchDir(path); err != nil {
		log.WithError(err).Warn("Failed to watch new directory")
	}

	err := afero.Walk(fs, path, func(child string, fi os.FileInfo, err error) error {
		if err != nil || child == path {
			return nil
		}

		childRel, ok := sync.Rel(w.root, child)
		if !ok {
			return nil
		}

		if w.ignore.ShouldIgnore(childRel, fi.IsDir()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if fi.IsDir() {
			if err := w.watchDir(child); err != nil {
				log.WithError(err).Warn("Failed to watch new directory")
			}
			changes = append(changes, Event{childRel, sync.AddDirectory})
		} else if fi.Mode().IsRegular() {
			changes = append(changes, Event{childRel, sync.Add})
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to walk new directory")
	}
	return changes
}

func (w *Watcher) watchDir(dir string) error {
	if err := w.addWatch(dir); err != nil {
		return errors.WithContext(err, "watch "+dir)
	}

	w.lock.Lock()
	w.dirs[dir] = struct{}{}
	w.lock.Unlock()
	return nil
}

// forgetDir stops tracking path and anything under it. It returns whether
// path was a watched directory.
func (w *Watcher) forgetDir(path string) bool {
	w.lock.Lock()
	defer w.lock.Unlock()

	_, isDir := w.dirs[path]
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)

			// fsnotify drops the watch on its own when the directory is
			// removed, but not when it's renamed.
			if err := w.removeWatch(dir); err != nil {
				log.WithError(err).WithField("path", dir).Debug("Failed to remove watch")
			}
		}
	}
	return isDir
}

func combineUpdates(updates <-chan Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// getDirsToWatch returns root and every directory under it that isn't
// ignored. fsnotify doesn't watch directories recursively, so each one must
// be added individually.
func getDirsToWatch(root string, ignore *sync.IgnoreList) (dirs []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%q is not a directory", root)
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if !fi.IsDir() {
			return nil
		}

		if path != root {
			rel, ok := sync.Rel(root, path)
			if ok && ignore.ShouldIgnore(rel, true) {
				return filepath.SkipDir
			}
		}

		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
