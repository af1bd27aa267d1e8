package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/ftpsync/pkg/errors"
)

// DefaultConfigPath is the default path to the ftpsync config.
const DefaultConfigPath = "~/.ftpsync.yaml"

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Store loads and saves the sync configuration.
type Store interface {
	// Load reads the configuration from scratch. Callers are expected to call
	// it every time they need the config, so that edits take effect without
	// restarting.
	Load() (Sync, error)

	Save(Sync) error
}

// FileStore is a Store backed by a YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the config file at path. An empty path
// selects DefaultConfigPath.
func NewFileStore(path string) (FileStore, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	expanded, err := homedirExpand(path)
	if err != nil {
		return FileStore{}, errors.WithContext(err, "expand config path")
	}
	return FileStore{path: expanded}, nil
}

// Path returns the expanded path of the config file.
func (s FileStore) Path() string {
	return s.path
}

// Load parses the config file. A missing file isn't an error: the defaults
// are returned, and validation will report the missing settings.
func (s FileStore) Load() (Sync, error) {
	cfg := Sync{Version: InitialSyncConfigVersion}
	if err := parseConfig(s.path, &cfg, SupportedSyncConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			log.WithField("path", s.path).Debug("Config file doesn't exist. Using defaults.")
			return Sync{Version: SupportedSyncConfigVersion}.WithDefaults(), nil
		}
		return Sync{}, errors.WithContext(err, "parse")
	}

	if cfg.LocalRoot != "" {
		root, err := homedir.Expand(cfg.LocalRoot)
		if err != nil {
			return Sync{}, errors.WithContext(err, "expand local root")
		}

		// Evaluate relative paths relative to the config path.
		if !filepath.IsAbs(root) {
			root = filepath.Join(filepath.Dir(s.path), root)
		}
		cfg.LocalRoot = root
	}

	if cfg.KnownHostsFile != "" {
		knownHosts, err := homedir.Expand(cfg.KnownHostsFile)
		if err != nil {
			return Sync{}, errors.WithContext(err, "expand known hosts path")
		}
		cfg.KnownHostsFile = knownHosts
	}
	return cfg.WithDefaults(), nil
}

// Save writes the config to disk. The file contains the password, so it's
// only readable by the owner.
func (s FileStore) Save(cfg Sync) error {
	cfg.Version = SupportedSyncConfigVersion

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, s.path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// Watch sends on the returned channel whenever the config file changes.
// The parent directory is watched rather than the file because most editors
// save by replacing the file. The watch ends when stop is called.
func (s FileStore) Watch() (changes <-chan struct{}, stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, errors.WithContext(err, "create watcher")
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close config watcher")
		}
		return nil, nil, errors.WithContext(err, "watch config directory")
	}

	combined := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) ||
					event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case combined <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Config watcher error")
			}
		}
	}()

	stop = func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Debug("Failed to close config watcher")
		}
	}
	return combined, stop, nil
}

// MemoryStore is a Store that keeps the config in memory. It's used when the
// config comes entirely from flags, and by tests.
type MemoryStore struct {
	lock  sync.Mutex
	cfg   Sync
	saves int
}

// NewMemoryStore returns a MemoryStore holding cfg.
func NewMemoryStore(cfg Sync) *MemoryStore {
	return &MemoryStore{cfg: cfg}
}

// Load returns the stored config with defaults applied.
func (s *MemoryStore) Load() (Sync, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cfg.WithDefaults(), nil
}

// Save replaces the stored config.
func (s *MemoryStore) Save(cfg Sync) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cfg = cfg
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.saves
}
