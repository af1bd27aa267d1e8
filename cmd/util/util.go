package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
)

// ConfigPath is the path to the config file. It's set by the --config flag
// on the root command.
var ConfigPath = config.DefaultConfigPath

// Mocked out for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

type friendlyError interface {
	FriendlyMessage() string
}

// HandleFatalError prints err and exits. Errors with a friendly message are
// printed without the rest of their context.
func HandleFatalError(err error) {
	var friendlyErr friendlyError
	if errors.As(err, &friendlyErr) {
		log.WithError(err).Debug("Fatal error")
		fmt.Fprintln(stderr, friendlyErr.FriendlyMessage())
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic logs the stack trace of a panic, and exits. It must be
// deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Debug("Stack trace")
		fmt.Fprintf(stderr, "Unexpected error: %v\n"+
			"Set FTPSYNC_LOG_VERBOSE=true for more details.\n", r)
		exit(1)
	}
}

// LoadStore returns the store for the config at ConfigPath.
func LoadStore() (config.FileStore, error) {
	store, err := config.NewFileStore(ConfigPath)
	if err != nil {
		return config.FileStore{}, errors.WithContext(err, "find config")
	}
	return store, nil
}
