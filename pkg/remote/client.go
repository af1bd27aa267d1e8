// Package remote talks to the SFTP server that files are mirrored to.
package remote

import (
	"context"
	"io"
	"os"

	"github.com/sidkik/ftpsync/pkg/config"
)

// Client is the set of file operations the sync engine needs from the remote
// server. All paths are absolute POSIX paths on the server.
type Client interface {
	Mkdir(path string) error
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)

	// Put creates or truncates the file at path and writes the contents of r
	// to it.
	Put(r io.Reader, path string) error

	// Remove deletes a file or an empty directory.
	Remove(path string) error
	RemoveDirectory(path string) error
	Close() error
}

// Dialer opens new connections to the server described by a config.
type Dialer interface {
	Dial(ctx context.Context, cfg config.Sync) (Client, error)
}
