package remote

import (
	"io"
	"net"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"

	"github.com/sidkik/ftpsync/pkg/errors"
)

// MkdirAll creates dir and any missing parents. Each segment is stat'ed from
// the root down, and only created if it doesn't exist. Any other failure
// aborts with an AccessError for the offending path.
func MkdirAll(c Client, dir string) error {
	dir = path.Clean(dir)
	if dir == "/" || dir == "." {
		return nil
	}

	curr := ""
	if path.IsAbs(dir) {
		curr = "/"
	}
	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		curr = path.Join(curr, segment)

		fi, err := c.Stat(curr)
		switch {
		case err == nil:
			if !fi.IsDir() {
				return errors.NewAccessError(curr, errors.New("not a directory"))
			}
		case os.IsNotExist(err):
			if err := c.Mkdir(curr); err != nil {
				return errors.NewAccessError(curr, err)
			}
		default:
			return errors.NewAccessError(curr, err)
		}
	}
	return nil
}

// RemoveAll deletes p and, if it's a directory, everything inside it. It's
// not an error if p doesn't exist.
func RemoveAll(c Client, p string) error {
	fi, err := c.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		if err := c.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	children, err := c.ReadDir(p)
	if err != nil {
		return errors.WithContext(err, "read dir")
	}

	for _, child := range children {
		if child.Name() == "." || child.Name() == ".." {
			continue
		}
		if err := RemoveAll(c, path.Join(p, child.Name())); err != nil {
			return err
		}
	}

	if err := c.RemoveDirectory(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsConnectionLost returns whether err means that the connection can't be
// used anymore, so that retrying other operations on it is pointless.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, sftp.ErrSSHFxConnectionLost) ||
		errors.Is(err, sftp.ErrSSHFxNoConnection) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	return errors.Classify(err) == errors.ConnectionTimeout
}
