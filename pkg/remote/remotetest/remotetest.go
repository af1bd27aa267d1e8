// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/remote"
)

// The kinds of operations recorded by Client.
const (
	OpMkdir           = "mkdir"
	OpStat            = "stat"
	OpReadDir         = "readdir"
	OpPut             = "put"
	OpRemove          = "remove"
	OpRemoveDirectory = "rmdir"
)

// Op is a single call made to a Client.
type Op struct {
	Kind string
	Path string
}

func (op Op) String() string {
	return fmt.Sprintf("%s %s", op.Kind, op.Path)
}

// Client is a remote.Client that stores files in an afero.MemMapFs. It
// records every call so that tests can assert on what was sent to the
// server.
type Client struct {
	FS afero.Fs

	lock   sync.Mutex
	ops    []Op
	errs   map[Op]error
	closed bool
}

// NewClient returns a Client with an empty filesystem containing only the
// root directory.
func NewClient() *Client {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/", 0755); err != nil {
		panic(err)
	}
	return &Client{FS: fs, errs: map[Op]error{}}
}

// FailOn makes calls of the given kind on p return err.
func (c *Client) FailOn(kind, p string, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.errs[Op{kind, p}] = err
}

// Ops returns all calls made so far.
func (c *Client) Ops() []Op {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]Op(nil), c.ops...)
}

// Mutations returns the calls that changed the remote filesystem, in the
// order they were made.
func (c *Client) Mutations() (ops []Op) {
	for _, op := range c.Ops() {
		if op.Kind != OpStat && op.Kind != OpReadDir {
			ops = append(ops, op)
		}
	}
	return ops
}

// ResetOps forgets the recorded calls.
func (c *Client) ResetOps() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ops = nil
}

// Closed returns whether Close was called.
func (c *Client) Closed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// WriteFile creates a file on the fake server with the given modification
// time, along with its parent directories.
func (c *Client) WriteFile(p, contents string, modTime time.Time) {
	if err := c.FS.MkdirAll(path.Dir(p), 0755); err != nil {
		panic(err)
	}
	if err := afero.WriteFile(c.FS, p, []byte(contents), 0644); err != nil {
		panic(err)
	}
	if err := c.FS.Chtimes(p, modTime, modTime); err != nil {
		panic(err)
	}
}

func (c *Client) record(kind, p string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	op := Op{kind, p}
	c.ops = append(c.ops, op)
	if c.closed {
		return io.EOF
	}
	return c.errs[op]
}

func (c *Client) Mkdir(p string) error {
	if err := c.record(OpMkdir, p); err != nil {
		return err
	}

	if err := c.checkParent(p); err != nil {
		return err
	}

	if _, err := c.FS.Stat(p); err == nil {
		return &os.PathError{Op: "mkdir", Path: p, Err: os.ErrExist}
	}
	return c.FS.Mkdir(p, 0755)
}

func (c *Client) Stat(p string) (os.FileInfo, error) {
	if err := c.record(OpStat, p); err != nil {
		return nil, err
	}
	return c.FS.Stat(p)
}

func (c *Client) ReadDir(p string) ([]os.FileInfo, error) {
	if err := c.record(OpReadDir, p); err != nil {
		return nil, err
	}
	return afero.ReadDir(c.FS, p)
}

func (c *Client) Put(r io.Reader, p string) error {
	if err := c.record(OpPut, p); err != nil {
		return err
	}

	if err := c.checkParent(p); err != nil {
		return err
	}

	f, err := c.FS.Create(p)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func (c *Client) Remove(p string) error {
	if err := c.record(OpRemove, p); err != nil {
		return err
	}
	return c.remove(p)
}

func (c *Client) RemoveDirectory(p string) error {
	if err := c.record(OpRemoveDirectory, p); err != nil {
		return err
	}

	fi, err := c.FS.Stat(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &os.PathError{Op: "rmdir", Path: p, Err: fmt.Errorf("not a directory")}
	}
	return c.remove(p)
}

func (c *Client) remove(p string) error {
	fi, err := c.FS.Stat(p)
	if err != nil {
		return err
	}

	if fi.IsDir() {
		children, err := afero.ReadDir(c.FS, p)
		if err != nil {
			return err
		}
		if len(children) != 0 {
			return &os.PathError{Op: "remove", Path: p, Err: fmt.Errorf("directory not empty")}
		}
	}
	return c.FS.Remove(p)
}

func (c *Client) checkParent(p string) error {
	fi, err := c.FS.Stat(path.Dir(p))
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &os.PathError{Op: "open", Path: p, Err: fmt.Errorf("parent is not a directory")}
	}
	return nil
}

func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.closed = true
	return nil
}

// Dialer is a remote.Dialer that hands out Clients sharing one fake
// filesystem.
type Dialer struct {
	// FS is the filesystem shared by every connection.
	FS afero.Fs

	// Check is called with the config of every dial. If it returns an error,
	// the dial fails with it.
	Check func(config.Sync) error

	lock    sync.Mutex
	clients []*Client
	errs    []error
	block   chan struct{}
}

// NewDialer returns a Dialer with an empty remote filesystem.
func NewDialer() *Dialer {
	return &Dialer{FS: NewClient().FS}
}

// FailNext makes the next len(errs) dials fail with the given errors, in
// order.
func (d *Dialer) FailNext(errs ...error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.errs = append(d.errs, errs...)
}

// Block makes dials wait until the returned function is called.
func (d *Dialer) Block() (unblock func()) {
	d.lock.Lock()
	defer d.lock.Unlock()
	block := make(chan struct{})
	d.block = block
	return func() { close(block) }
}

// Dial implements remote.Dialer.
func (d *Dialer) Dial(ctx context.Context, cfg config.Sync) (remote.Client, error) {
	d.lock.Lock()
	block := d.block
	d.lock.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	client := &Client{FS: d.FS, errs: map[Op]error{}}
	d.clients = append(d.clients, client)

	if len(d.errs) != 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}

	if d.Check != nil {
		if err := d.Check(cfg); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// WriteFile creates a file on the shared filesystem. See Client.WriteFile.
func (d *Dialer) WriteFile(p, contents string, modTime time.Time) {
	(&Client{FS: d.FS}).WriteFile(p, contents, modTime)
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.clients)
}

// Last returns the client created by the most recent dial.
func (d *Dialer) Last() *Client {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

// Mutations returns the mutating calls made across every connection.
func (d *Dialer) Mutations() (ops []Op) {
	d.lock.Lock()
	clients := append([]*Client(nil), d.clients...)
	d.lock.Unlock()

	for _, c := range clients {
		ops = append(ops, c.Mutations()...)
	}
	return ops
}
