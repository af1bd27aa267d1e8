package sync

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/remote"
)

// Session is the source of connections to the server. It's implemented by
// remote.Session.
type Session interface {
	Acquire(ctx context.Context) (remote.Client, error)
	Release()
}

// Reconciler applies local changes to the server.
type Reconciler struct {
	session Session
	store   config.Store
	ledger  *Ledger
	log     logrus.FieldLogger

	// running is set while the initial sync or a pass is in progress.
	running atomic.Bool
}

// Result summarizes a sync.
type Result struct {
	// Applied is the number of changes that were made on the server.
	Applied int

	// Failed is the number of changes that couldn't be made. They stay in
	// the ledger.
	Failed int

	// Skipped is the number of changes that were dropped without touching
	// the server, such as files above the upload limit.
	Skipped int

	// Remaining is the size of the ledger when the pass finished.
	Remaining int

	// Progressed is set if the pass applied or dropped anything, or if new
	// changes were recorded while it ran. A pass that didn't progress won't
	// do any better if it's retried immediately.
	Progressed bool
}

// NewReconciler creates a Reconciler that syncs the changes in ledger.
func NewReconciler(session Session, store config.Store, ledger *Ledger,
	log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		session: session,
		store:   store,
		ledger:  ledger,
		log:     log,
	}
}

// InitialSync makes the remote tree mirror the local tree. Failures to
// create or list the remote base path abort the sync. Failures for
// individual entries are logged, and the sync continues with the rest.
func (r *Reconciler) InitialSync(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, errors.ErrPassInProgress
	}
	defer r.running.Store(false)

	cfg, err := r.store.Load()
	if err != nil {
		return Result{}, errors.WithContext(err, "load config")
	}

	client, err := r.session.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := remote.MkdirAll(client, cfg.RemotePath); err != nil {
		return Result{}, errors.WithContext(err, "create remote base path")
	}

	ignore := NewIgnoreList(cfg.Ignore...)
	remoteTree, err := ListRemote(ctx, client, cfg.RemotePath, ignore)
	if err != nil {
		return Result{}, errors.WithContext(err, "list remote")
	}
	localTree, err := ListLocal(cfg.LocalRoot, ignore)
	if err != nil {
		return Result{}, err
	}

	plan := localTree.Diff(remoteTree)
	if plan.Empty() {
		r.log.Debug("Remote files are up to date")
		return Result{}, nil
	}
	r.log.WithFields(logrus.Fields{
		"delete": len(plan.Delete),
		"mkdir":  len(plan.Mkdir),
		"upload": len(plan.Upload),
	}).Info("Computed initial sync")

	var res Result
	apply := func(p RelPath, op string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		switch {
		case err == nil:
			res.Applied++
		case errSkipped(err):
			res.Skipped++
		case remote.IsConnectionLost(err):
			r.session.Release()
			return errors.WithContext(err, fmt.Sprintf("%s %s", op, p))
		default:
			res.Failed++
			r.log.WithError(err).WithField("path", p).Warnf("Failed to %s", op)
		}
		return nil
	}

	for _, p := range plan.Delete {
		p := p
		err := apply(p, "delete", func() error {
			return remote.RemoveAll(client, JoinRemote(cfg.RemotePath, p))
		})
		if err != nil {
			return res, err
		}
	}

	for _, p := range plan.Mkdir {
		p := p
		err := apply(p, "create directory", func() error {
			return client.Mkdir(JoinRemote(cfg.RemotePath, p))
		})
		if err != nil {
			return res, err
		}
	}

	for _, p := range plan.Upload {
		p := p
		err := apply(p, "upload", func() error {
			return r.upload(client, cfg, p, localTree[p].Size)
		})
		if err != nil {
			return res, err
		}
	}

	res.Progressed = res.Applied+res.Skipped > 0
	return res, nil
}

// SyncPass applies the changes in the ledger. Deletions are applied first
// (deepest path first), then directory creations (shallowest first), then
// uploads. Each change is removed from the ledger once it's applied.
//
// Failures for individual changes are logged, and the change is left in
// the ledger to be retried by a later pass. If the connection is lost, the
// pass is aborted and the error is returned.
//
// If another pass is already running, SyncPass returns ErrPassInProgress
// without doing anything. The running pass's caller is expected to check the
// ledger again when it finishes.
func (r *Reconciler) SyncPass(ctx context.Context) (res Result, err error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, errors.ErrPassInProgress
	}
	defer r.running.Store(false)

	startSeq := r.ledger.Seq()
	changes := r.ledger.Changes()
	if len(changes) == 0 {
		return Result{}, nil
	}

	defer func() {
		res.Remaining = r.ledger.Len()
		res.Progressed = res.Applied+res.Skipped > 0 || r.ledger.Seq() != startSeq
	}()

	cfg, err := r.store.Load()
	if err != nil {
		return res, errors.WithContext(err, "load config")
	}

	client, err := r.session.Acquire(ctx)
	if err != nil {
		return res, err
	}

	var deletes, mkdirs, uploads []RelPath
	byPath := map[RelPath]Change{}
	for _, change := range changes {
		byPath[change.Path] = change
		switch {
		case change.Kind.IsDelete():
			deletes = append(deletes, change.Path)
		case change.Kind == AddDirectory:
			mkdirs = append(mkdirs, change.Path)
		case change.Kind == Add, change.Kind == Modify:
			uploads = append(uploads, change.Path)
		}
	}
	deepestFirst(deletes)
	shallowestFirst(mkdirs)

	apply := func(p RelPath, op string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		change := byPath[p]
		err := fn()
		switch {
		case err == nil:
			res.Applied++
			r.ledger.Resolve(change)
			r.log.WithField("path", p).Debugf("Applied %s", change.Kind)
		case errSkipped(err):
			res.Skipped++
			r.ledger.Resolve(change)
		case remote.IsConnectionLost(err):
			res.Failed++
			r.session.Release()
			return errors.WithContext(err, fmt.Sprintf("%s %s", op, p))
		default:
			res.Failed++
			r.log.WithError(err).WithField("path", p).Warnf("Failed to %s. Will retry.", op)
		}
		return nil
	}

	for _, p := range deletes {
		p := p
		err := apply(p, "delete", func() error {
			return remote.RemoveAll(client, JoinRemote(cfg.RemotePath, p))
		})
		if err != nil {
			return res, err
		}
	}

	for _, p := range mkdirs {
		p := p
		err := apply(p, "create directory", func() error {
			return remote.MkdirAll(client, JoinRemote(cfg.RemotePath, p))
		})
		if err != nil {
			return res, err
		}
	}

	for _, p := range uploads {
		p := p
		err := apply(p, "upload", func() error {
			return r.uploadChange(client, cfg, p)
		})
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// Running returns whether a sync is in progress.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// uploadChange uploads the current contents of p. The file is stat'ed again
// because it may have changed since the change was recorded.
func (r *Reconciler) uploadChange(client remote.Client, cfg config.Sync, p RelPath) error {
	fi, err := fs.Stat(JoinLocal(cfg.LocalRoot, p))
	if err != nil {
		if os.IsNotExist(err) {
			// The file was removed before we got to it. The removal will be
			// recorded separately.
			r.log.WithField("path", p).Debug("File no longer exists locally. Skipping upload.")
			return skippedError{}
		}
		return errors.WithContext(err, "stat")
	}

	if fi.IsDir() {
		return remote.MkdirAll(client, JoinRemote(cfg.RemotePath, p))
	}
	return r.upload(client, cfg, p, fi.Size())
}

func (r *Reconciler) upload(client remote.Client, cfg config.Sync, p RelPath, size int64) error {
	if size > cfg.MaxUploadSize {
		r.log.WithFields(logrus.Fields{
			"path":  p,
			"size":  humanize.IBytes(uint64(size)),
			"limit": humanize.IBytes(uint64(cfg.MaxUploadSize)),
		}).Warn("File is larger than the maximum upload size. Skipping.")
		return skippedError{}
	}

	f, err := fs.Open(JoinLocal(cfg.LocalRoot, p))
	if err != nil {
		if os.IsNotExist(err) {
			return skippedError{}
		}
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	if err := client.Put(f, JoinRemote(cfg.RemotePath, p)); err != nil {
		return errors.WithContext(err, "put")
	}
	return nil
}

// skippedError is returned by operations that decided not to touch the
// server. The change is dropped from the ledger.
type skippedError struct{}

func (skippedError) Error() string {
	return "skipped"
}

func errSkipped(err error) bool {
	_, ok := err.(skippedError)
	return ok
}
