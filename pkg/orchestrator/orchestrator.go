// Package orchestrator drives the lifecycle of a sync: it connects, mirrors
// the local tree with an initial sync, watches for changes, and runs sync
// passes until it's stopped. Connection failures go through a recovery
// protocol that asks the user to correct the responsible settings.
package orchestrator

import (
	"context"
	"strings"
	goSync "sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/fswatch"
	"github.com/sidkik/ftpsync/pkg/remote"
	"github.com/sidkik/ftpsync/pkg/sync"
)

var fs = afero.NewOsFs()

// maxRecoveryAttempts bounds how many times a single operation is retried
// after the user corrects the settings.
const maxRecoveryAttempts = 5

// State is the lifecycle state of the orchestrator.
type State int

const (
	Idle State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	}
	return "unknown"
}

// Surface displays the sync status to the user. Its methods are called with
// internal locks held, so they must not call back into the Orchestrator.
type Surface interface {
	SetState(State)
	Error(code errors.Code, detail error)
	Info(msg string)
}

// Prompter asks the user for a setting. It returns false if the user
// declined to answer.
type Prompter interface {
	Prompt(field config.Field, current string) (string, bool)
}

// Watcher is a source of sync triggers for local changes.
type Watcher interface {
	Triggers() <-chan struct{}
	Close() error
}

// WatchFunc starts recording the changes under root into ledger.
type WatchFunc func(root string, ignore *sync.IgnoreList, ledger *sync.Ledger) (Watcher, error)

func watchFiles(root string, ignore *sync.IgnoreList, ledger *sync.Ledger) (Watcher, error) {
	w, err := fswatch.Watch(root, ignore, ledger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Options configures an Orchestrator. Store, Dialer, Surface and Prompter
// are required.
type Options struct {
	Store    config.Store
	Dialer   remote.Dialer
	Surface  Surface
	Prompter Prompter

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Log defaults to the standard logger.
	Log logrus.FieldLogger

	// Watch defaults to watching the local filesystem.
	Watch WatchFunc
}

// Orchestrator owns the session, the ledger and the watcher of a sync, and
// makes sure that only one sync is started at a time.
type Orchestrator struct {
	store    config.Store
	surface  Surface
	prompter Prompter
	clock    clockwork.Clock
	log      logrus.FieldLogger
	watch    WatchFunc

	session    *remote.Session
	ledger     *sync.Ledger
	reconciler *sync.Reconciler

	// trigger requests a sync pass from the run loop.
	trigger chan struct{}

	lock    goSync.Mutex
	state   State
	watcher Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an idle Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Watch == nil {
		opts.Watch = watchFiles
	}

	session := remote.NewSession(opts.Store, opts.Dialer)
	ledger := sync.NewLedger()
	return &Orchestrator{
		store:      opts.Store,
		surface:    opts.Surface,
		prompter:   opts.Prompter,
		clock:      opts.Clock,
		log:        opts.Log,
		watch:      opts.Watch,
		session:    session,
		ledger:     ledger,
		reconciler: sync.NewReconciler(session, opts.Store, ledger, opts.Log),
		trigger:    make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.state
}

// Start connects to the server, makes the remote tree mirror the local tree,
// and starts syncing changes in the background. It fails with
// errors.ErrNotIdle if the sync was already started.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.start(ctx, errors.SyncStartFailed)
}

func (o *Orchestrator) start(ctx context.Context, failCode errors.Code) error {
	o.lock.Lock()
	if o.state != Idle {
		o.lock.Unlock()
		return errors.ErrNotIdle
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.setState(Starting)
	o.lock.Unlock()

	cfg, err := o.prepare(ctx)
	if err == nil {
		err = o.goRunning(ctx, cfg)
	}
	if err != nil {
		o.teardown()
		o.reportStartFailure(ctx, err, failCode)
		return err
	}

	o.log.WithField("root", cfg.LocalRoot).WithField("remote", cfg.RemotePath).
		Info("Sync started")
	return nil
}

// prepare runs everything that has to succeed before the sync is running.
func (o *Orchestrator) prepare(ctx context.Context) (config.Sync, error) {
	cfg, err := o.ensureSettings(ctx)
	if err != nil {
		return config.Sync{}, err
	}

	if exists, _ := afero.DirExists(fs, cfg.LocalRoot); cfg.LocalRoot == "" || !exists {
		return config.Sync{}, errors.WithCode(errors.FileNotFound{Path: cfg.LocalRoot},
			errors.WorkspaceMissing)
	}

	err = o.withRecovery(ctx, func() error {
		res, err := o.reconciler.InitialSync(ctx)
		if err != nil {
			return err
		}
		o.log.WithField("applied", res.Applied).WithField("failed", res.Failed).
			WithField("skipped", res.Skipped).Info("Initial sync finished")
		return nil
	})
	if err != nil {
		return config.Sync{}, err
	}

	// Reload in case the recovery changed any settings.
	cfg, err = o.store.Load()
	if err != nil {
		return config.Sync{}, errors.WithContext(err, "load config")
	}
	return cfg, o.attachWatcher(cfg)
}

func (o *Orchestrator) attachWatcher(cfg config.Sync) error {
	watcher, err := o.watch(cfg.LocalRoot, sync.NewIgnoreList(cfg.Ignore...), o.ledger)
	if err != nil {
		if !strings.Contains(errors.RootCause(err).Error(), "too many open files") {
			return errors.WithContext(err, "watch files")
		}

		o.log.Warnf("Too many files to automatically watch for changes. "+
			"The whole tree will be compared every %s instead.", cfg.Interval())
		return nil
	}

	o.lock.Lock()
	o.watcher = watcher
	o.lock.Unlock()
	return nil
}

// goRunning transitions to Running and starts the run loop.
func (o *Orchestrator) goRunning(ctx context.Context, cfg config.Sync) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	// Stop was called while we were starting.
	if err := ctx.Err(); err != nil {
		return err
	}

	var triggers <-chan struct{}
	if o.watcher != nil {
		triggers = o.watcher.Triggers()
	}

	o.done = make(chan struct{})
	go o.run(ctx, cfg, triggers, o.done)
	o.setState(Running)
	return nil
}

func (o *Orchestrator) reportStartFailure(ctx context.Context, err error, failCode errors.Code) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		o.log.Info("Sync start cancelled")
		return
	}

	o.log.WithError(err).Error("Failed to start sync")
	switch code := errors.Classify(err); code {
	case errors.WorkspaceMissing, errors.IncompleteSettings:
		o.surface.Error(code, err)
	default:
		o.surface.Error(failCode, err)
	}
}

// Stop stops syncing. It's safe to call Stop at any time, including when
// the sync isn't running. If a start is in progress, it's cancelled.
func (o *Orchestrator) Stop() {
	o.lock.Lock()
	switch o.state {
	case Idle:
		o.lock.Unlock()
		return
	case Starting:
		// The start cleans up after itself once it notices the
		// cancellation.
		o.cancel()
		o.lock.Unlock()
		return
	}
	o.lock.Unlock()

	if done := o.teardown(); done != nil {
		<-done
	}
	o.log.Info("Sync stopped")
}

// teardown releases everything held by the sync, and returns to Idle. It
// returns the run loop's done channel, if a run loop was started.
func (o *Orchestrator) teardown() (done chan struct{}) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}

	if o.watcher != nil {
		if err := o.watcher.Close(); err != nil {
			o.log.WithError(err).Warn("Failed to close file watcher")
		}
		o.watcher = nil
	}

	o.session.Release()
	o.ledger.Clear()

	// Drop any pending request so that it doesn't leak into the next start.
	select {
	case <-o.trigger:
	default:
	}

	done = o.done
	o.done = nil
	o.setState(Idle)
	return done
}

// ConfigChanged should be called after the configuration is modified. A
// running sync is restarted with the new settings. Otherwise, the new
// settings are tested by connecting to the server.
func (o *Orchestrator) ConfigChanged(ctx context.Context) error {
	switch o.State() {
	case Running:
		o.log.Info("Configuration changed. Restarting sync.")
		o.Stop()
		return o.start(ctx, errors.SyncRestartFailed)
	case Idle:
		return o.TestConnection(ctx)
	}

	// A start in progress loads the config before each attempt, so it
	// already picks up the change.
	return nil
}

// TestConnection connects to the server with the current settings, and
// reports the result to the surface.
func (o *Orchestrator) TestConnection(ctx context.Context) error {
	cfg, err := o.store.Load()
	if err != nil {
		o.surface.Error(errors.Unknown, err)
		return errors.WithContext(err, "load config")
	}

	if err := cfg.Validate(); err != nil {
		o.surface.Error(errors.Classify(err), err)
		return err
	}

	o.session.Release()
	_, err = o.session.Acquire(ctx)
	o.session.Release()
	if err != nil {
		o.surface.Error(errors.Classify(err), err)
		return err
	}

	o.surface.Info("Connected to " + cfg.Address())
	return nil
}

// Trigger requests a sync pass. It never blocks, and requests made while
// one is already pending are combined.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) run(ctx context.Context, cfg config.Sync,
	triggers <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := o.clock.NewTicker(cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		case <-triggers:
		case <-o.trigger:
		}

		o.pass(ctx, triggers == nil)
	}
}

// pass runs a single sync pass, and schedules another one right away if
// there's still work that could succeed.
func (o *Orchestrator) pass(ctx context.Context, polling bool) {
	// Without a watcher, nothing records changes into the ledger, so the
	// whole tree is compared instead.
	syncFn := o.reconciler.SyncPass
	if polling {
		syncFn = o.reconciler.InitialSync
	}

	var res sync.Result
	err := o.withRecovery(ctx, func() (err error) {
		res, err = syncFn(ctx)
		return err
	})

	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, errors.ErrPassInProgress):
		o.log.Debug("Skipping sync pass because another one is in progress")
		return
	case err != nil:
		o.log.WithError(err).Error("Sync failed. Pending changes will be retried.")
		o.surface.Error(errors.SyncError, err)
		return
	}

	if res.Applied != 0 || res.Failed != 0 || res.Skipped != 0 {
		o.log.WithField("applied", res.Applied).WithField("failed", res.Failed).
			WithField("skipped", res.Skipped).WithField("remaining", res.Remaining).
			Info("Synced changes")
	}

	if res.Remaining > 0 && res.Progressed {
		o.Trigger()
	}
}

// setState must be called with the lock held.
func (o *Orchestrator) setState(state State) {
	if o.state == state {
		return
	}
	o.log.WithField("state", state).Debug("Sync state changed")
	o.state = state
	o.surface.SetState(state)
}
