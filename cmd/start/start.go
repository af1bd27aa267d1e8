package start

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/ftpsync/cmd/util"
	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/orchestrator"
	"github.com/sidkik/ftpsync/pkg/remote"
)

// New creates a new `start` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "start [local-root]",
		Short: "Mirror a local directory to the SFTP server",
		Long: "Mirror a local directory to the SFTP server.\n\n" +
			"The remote directory is first made to match the local directory. " +
			"Then, local changes are uploaded as they happen until ftpsync is " +
			"interrupted. If local-root isn't specified, the directory in the " +
			"config is used.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			var localRoot string
			if len(args) == 1 {
				localRoot = args[0]
			}

			if err := run(localRoot); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(localRoot string) error {
	fileStore, err := util.LoadStore()
	if err != nil {
		return err
	}

	var store config.Store = fileStore
	if localRoot != "" {
		abs, err := filepath.Abs(localRoot)
		if err != nil {
			return errors.WithContext(err, "get absolute path")
		}
		store = rootOverride{Store: fileStore, root: abs}
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:    store,
		Dialer:   remote.SFTPDialer{},
		Surface:  newTerminalSurface(os.Stdout),
		Prompter: util.NewTerminalPrompter(),
		Log:      log.StandardLogger(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return errors.NewFriendlyError("Failed to start syncing.\n%s", err)
	}
	defer orch.Stop()

	configChanges, stopWatching, err := fileStore.Watch()
	if err != nil {
		log.WithError(err).Warn("Failed to watch the config file for changes. " +
			"Restart ftpsync to apply new settings.")
	} else {
		defer stopWatching()
	}

	return waitForChanges(ctx, orch, configChanges)
}

// waitForChanges applies config changes until ctx is cancelled.
func waitForChanges(ctx context.Context, orch configListener, configChanges <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping sync")
			return nil
		case <-configChanges:
			if err := orch.ConfigChanged(ctx); err != nil {
				log.WithError(err).Warn("Failed to apply the new config")
			}
		}
	}
}

type configListener interface {
	ConfigChanged(ctx context.Context) error
}

// rootOverride replaces the local root in the config with the one passed on
// the command line. The override isn't saved.
type rootOverride struct {
	config.Store
	root string
}

func (s rootOverride) Load() (config.Sync, error) {
	cfg, err := s.Store.Load()
	if err != nil {
		return config.Sync{}, err
	}
	cfg.LocalRoot = s.root
	return cfg, nil
}

func (s rootOverride) Save(cfg config.Sync) error {
	curr, err := s.Store.Load()
	if err != nil {
		return err
	}
	cfg.LocalRoot = curr.LocalRoot
	return s.Store.Save(cfg)
}
