package testconn

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/ftpsync/cmd/util"
	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/orchestrator"
	"github.com/sidkik/ftpsync/pkg/remote"
)

// Mocked out for unit testing.
var (
	stdout    io.Writer     = os.Stdout
	dialer    remote.Dialer = remote.SFTPDialer{}
	loadStore               = func() (config.Store, error) { return util.LoadStore() }
)

// New creates a new `test-connection` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the SFTP server accepts the configured settings",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(context.Background()); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(ctx context.Context) error {
	store, err := loadStore()
	if err != nil {
		return err
	}

	surface := &reportingSurface{}
	orch := orchestrator.New(orchestrator.Options{
		Store:    store,
		Dialer:   dialer,
		Surface:  surface,
		Prompter: util.NewTerminalPrompter(),
	})
	if err := orch.TestConnection(ctx); err != nil {
		return errors.NewFriendlyError("%s\n%s", surface.code.Message(), err)
	}

	fmt.Fprintln(stdout, surface.info)
	return nil
}

// reportingSurface remembers the result of the connection test.
type reportingSurface struct {
	code errors.Code
	info string
}

func (s *reportingSurface) SetState(orchestrator.State) {}

func (s *reportingSurface) Error(code errors.Code, _ error) {
	s.code = code
}

func (s *reportingSurface) Info(msg string) {
	s.info = msg
}
