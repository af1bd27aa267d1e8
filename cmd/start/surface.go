package start

import (
	"fmt"
	"io"

	"github.com/buger/goterm"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/orchestrator"
)

// terminalSurface prints the sync status as colored lines.
type terminalSurface struct {
	out io.Writer
}

func newTerminalSurface(out io.Writer) terminalSurface {
	return terminalSurface{out: out}
}

func (s terminalSurface) SetState(state orchestrator.State) {
	fmt.Fprintln(s.out, stateString(state))
}

func (s terminalSurface) Error(code errors.Code, detail error) {
	log.WithError(detail).WithField("code", code).Debug("Sync error")
	msg := code.Message()
	if detail != nil {
		msg += " (" + detail.Error() + ")"
	}
	fmt.Fprintln(s.out, goterm.Color(msg, goterm.RED))
}

func (s terminalSurface) Info(msg string) {
	fmt.Fprintln(s.out, msg)
}

func stateString(state orchestrator.State) string {
	color := goterm.BLACK
	msg := "Sync " + state.String()
	switch state {
	case orchestrator.Idle:
		color = goterm.YELLOW
		msg = "Sync stopped"
	case orchestrator.Starting:
		color = goterm.YELLOW
		msg = "Starting sync"
	case orchestrator.Running:
		color = goterm.GREEN
		msg = "Syncing"
	}
	return goterm.Color(msg, color)
}
