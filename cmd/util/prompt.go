package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/sidkik/ftpsync/pkg/config"
)

var fieldHelp = map[config.Field]string{
	config.FieldHost:          "Enter the host name or IP address of the SFTP server.",
	config.FieldPort:          "Enter the port the SFTP server listens on.",
	config.FieldUser:          "Enter the user to log in to the SFTP server as.",
	config.FieldPassword:      "Enter the password for the SFTP user.",
	config.FieldRemotePath:    "Enter the directory on the server that mirrors the local files.",
	config.FieldInterval:      "Enter how often failed changes are retried, in seconds.",
	config.FieldMaxUploadSize: "Enter the size above which files aren't uploaded (e.g. 20 MiB).",
}

// Prompter asks for settings on the terminal. Concurrent prompts are asked
// one at a time.
type Prompter struct {
	lock sync.Mutex

	in  *bufio.Reader
	out io.Writer

	// readSecret reads a line without echoing it. It's nil if the input
	// isn't a terminal.
	readSecret func() (string, error)
}

// NewPrompter creates a Prompter that reads answers from in.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// NewTerminalPrompter creates a Prompter for stdin. Secrets aren't echoed
// when stdin is a terminal.
func NewTerminalPrompter() *Prompter {
	p := NewPrompter(os.Stdin, os.Stdout)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.readSecret = func() (string, error) {
			secret, err := term.ReadPassword(fd)
			fmt.Fprintln(p.out)
			return string(secret), err
		}
	}
	return p
}

// Prompt implements orchestrator.Prompter. Reaching the end of the input
// counts as declining.
func (p *Prompter) Prompt(field config.Field, current string) (string, bool) {
	resp, err := p.PromptField(field, current)
	if err != nil {
		return "", false
	}
	return resp, true
}

// PromptField asks for field. The current value is offered as a choice,
// unless the field is a secret.
func (p *Prompter) PromptField(field config.Field, current string) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if field.Secret() {
		return p.promptSecret(fieldHelp[field], field.Label())
	}
	return p.promptUser(fieldHelp[field], field.Label(), current)
}

func (p *Prompter) promptSecret(helpString, prompt string) (string, error) {
	defer fmt.Fprintln(p.out)

	fmt.Fprintln(p.out, helpString+"\n"+prompt+":")
	fmt.Fprint(p.out, "Please enter manually: ")
	if p.readSecret != nil {
		return p.readSecret()
	}
	return p.readLine()
}

func (p *Prompter) promptUser(helpString, prompt, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(p.out)

	fmt.Fprintln(p.out, helpString+"\n"+prompt+":")

	if currAnswer != "" {
		options := []string{currAnswer, "(Enter manually)"}
		fmt.Fprintln(p.out)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (current)", option)
			}
			fmt.Fprintf(p.out, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(p.out)

		for {
			fmt.Fprintf(p.out, "Please choose one [1-%d]: ", len(options))
			choiceStr, err := p.readLine()
			if err != nil {
				return "", err
			}

			// Default to the current answer if the user doesn't enter
			// anything.
			if choiceStr == "" || choiceStr == "1" {
				return currAnswer, nil
			}

			if choice, err := strconv.Atoi(choiceStr); err == nil && choice == len(options) {
				break
			}
		}
	}

	fmt.Fprint(p.out, "Please enter manually: ")
	return p.readLine()
}

func (p *Prompter) readLine() (string, error) {
	resp, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || resp == "") {
		return "", err
	}
	return strings.TrimRight(resp, "\r\n"), nil
}
