package remote

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
)

// SFTPDialer connects to servers with SFTP over SSH, authenticating with a
// password.
type SFTPDialer struct{}

// Dial connects to the server in cfg. The returned error is tagged with the
// Code describing why the connection failed.
func (SFTPDialer) Dial(ctx context.Context, cfg config.Sync) (Client, error) {
	hostKeyCallback, err := getHostKeyCallback(cfg)
	if err != nil {
		return nil, errors.WithContext(err, "load known hosts")
	}

	sshConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
			// Some servers only offer keyboard-interactive authentication, and
			// ask for the password through it.
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = cfg.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout(),
	}

	addr := cfg.Address()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		code := errors.Classify(err)
		if code != errors.ConnectionTimeout {
			code = errors.HostConnectionFailed
		}
		return nil, errors.WithCode(errors.WithContext(err, "dial"), code)
	}

	// Bound the handshake so that a server that accepts the TCP connection
	// but never speaks SSH doesn't hang the caller.
	if err := conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout())); err != nil {
		conn.Close()
		return nil, errors.WithContext(err, "set deadline")
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, errors.WithCode(errors.WithContext(err, "ssh handshake"),
			errors.Classify(err))
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, errors.WithContext(err, "clear deadline")
	}

	sshClient := ssh.NewClient(sshConn, chans, reqs)
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, errors.WithContext(err, "start sftp subsystem")
	}

	log.WithField("address", addr).Debug("Connected to SFTP server")
	return &client{ssh: sshClient, sftp: sftpClient}, nil
}

func getHostKeyCallback(cfg config.Sync) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(cfg.KnownHostsFile)
}

type client struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (c *client) Mkdir(path string) error {
	return c.sftp.Mkdir(path)
}

func (c *client) Stat(path string) (os.FileInfo, error) {
	return c.sftp.Stat(path)
}

func (c *client) ReadDir(path string) ([]os.FileInfo, error) {
	return c.sftp.ReadDir(path)
}

func (c *client) Put(r io.Reader, path string) error {
	f, err := c.sftp.Create(path)
	if err != nil {
		return errors.WithContext(err, "create")
	}

	if _, err := f.ReadFrom(r); err != nil {
		f.Close()
		return errors.WithContext(err, "write")
	}
	return f.Close()
}

func (c *client) Remove(path string) error {
	return c.sftp.Remove(path)
}

func (c *client) RemoveDirectory(path string) error {
	return c.sftp.RemoveDirectory(path)
}

func (c *client) Close() error {
	sftpErr := c.sftp.Close()
	sshErr := c.ssh.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}
