package config

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sidkik/ftpsync/pkg/errors"
)

const (
	// InitialSyncConfigVersion is the first version of the ftpsync config.
	// Config files that do not specify a version default to this version.
	InitialSyncConfigVersion = "v1alpha1"

	// SupportedSyncConfigVersion is the config version understood by this
	// binary.
	SupportedSyncConfigVersion = "v1alpha1"

	DefaultPort           = 22
	DefaultRemotePath     = "/"
	DefaultInterval       = 10 * time.Second
	DefaultMaxUploadSize  = 20 * 1024 * 1024
	DefaultConnectTimeout = 10 * time.Second
)

// Sync is the configuration of a single local root mirrored to a remote
// base path.
type Sync struct {
	Version string `json:"version,omitempty"`

	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`

	// RemotePath is the POSIX path on the server that mirrors LocalRoot.
	RemotePath string `json:"remotePath,omitempty"`

	// LocalRoot is the directory to mirror. It's usually passed on the
	// command line instead.
	LocalRoot string `json:"localRoot,omitempty"`

	// IntervalSeconds is how often pending changes are retried when nothing
	// else triggers a sync.
	IntervalSeconds int `json:"interval,omitempty"`

	// MaxUploadSize is the size in bytes above which files are never
	// uploaded.
	MaxUploadSize int64 `json:"maxUploadSize,omitempty"`

	ConnectTimeoutSeconds int `json:"connectTimeout,omitempty"`

	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string `json:"knownHostsFile,omitempty"`

	// Ignore holds extra gitignore-style patterns excluded from syncing.
	Ignore []string `json:"ignore,omitempty"`
}

func (c Sync) getVersion() string {
	return c.Version
}

// WithDefaults fills in the optional fields that weren't set.
func (c Sync) WithDefaults() Sync {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RemotePath == "" {
		c.RemotePath = DefaultRemotePath
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = int(DefaultInterval / time.Second)
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = int(DefaultConnectTimeout / time.Second)
	}
	c.RemotePath = CleanRemotePath(c.RemotePath)
	return c
}

// Interval returns the retry interval.
func (c Sync) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return DefaultInterval
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ConnectTimeout returns the timeout for establishing the SSH connection.
func (c Sync) ConnectTimeout() time.Duration {
	if c.ConnectTimeoutSeconds <= 0 {
		return DefaultConnectTimeout
	}
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// Address returns the host:port to dial.
func (c Sync) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return c.Host + ":" + strconv.Itoa(port)
}

// MissingFields returns the required fields that are empty.
func (c Sync) MissingFields() (missing []Field) {
	for _, field := range []Field{FieldHost, FieldUser, FieldPassword} {
		if c.Get(field) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Validate checks that the config can be used to connect.
func (c Sync) Validate() error {
	if missing := c.MissingFields(); len(missing) != 0 {
		return errors.WithCode(errors.MissingFieldError{Field: missing[0].String()},
			errors.IncompleteSettings)
	}
	if _, err := ParsePort(strconv.Itoa(c.Port)); err != nil {
		return err
	}
	return nil
}

// CleanRemotePath normalizes a remote base path into an absolute POSIX path.
func CleanRemotePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// ParsePort parses a TCP port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, errors.WithCode(errors.Errorf("invalid port %q", s), errors.InvalidPort)
	}
	return port, nil
}
