package errors

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  Code
	}{
		{
			name: "nil",
			err:  nil,
			exp:  Unknown,
		},
		{
			name: "coded error wins",
			err:  WithContext(WithCode(assertErr, AuthFailed), "connect"),
			exp:  AuthFailed,
		},
		{
			name: "permission access error",
			err:  WithContext(AccessError{Path: "/srv", Permission: true, Err: os.ErrPermission}, "list"),
			exp:  PermissionDenied,
		},
		{
			name: "non-permission access error",
			err:  AccessError{Path: "/srv", Err: os.ErrNotExist},
			exp:  Unknown,
		},
		{
			name: "net timeout",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}},
			exp:  ConnectionTimeout,
		},
		{
			name: "context deadline",
			err:  WithContext(context.DeadlineExceeded, "dial"),
			exp:  ConnectionTimeout,
		},
		{
			name: "dns failure",
			err:  &net.DNSError{Err: "no such host", Name: "nowhere.invalid"},
			exp:  HostConnectionFailed,
		},
		{
			name: "connection refused",
			err:  fmt.Errorf("dial tcp 127.0.0.1:22: connect: connection refused"),
			exp:  HostConnectionFailed,
		},
		{
			name: "ssh authentication",
			err: fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate, " +
				"attempted methods [none password], no supported methods remain"),
			exp: AuthFailed,
		},
		{
			name: "os permission",
			err:  &os.PathError{Op: "open", Path: "/srv/a", Err: os.ErrPermission},
			exp:  PermissionDenied,
		},
		{
			name: "something else",
			err:  New("disk on fire"),
			exp:  Unknown,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, Classify(test.err))
		})
	}
}

var assertErr = New("error")

func TestRecoverable(t *testing.T) {
	for _, code := range []Code{HostConnectionFailed, AuthFailed, ConnectionTimeout, PermissionDenied} {
		assert.True(t, code.Recoverable(), code)
	}
	for _, code := range []Code{IncompleteSettings, SyncError, Unknown, SyncStartFailed} {
		assert.False(t, code.Recoverable(), code)
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Could not connect to the host.", HostConnectionFailed.Message())
	assert.Equal(t, Unknown.Message(), Code("bogus").Message())
}

func TestWithContext(t *testing.T) {
	assert.Nil(t, WithContext(nil, "ignored"))

	err := WithContext(WithContext(assertErr, "inner"), "outer")
	assert.Equal(t, "outer: inner: error", err.Error())
	assert.Equal(t, assertErr, RootCause(err))
	assert.True(t, Is(err, assertErr))
}

func TestFriendlyError(t *testing.T) {
	err := NewFriendlyError("host %q is unreachable", "example.com")
	friendly, ok := err.(FriendlyError)
	assert.True(t, ok)
	assert.Equal(t, `host "example.com" is unreachable`, friendly.FriendlyMessage())
}
