package errors

import (
	"context"
	"net"
	"os"
	"strings"
	"syscall"
)

// Code identifies a class of failure that is reported to the user.
type Code string

// The error taxonomy. The connection-related codes (HostConnectionFailed,
// AuthFailed, ConnectionTimeout and PermissionDenied) are recoverable: the
// user is asked to correct the responsible setting and the failed operation
// is retried.
const (
	IncompleteSettings   Code = "incompleteSettings"
	InvalidPort          Code = "invalidPort"
	WorkspaceMissing     Code = "workspaceMissing"
	HostConnectionFailed Code = "hostConnectionFailed"
	AuthFailed           Code = "authFailed"
	ConnectionTimeout    Code = "connectionTimeout"
	PermissionDenied     Code = "permissionDenied"
	SyncStartFailed      Code = "syncStartFailed"
	SyncRestartFailed    Code = "syncRestartFailed"
	SyncError            Code = "syncError"
	Unknown              Code = "unknown"
)

var messages = map[Code]string{
	IncompleteSettings:   "The SFTP settings are incomplete. Please review the configuration.",
	InvalidPort:          "Invalid port number.",
	WorkspaceMissing:     "The local directory to sync doesn't exist.",
	HostConnectionFailed: "Could not connect to the host.",
	AuthFailed:           "The user name or password is incorrect.",
	ConnectionTimeout:    "The connection timed out.",
	PermissionDenied:     "Permission denied on the remote path.",
	SyncStartFailed:      "Failed to start syncing.",
	SyncRestartFailed:    "Failed to restart syncing.",
	SyncError:            "An error occurred while syncing.",
	Unknown:              "An unknown error occurred.",
}

// Message returns the human-readable description of the code.
func (c Code) Message() string {
	if msg, ok := messages[c]; ok {
		return msg
	}
	return messages[Unknown]
}

func (c Code) String() string {
	return string(c)
}

// Recoverable returns whether the recovery protocol can prompt the user to
// fix the cause of the failure.
func (c Code) Recoverable() bool {
	switch c {
	case HostConnectionFailed, AuthFailed, ConnectionTimeout, PermissionDenied:
		return true
	}
	return false
}

// Classify inspects err and decides which Code describes it best.
func Classify(err error) Code {
	if err == nil {
		return Unknown
	}

	var coded CodedError
	if As(err, &coded) {
		return coded.Code
	}

	var accessErr AccessError
	if As(err, &accessErr) && accessErr.Permission {
		return PermissionDenied
	}

	if isTimeout(err) {
		return ConnectionTimeout
	}

	if isAuthFailure(err) {
		return AuthFailed
	}

	if isDialFailure(err) {
		return HostConnectionFailed
	}

	if Is(err, os.ErrPermission) {
		return PermissionDenied
	}
	return Unknown
}

func isTimeout(err error) bool {
	if Is(err, context.DeadlineExceeded) || Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "i/o timeout")
}

// The ssh package doesn't export a typed authentication error, so we have to
// match on the message.
func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain")
}

func isDialFailure(err error) bool {
	var dnsErr *net.DNSError
	if As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	if Is(err, syscall.ECONNREFUSED) || Is(err, syscall.EHOSTUNREACH) ||
		Is(err, syscall.ENETUNREACH) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}
