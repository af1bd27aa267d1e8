package errors

import (
	"fmt"
	"os"
)

// ErrPassInProgress is returned when a sync pass is requested while another
// one is still running.
var ErrPassInProgress = New("sync pass already in progress")

// ErrNotIdle is returned when starting a sync that is already starting or
// running.
var ErrNotIdle = New("sync is already started")

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// AccessError is returned when a remote path can't be stat'ed or listed.
// Permission is set when the server refused access, which the recovery
// protocol treats differently from a missing or broken path.
type AccessError struct {
	Path       string
	Permission bool
	Err        error
}

func (err AccessError) Error() string {
	return fmt.Sprintf("access %q: %s", err.Path, err.Err)
}

func (err AccessError) Unwrap() error {
	return err.Err
}

// CodedError attaches a Code to an error so that callers further up don't
// need to classify it again.
type CodedError struct {
	Code Code
	Err  error
}

func (err CodedError) Error() string {
	return fmt.Sprintf("%s: %s", err.Code, err.Err)
}

func (err CodedError) Unwrap() error {
	return err.Err
}

// WithCode wraps err with the given Code. A nil error stays nil.
func WithCode(err error, code Code) error {
	if err == nil {
		return nil
	}
	return CodedError{Code: code, Err: err}
}

// NewAccessError wraps a failure to access path. The error is tagged as a
// permission failure if err is one.
func NewAccessError(path string, err error) error {
	return AccessError{Path: path, Permission: Is(err, os.ErrPermission), Err: err}
}
