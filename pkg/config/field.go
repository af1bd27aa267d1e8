package config

import (
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/sidkik/ftpsync/pkg/errors"
)

// Field names a user-editable setting. Fields are what the recovery protocol
// asks the user to correct after a connection failure.
type Field int

const (
	FieldHost Field = iota
	FieldPort
	FieldUser
	FieldPassword
	FieldRemotePath
	FieldInterval
	FieldMaxUploadSize
)

var fieldNames = []string{
	"host",
	"port",
	"user",
	"password",
	"remotePath",
	"interval",
	"maxUploadSize",
}

var fieldLabels = []string{
	"SFTP host",
	"SFTP port",
	"SFTP user",
	"SFTP password",
	"Remote base path",
	"Retry interval (seconds)",
	"Maximum upload size",
}

func (f Field) String() string {
	return fieldNames[f]
}

// Label is the prompt shown to the user when asking for the field.
func (f Field) Label() string {
	return fieldLabels[f]
}

// Secret returns whether the field shouldn't be echoed.
func (f Field) Secret() bool {
	return f == FieldPassword
}

// Get returns the field's value formatted as a string.
func (c Sync) Get(f Field) string {
	switch f {
	case FieldHost:
		return c.Host
	case FieldPort:
		if c.Port == 0 {
			return ""
		}
		return strconv.Itoa(c.Port)
	case FieldUser:
		return c.User
	case FieldPassword:
		return c.Password
	case FieldRemotePath:
		return c.RemotePath
	case FieldInterval:
		if c.IntervalSeconds == 0 {
			return ""
		}
		return strconv.Itoa(c.IntervalSeconds)
	case FieldMaxUploadSize:
		if c.MaxUploadSize == 0 {
			return ""
		}
		return humanize.IBytes(uint64(c.MaxUploadSize))
	}
	return ""
}

// Set parses value and stores it in the field. Invalid values are rejected
// with an error that's safe to show to the user.
func (c *Sync) Set(f Field, value string) error {
	switch f {
	case FieldHost:
		c.Host = value
	case FieldPort:
		port, err := ParsePort(value)
		if err != nil {
			return err
		}
		c.Port = port
	case FieldUser:
		c.User = value
	case FieldPassword:
		c.Password = value
	case FieldRemotePath:
		c.RemotePath = CleanRemotePath(value)
	case FieldInterval:
		secs, err := strconv.Atoi(value)
		if err != nil || secs <= 0 {
			return errors.Errorf("invalid interval %q: must be a positive number of seconds", value)
		}
		c.IntervalSeconds = secs
	case FieldMaxUploadSize:
		size, err := humanize.ParseBytes(value)
		if err != nil || size == 0 {
			return errors.Errorf("invalid size %q", value)
		}
		c.MaxUploadSize = int64(size)
	default:
		return errors.Errorf("unknown field %d", f)
	}
	return nil
}
