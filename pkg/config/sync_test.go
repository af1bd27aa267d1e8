package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/ftpsync/pkg/errors"
)

func TestWithDefaults(t *testing.T) {
	cfg := Sync{RemotePath: `srv\www\`}.WithDefaults()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "/srv/www", cfg.RemotePath)
	assert.Equal(t, DefaultInterval, cfg.Interval())
	assert.Equal(t, int64(DefaultMaxUploadSize), cfg.MaxUploadSize)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout())

	cfg = Sync{Port: 2222, IntervalSeconds: 3}.WithDefaults()
	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.Interval())
	assert.Equal(t, ":2222", cfg.Address())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Sync
		expCode errors.Code
	}{
		{
			name: "complete",
			cfg:  Sync{Host: "h", User: "u", Password: "p"}.WithDefaults(),
		},
		{
			name:    "missing host",
			cfg:     Sync{User: "u", Password: "p"}.WithDefaults(),
			expCode: errors.IncompleteSettings,
		},
		{
			name:    "missing password",
			cfg:     Sync{Host: "h", User: "u"}.WithDefaults(),
			expCode: errors.IncompleteSettings,
		},
		{
			name:    "bad port",
			cfg:     Sync{Host: "h", User: "u", Password: "p", Port: 70000},
			expCode: errors.InvalidPort,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if test.expCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, test.expCode, errors.Classify(err))
		})
	}
}

func TestSetField(t *testing.T) {
	var cfg Sync

	assert.NoError(t, cfg.Set(FieldHost, "example.com"))
	assert.NoError(t, cfg.Set(FieldPort, " 2222 "))
	assert.NoError(t, cfg.Set(FieldRemotePath, "srv/www/"))
	assert.NoError(t, cfg.Set(FieldInterval, "30"))
	assert.NoError(t, cfg.Set(FieldMaxUploadSize, "5 MiB"))

	assert.Equal(t, "example.com", cfg.Get(FieldHost))
	assert.Equal(t, "2222", cfg.Get(FieldPort))
	assert.Equal(t, "/srv/www", cfg.Get(FieldRemotePath))
	assert.Equal(t, 30*time.Second, cfg.Interval())
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, "5.0 MiB", cfg.Get(FieldMaxUploadSize))

	err := cfg.Set(FieldPort, "ssh")
	assert.Equal(t, errors.InvalidPort, errors.Classify(err))
	assert.Equal(t, 2222, cfg.Port)

	assert.Error(t, cfg.Set(FieldInterval, "-1"))
	assert.Error(t, cfg.Set(FieldMaxUploadSize, "lots"))
}

func TestFieldNames(t *testing.T) {
	assert.Equal(t, "remotePath", FieldRemotePath.String())
	assert.Equal(t, "SFTP password", FieldPassword.Label())
	assert.True(t, FieldPassword.Secret())
	assert.False(t, FieldUser.Secret())
}
