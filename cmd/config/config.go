package config

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/ftpsync/cmd/util"
	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
)

// The fields set by `ftpsync config`, in the order they're prompted for.
var configFields = []config.Field{
	config.FieldHost,
	config.FieldPort,
	config.FieldUser,
	config.FieldPassword,
	config.FieldRemotePath,
	config.FieldInterval,
	config.FieldMaxUploadSize,
}

// Mocked for unit testing.
var (
	stdout    io.Writer = os.Stdout
	loadStore           = func() (config.Store, string, error) {
		store, err := util.LoadStore()
		return store, store.Path(), err
	}
	newPrompter = func() fieldPrompter { return util.NewTerminalPrompter() }
)

type fieldPrompter interface {
	PromptField(field config.Field, current string) (string, error)
}

// New creates a new `config` command.
func New() *cobra.Command {
	cliOpts := map[config.Field]*string{}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Set up the SFTP connection and sync settings",
		Run: func(_ *cobra.Command, _ []string) {
			flags := map[config.Field]string{}
			for field, value := range cliOpts {
				if *value != "" {
					flags[field] = *value
				}
			}

			if err := SetupConfig(flags); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}

	for _, field := range configFields {
		cliOpts[field] = cmd.Flags().String(field.String(), "",
			fmt.Sprintf("Set the %s in the config. "+
				"Optional: If not set, `ftpsync config` will interactively prompt.",
				field.Label()))
	}

	// Setup the commands for querying the contents of the config.
	type getterSpec struct {
		use, short string
		field      config.Field
	}

	getters := []getterSpec{
		{
			use:   "get-host",
			short: "Get the currently configured SFTP host",
			field: config.FieldHost,
		},
		{
			use:   "get-remote-path",
			short: "Get the currently configured remote base path",
			field: config.FieldRemotePath,
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				store, _, err := loadStore()
				if err != nil {
					util.HandleFatalError(err)
				}

				cfg, err := store.Load()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, cfg.Get(getter.field))
			},
		})
	}

	return cmd
}

// SetupConfig updates the config with the values in flags, and prompts for
// the other fields.
func SetupConfig(flags map[config.Field]string) error {
	store, path, err := loadStore()
	if err != nil {
		return err
	}

	cfg, err := generateConfig(store, flags)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := store.Save(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is. Fields passed as flags aren't prompted for.
func generateConfig(store config.Store, flags map[config.Field]string) (config.Sync, error) {
	cfg, err := store.Load()
	if err != nil {
		cfg = config.Sync{}.WithDefaults()
		log.WithError(err).Debug("Failed to read current config")
	}

	prompter := newPrompter()
	for _, field := range configFields {
		if value, ok := flags[field]; ok {
			if err := cfg.Set(field, value); err != nil {
				return config.Sync{}, errors.WithContext(err, "--"+field.String())
			}
			continue
		}

		for {
			resp, err := prompter.PromptField(field, cfg.Get(field))
			if err != nil {
				return config.Sync{}, errors.WithContext(err, "read response")
			}

			err = cfg.Set(field, resp)
			if err == nil {
				break
			}

			// Explain what was wrong, and try again.
			if code := errors.Classify(err); code != errors.Unknown {
				fmt.Fprintln(stdout, code.Message())
			} else {
				fmt.Fprintln(stdout, err)
			}
		}
	}

	return cfg, cfg.Validate()
}
