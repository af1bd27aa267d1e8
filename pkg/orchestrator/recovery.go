package orchestrator

import (
	"context"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
)

// correctionFields are the settings that the user is asked to fix after a
// recoverable failure.
var correctionFields = map[errors.Code][]config.Field{
	errors.HostConnectionFailed: {config.FieldHost},
	errors.AuthFailed:           {config.FieldUser, config.FieldPassword},
	errors.ConnectionTimeout:    {config.FieldPort},
	errors.PermissionDenied:     {config.FieldRemotePath},
}

// withRecovery runs fn, and retries it after the user corrects the settings
// responsible for a connection failure. It gives up when the failure isn't
// recoverable, the user declines, or after maxRecoveryAttempts.
func (o *Orchestrator) withRecovery(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		code := errors.Classify(err)
		if !code.Recoverable() {
			return err
		}

		log := o.log.WithError(err).WithField("code", code).WithField("attempt", attempt)
		if attempt >= maxRecoveryAttempts {
			log.Warn("Giving up on recovering the connection")
			return err
		}

		log.Warn("Connection failed. Asking for corrected settings.")
		o.surface.Error(code, err)
		if !o.promptCorrection(ctx, code) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		// Reconnect with the new settings.
		o.session.Release()
	}
}

// promptCorrection asks for the settings related to code, and saves them.
// It returns false if the user declined.
func (o *Orchestrator) promptCorrection(ctx context.Context, code errors.Code) bool {
	cfg, err := o.store.Load()
	if err != nil {
		o.log.WithError(err).Error("Failed to load config")
		return false
	}

	if !o.promptFields(ctx, &cfg, correctionFields[code]) {
		o.log.WithField("code", code).Info("Settings correction cancelled")
		return false
	}

	if err := o.store.Save(cfg); err != nil {
		o.log.WithError(err).Error("Failed to save config")
		return false
	}
	return true
}

// ensureSettings loads the config, and asks for any required settings that
// are missing or invalid.
func (o *Orchestrator) ensureSettings(ctx context.Context) (config.Sync, error) {
	cfg, err := o.store.Load()
	if err != nil {
		return config.Sync{}, errors.WithContext(err, "load config")
	}

	err = cfg.Validate()
	if err == nil {
		return cfg, nil
	}

	fields := cfg.MissingFields()
	if errors.Classify(err) == errors.InvalidPort {
		fields = append(fields, config.FieldPort)
	}

	if !o.promptFields(ctx, &cfg, fields) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return config.Sync{}, ctxErr
		}
		return config.Sync{}, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Sync{}, err
	}

	if err := o.store.Save(cfg); err != nil {
		return config.Sync{}, errors.WithContext(err, "save config")
	}
	return cfg, nil
}

// promptFields asks for each field in turn. Invalid answers are reported,
// and the field is asked for again.
func (o *Orchestrator) promptFields(ctx context.Context, cfg *config.Sync,
	fields []config.Field) bool {
	for _, field := range fields {
		for {
			value, ok := o.prompt(ctx, field, cfg.Get(field))
			if !ok {
				return false
			}

			if err := cfg.Set(field, value); err != nil {
				o.surface.Error(errors.Classify(err), err)
				continue
			}
			break
		}
	}
	return true
}

// prompt asks for field, and gives up without an answer if ctx is cancelled
// first. An abandoned prompt is left waiting for input in the background.
func (o *Orchestrator) prompt(ctx context.Context, field config.Field, current string) (string, bool) {
	type answer struct {
		value string
		ok    bool
	}

	answers := make(chan answer, 1)
	go func() {
		value, ok := o.prompter.Prompt(field, current)
		answers <- answer{value, ok}
	}()

	select {
	case a := <-answers:
		return a.value, a.ok
	case <-ctx.Done():
		o.log.WithField("field", field).Debug("Prompt abandoned")
		return "", false
	}
}
