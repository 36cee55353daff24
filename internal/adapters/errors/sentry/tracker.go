package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"pacelab/internal/adapters/config"
	"pacelab/pkg/errors"
)

const maxBreadcrumbs = 30

// Tracker reports lifecycle failures to Sentry
type Tracker struct {
	hub *sentry.Hub
}

var _ errors.Tracker = (*Tracker)(nil)

// New initializes the Sentry client for release
func New(cfg config.ErrorTrackingConfig, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:            cfg.SentryDSN,
		Environment:    cfg.Environment,
		Release:        release,
		SampleRate:     cfg.SampleRate,
		MaxBreadcrumbs: maxBreadcrumbs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init sentry")
	}
	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends err tagged with its kind. Operator mistakes such as
// bad CLI input or missing records are not reported.
func (t *Tracker) CaptureError(_ context.Context, err error, tags map[string]string) error {
	if !reportable(err) {
		return nil
	}

	t.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", errors.Kind(err))
		scope.SetTags(tags)
		t.hub.CaptureException(err)
	})
	return nil
}

func (t *Tracker) CaptureMessage(_ context.Context, message string, level errors.Level, tags map[string]string) error {
	t.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentryLevel(level))
		t.hub.CaptureMessage(message)
	})
	return nil
}

func (t *Tracker) AddBreadcrumb(_ context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:   message,
		Category:  category,
		Level:     sentryLevel(level),
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// Flush waits for queued events until ctx's deadline, or two seconds
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !sentry.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func reportable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, errors.ErrInvalidInput) && !errors.Is(err, errors.ErrNotFound)
}

func sentryLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelDebug:
		return sentry.LevelDebug
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	case errors.LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
