package noop

import (
	"context"

	"pacelab/pkg/errors"
)

// Tracker discards everything. It is used when SENTRY_DSN is unset and as
// the default for services built without a tracker.
type Tracker struct{}

var _ errors.Tracker = (*Tracker)(nil)

func New() *Tracker {
	return &Tracker{}
}

func (Tracker) CaptureError(context.Context, error, map[string]string) error { return nil }

func (Tracker) CaptureMessage(context.Context, string, errors.Level, map[string]string) error {
	return nil
}

func (Tracker) AddBreadcrumb(context.Context, string, string, errors.Level, map[string]interface{}) {}

func (Tracker) Flush(context.Context) error { return nil }
