package errors

import (
	"context"
)

// Tracker reports failures to an external service such as Sentry.
// The logger forwards every Errorw call to CaptureError; the model lifecycle
// adds breadcrumbs so a captured failure shows the train and activate steps
// that led up to it.
type Tracker interface {
	CaptureError(ctx context.Context, err error, tags map[string]string) error
	CaptureMessage(ctx context.Context, message string, level Level, tags map[string]string) error
	AddBreadcrumb(ctx context.Context, message string, category string, level Level, data map[string]interface{})

	// Flush blocks until queued events are delivered or ctx expires
	Flush(ctx context.Context) error
}

// Level is the severity attached to messages and breadcrumbs
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

func (l Level) String() string {
	return string(l)
}
