package sentry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"

	"pacelab/pkg/errors"
)

func TestReportable(t *testing.T) {
	assert.False(t, reportable(nil))
	assert.False(t, reportable(errors.NewValidationError("k", "must be positive", 0)))
	assert.False(t, reportable(errors.Wrap(errors.ErrNotFound, "model")))
	assert.True(t, reportable(errors.Wrap(errors.ErrIntegrity, "artifact missing")))
	assert.True(t, reportable(errors.New("disk full")))
}

func TestSentryLevel(t *testing.T) {
	assert.Equal(t, sentry.LevelWarning, sentryLevel(errors.LevelWarning))
	assert.Equal(t, sentry.LevelFatal, sentryLevel(errors.LevelFatal))
	assert.Equal(t, sentry.LevelInfo, sentryLevel(errors.Level("unknown")))
}
