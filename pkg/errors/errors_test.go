package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cause := New("connection reset")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"insufficient data", Wrap(ErrInsufficientData, "train"), "insufficient_data"},
		{"persistence with cause", WithKind(ErrPersistence, cause, "save artifact"), "persistence"},
		{"conflict", fmt.Errorf("activate: %w", ErrActivationConflict), "activation_conflict"},
		{"validation", NewValidationError("pace", "must be positive", -1.0), "invalid_input"},
		{"unknown", cause, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestWithKind_MatchesKindAndCause(t *testing.T) {
	cause := New("disk full")
	err := WithKind(ErrPersistence, cause, "write artifact")

	assert.True(t, Is(err, ErrPersistence))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "write artifact")
	assert.Nil(t, WithKind(ErrPersistence, nil, "noop"))
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.Nil(t, m.ToError())

	m.Add(nil)
	m.Add(ErrAuditWrite)
	m.Add(ErrNotFound)

	err := m.ToError()
	assert.Error(t, err)
	assert.True(t, Is(err, ErrAuditWrite))
	assert.True(t, Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "multiple errors (2)")
}
