package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid UTF-8 string unchanged",
			input:    "Hello, World! 你好世界",
			expected: "Hello, World! 你好世界",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name: "invalid UTF-8 bytes removed",
			// \xff is invalid UTF-8
			input:    "Hello\xffWorld",
			expected: "HelloWorld",
		},
		{
			name:     "multiple invalid UTF-8 sequences",
			input:    "Start\xffMiddle\xfeEnd\xfd",
			expected: "StartMiddleEnd",
		},
		{
			name:     "mixed valid and invalid UTF-8",
			input:    "Test 🚀\xff error\xfe message",
			expected: "Test 🚀 error message",
		},
		{
			name: "driver error with invalid UTF-8",
			// Postgres error text can carry raw bytes from a bad client encoding
			input:    "pq: invalid byte sequence\xff for encoding",
			expected: "pq: invalid byte sequence for encoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeUTF8(tt.input)
			assert.Equal(t, tt.expected, result, "SanitizeUTF8 should remove invalid UTF-8 sequences")
		})
	}
}

func TestNewBaseEvent(t *testing.T) {
	a := NewBaseEvent(TypeModelTrained, "orchestrator")
	b := NewBaseEvent(TypeModelTrained, "orchestrator")

	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, TypeModelTrained, a.Type)
	assert.Equal(t, "orchestrator", a.Source)
	assert.Equal(t, eventVersion, a.Version)
	assert.False(t, a.Timestamp.IsZero())
}
