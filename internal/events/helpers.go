package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event type constants
const (
	TypeModelTrained            = "model.trained"
	TypeModelActivated          = "model.activated"
	TypeModelTrainingFailed     = "model.training_failed"
	TypeClassificationsRecorded = "classifications.recorded"
)

const eventVersion = "1.0"

// BaseEvent carries the envelope shared by every event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, source string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   eventVersion,
	}
}

// SanitizeUTF8 drops invalid UTF-8 sequences so error text survives JSON encoding intact
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
