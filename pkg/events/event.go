package events

import (
	"strings"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "DOCUMENT_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	DocumentUploaded = "DOCUMENT_UPLOADED"
	DocumentDeleted  = "DOCUMENT_DELETED"

	// DocumentStatusPrefix prefixes one event type per processing status.
	DocumentStatusPrefix = "DOCUMENT_"
)

// DocumentStatusType returns the event type for a status transition, e.g.
// "completed" becomes "DOCUMENT_COMPLETED".
func DocumentStatusType(status string) string {
	return DocumentStatusPrefix + strings.ToUpper(status)
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
