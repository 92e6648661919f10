package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event emitted after a workflow transition commits
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	DocumentID    int64                  `json:"document_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// Payload keys shared by publishers and handlers
const (
	KeyAssignmentID = "assignment_id"
	KeyActorID      = "actor_id"
	KeyRecipientID  = "recipient_id"
	KeyStatus       = "status"
	KeyStep         = "step"
	KeyTitle        = "title"
	KeyComment      = "comment"
)

// NewEvent creates a new domain event with a generated ID and the current timestamp
func NewEvent(eventType Type, documentID int64, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		DocumentID:    documentID,
		Payload:       copyPayload(payload, 0),
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain
func NewEventWithCorrelation(eventType Type, documentID int64, payload map[string]interface{}, correlationID string) *Event {
	e := NewEvent(eventType, documentID, payload)
	if correlationID != "" {
		e.CorrelationID = correlationID
	}
	return e
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	c := *e
	c.Payload = copyPayload(e.Payload, 1)
	c.Payload[key] = value
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if str, ok := e.Payload[key].(string); ok {
		return str
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func copyPayload(src map[string]interface{}, extra int) map[string]interface{} {
	dst := make(map[string]interface{}, len(src)+extra)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
