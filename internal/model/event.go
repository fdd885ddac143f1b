package model

import (
	"time"
)

// EventType represents the type of engine event published for other
// services to observe.
type EventType string

const (
	EventTypeMessageFailed       EventType = "message_failed"
	EventTypeConversationUpdated EventType = "conversation_updated"
	EventTypeSelectionChanged    EventType = "selection_changed"
)

// EngineEvent is emitted after a reconciliation step with an externally
// interesting outcome.
type EngineEvent struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
