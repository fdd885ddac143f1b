package model

import (
	"time"
)

// Role represents the sender of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Message represents a single conversation message. Optimistic messages
// carry a locally generated temporary id until the server assigns one.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Type           Role      `json:"type"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`

	Metadata MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata tracks the local lifecycle of an optimistic send.
type MessageMetadata struct {
	// IsOptimistic is true until server confirmation swaps the record for
	// the authoritative one, or a matching server message reconciles the
	// entry away.
	IsOptimistic bool `json:"is_optimistic,omitempty"`

	// OptimisticAddedAt is the local wall-clock time the optimistic entry
	// was created; drives the failure-timeout rule.
	OptimisticAddedAt time.Time `json:"optimistic_added_at,omitempty"`

	// FailedToSend is set once the send request errored or the entry aged
	// past the failure threshold without a server match. Soft: the entry
	// stays visible and a late server match still reconciles it away.
	FailedToSend bool `json:"failed_to_send,omitempty"`
}

// SendMessageRequest is the request body for the send endpoint.
type SendMessageRequest struct {
	Text string `json:"text"`
	Role Role   `json:"role,omitempty"`
}

// SendMessageResponse echoes the server-assigned message after a send.
type SendMessageResponse struct {
	Message Message `json:"message"`
}
