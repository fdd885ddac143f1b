package model

import (
	"time"
)

// CachedConversation is the client-local persisted record for one
// (tenant, conversation) pair: enough to instantly repaint a reselected
// conversation before the authoritative detail fetch returns.
type CachedConversation struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []Message         `json:"messages"`
	UpdatedAt      time.Time         `json:"updated_at"`
	AdminAvatar    string            `json:"admin_avatar,omitempty"`
	ControlledBy   Controller        `json:"controlled_by,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}
