// Package model defines data structures for the inbox engine.
package model

import (
	"time"
)

// Status represents the lifecycle state of a conversation.
type Status string

const (
	// StatusOpen and StatusClosed are human-controlled lifecycle states.
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	// StatusAuto means the conversation is bot-controlled.
	StatusAuto Status = "auto"
)

// Controller identifies who currently drives a conversation. Admin takeover
// suspends automated funnel progression; orthogonal to Status.
type Controller string

const (
	ControlledByBot   Controller = "bot"
	ControlledByAdmin Controller = "admin"
)

// Typing carries the transient typing flags for one conversation. Not
// persisted; refreshed only by the typing poll or a locally known
// just-sent value.
type Typing struct {
	User  bool `json:"user"`
	Admin bool `json:"admin"`
}

// Conversation represents a conversation thread as held by the engine.
type Conversation struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
	WhopUserID string `json:"whop_user_id,omitempty"`

	Status       Status     `json:"status"`
	ControlledBy Controller `json:"controlled_by"`

	// Messages are ordered by timestamp ascending, not necessarily by
	// insertion order.
	Messages []Message `json:"messages,omitempty"`

	// Denormalized summary fields, kept in sync with Messages.
	LastMessage   *Message  `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Independent unread counters. A detail merge must never zero these
	// while syncing unrelated fields; only the list poll and explicit
	// read actions change them.
	UnreadCountAdmin int `json:"unread_count_admin"`
	UnreadCountUser  int `json:"unread_count_user"`

	AdminAvatar string `json:"admin_avatar,omitempty"`

	Typing Typing `json:"typing"`

	// Meta holds minimal funnel-stage metadata, carried opaquely.
	Meta map[string]string `json:"meta,omitempty"`
}

// GroupKey returns the identity conversations are folded by for display:
// the end-user id, falling back to the record's own id.
func (c *Conversation) GroupKey() string {
	if c.WhopUserID != "" {
		return c.WhopUserID
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.ID
}

// Clone returns a deep copy safe to mutate without affecting published
// snapshots.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.Meta != nil {
		out.Meta = make(map[string]string, len(c.Meta))
		for k, v := range c.Meta {
			out.Meta[k] = v
		}
	}
	return &out
}

// GroupedConversation is one display card derived from all conversation
// records sharing a user identity.
type GroupedConversation struct {
	// Primary is the representative record: the open one if any exists,
	// else the most recently updated.
	Primary *Conversation `json:"primary"`

	GroupKey          string    `json:"group_key"`
	ConversationIDs   []string  `json:"conversation_ids"`
	ConversationCount int       `json:"conversation_count"`
	MessageCount      int       `json:"message_count"`
	UnreadCountAdmin  int       `json:"unread_count_admin"`
	LastMessage       *Message  `json:"last_message,omitempty"`
	LastMessageAt     time.Time `json:"last_message_at"`
	Typing            Typing    `json:"typing"`
}

// InboxSnapshot is the single consistent view exposed to the rendering
// layer, recomputed after every successful reconciliation step. Immutable
// once published.
type InboxSnapshot struct {
	Conversations        []GroupedConversation `json:"conversations"`
	SelectedID           string                `json:"selected_id,omitempty"`
	SelectedConversation *Conversation         `json:"selected_conversation,omitempty"`
	Revision             uint64                `json:"revision"`
	GeneratedAt          time.Time             `json:"generated_at"`
}

// SortDirection orders grouped cards by their aggregate last activity.
type SortDirection string

const (
	SortNewestFirst SortDirection = "newest"
	SortOldestFirst SortDirection = "oldest"
)
