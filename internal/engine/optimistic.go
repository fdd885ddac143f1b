package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/funnelworks/inbox-engine/internal/model"
)

// newOptimisticMessage builds the local-only entry applied before the send
// request begins. The temp id is replaced by the server-assigned one on
// confirmation.
func newOptimisticMessage(conversationID, text string, role model.Role, now time.Time) model.Message {
	return model.Message{
		ID:             "tmp-" + uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Type:           role,
		Text:           text,
		Timestamp:      now,
		Metadata: model.MessageMetadata{
			IsOptimistic:      true,
			OptimisticAddedAt: now,
		},
	}
}

// appendOptimistic adds a pending entry to its conversation and updates
// the denormalized summary fields.
func appendOptimistic(st *state, msg model.Message) bool {
	prev, ok := st.conversations[msg.ConversationID]
	if !ok {
		return false
	}
	next := prev.Clone()
	next.Messages = append(next.Messages, msg)
	lm := msg
	next.LastMessage = &lm
	next.LastMessageAt = msg.Timestamp
	next.MessageCount++
	next.UpdatedAt = msg.Timestamp
	st.replace(next)
	return true
}

// confirmSend swaps an optimistic entry for the authoritative server
// record in place: the server id and canonical timestamp win, but the
// entry keeps its list position so the bubble does not jump.
func confirmSend(st *state, conversationID, tempID string, server model.Message) bool {
	prev, ok := st.conversations[conversationID]
	if !ok {
		return false
	}
	next := prev.Clone()
	for i := range next.Messages {
		if next.Messages[i].ID != tempID {
			continue
		}
		server.Metadata = model.MessageMetadata{}
		next.Messages[i] = server
		if next.LastMessage != nil && next.LastMessage.ID == tempID {
			lm := server
			next.LastMessage = &lm
			next.LastMessageAt = server.Timestamp
		}
		st.replace(next)
		return true
	}
	// Already reconciled away by a detail merge that carried the server
	// copy; nothing to do.
	return false
}

// failSend marks an optimistic entry as explicitly failed. The entry is
// never removed, only flagged, so the user always sees that an attempt
// was made.
func failSend(st *state, conversationID, tempID string) bool {
	prev, ok := st.conversations[conversationID]
	if !ok {
		return false
	}
	next := prev.Clone()
	for i := range next.Messages {
		if next.Messages[i].ID == tempID {
			next.Messages[i].Metadata.FailedToSend = true
			st.replace(next)
			return true
		}
	}
	return false
}

// markReadLocal zeroes the acting side's unread counter ahead of server
// confirmation.
func markReadLocal(st *state, conversationID string, side model.Role) bool {
	prev, ok := st.conversations[conversationID]
	if !ok {
		return false
	}
	next := prev.Clone()
	switch side {
	case model.RoleAdmin:
		if next.UnreadCountAdmin == 0 {
			return false
		}
		next.UnreadCountAdmin = 0
	case model.RoleUser:
		if next.UnreadCountUser == 0 {
			return false
		}
		next.UnreadCountUser = 0
	default:
		return false
	}
	for i := range next.Messages {
		next.Messages[i].IsRead = true
	}
	st.replace(next)
	return true
}

// resolveLocal optimistically closes a conversation and clears the admin
// unread counter.
func resolveLocal(st *state, conversationID string, now time.Time) bool {
	prev, ok := st.conversations[conversationID]
	if !ok || prev.Status == model.StatusClosed {
		return false
	}
	next := prev.Clone()
	next.Status = model.StatusClosed
	next.UnreadCountAdmin = 0
	next.UpdatedAt = now
	st.replace(next)
	return true
}
