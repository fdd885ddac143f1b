package engine

import (
	"github.com/funnelworks/inbox-engine/internal/model"
)

// applyTyping records a typing-poll result. The observed value is cached
// independently of both pollers and written straight into the selected
// conversation, bypassing the list poll entirely; the list merge re-applies
// the cached value so a stale list cycle cannot erase it.
//
// Returns true if visible state changed.
func applyTyping(st *state, conversationID string, t model.Typing) bool {
	st.lastTyping[conversationID] = t

	if st.selectedID != conversationID {
		return false
	}
	prev, ok := st.conversations[conversationID]
	if !ok || prev.Typing == t {
		return false
	}
	next := prev.Clone()
	next.Typing = t
	st.replace(next)
	return true
}
