package engine

import (
	"github.com/funnelworks/inbox-engine/internal/model"
)

// mergeList folds a list-poll snapshot into the state.
//
// Iteration follows the existing order key, so the relative order of
// previously known conversations never changes as a side effect of a
// poll. Server conversations not yet known are appended at the end in the
// order the server returned them; local conversations absent from the
// snapshot no longer match the active status filter and are dropped. On
// initial load (empty order key, including after a filter reset) the
// merged set is run through the stable sort for the active direction
// instead of trusting server order.
//
// The list poll is authoritative for every conversation except the
// selected one, whose message history and typing flags belong to the
// detail and typing polls.
func mergeList(st *state, server []model.Conversation) {
	initial := len(st.order) == 0

	byID := make(map[string]*model.Conversation, len(server))
	for i := range server {
		byID[server[i].ID] = &server[i]
	}

	next := make(map[string]*model.Conversation, len(server))
	nextOrder := make([]string, 0, len(server))
	used := make(map[string]bool, len(server))

	for _, id := range st.order {
		sc, ok := byID[id]
		if !ok {
			continue
		}
		merged := sc.Clone()
		if merged.UpdatedAt.IsZero() {
			if prev, ok := st.conversations[id]; ok {
				merged.UpdatedAt = prev.UpdatedAt
			}
		}
		if id == st.selectedID {
			if prev, ok := st.conversations[id]; ok {
				merged.Messages = prev.Messages
				merged.Typing = prev.Typing
			}
			if t, ok := st.lastTyping[id]; ok {
				merged.Typing = t
			}
		}
		next[id] = merged
		nextOrder = append(nextOrder, id)
		used[id] = true
	}

	for i := range server {
		if used[server[i].ID] {
			continue
		}
		next[server[i].ID] = server[i].Clone()
		nextOrder = append(nextOrder, server[i].ID)
	}

	st.conversations = next
	st.order = nextOrder
	if initial {
		st.order = sortedOrderKey(st.ordered(), st.sort)
	}
}
