// Package engine implements the conversation state reconciliation engine:
// it merges server snapshots produced by three uncoordinated polling loops
// with local optimistic mutations, without duplicate messages, lost unread
// counters, or order churn.
package engine

import (
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
)

// state is the single logical container owning all shared inbox state. It
// is only ever touched by the engine's actor goroutine; merges replace
// conversation values instead of mutating them in place, so a previously
// published snapshot stays internally consistent.
type state struct {
	conversations map[string]*model.Conversation

	// order is the explicit display order key. It is created on initial
	// load or an explicit sort change and extended with newly appeared
	// ids; a background poll never re-sorts it.
	order []string

	selectedID string

	// lastTyping caches the most recently observed typing flags per
	// conversation, independently of both pollers, so a slow list-poll
	// cycle cannot erase a just-observed signal.
	lastTyping map[string]model.Typing

	sort     model.SortDirection
	revision uint64
}

func newState() *state {
	return &state{
		conversations: make(map[string]*model.Conversation),
		lastTyping:    make(map[string]model.Typing),
		sort:          model.SortNewestFirst,
	}
}

// ordered returns the conversation records in order-key order.
func (st *state) ordered() []*model.Conversation {
	out := make([]*model.Conversation, 0, len(st.order))
	for _, id := range st.order {
		if c, ok := st.conversations[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (st *state) selected() *model.Conversation {
	if st.selectedID == "" {
		return nil
	}
	return st.conversations[st.selectedID]
}

// replace swaps in a new value for one conversation. The previous value is
// left untouched for any snapshot already published.
func (st *state) replace(c *model.Conversation) {
	st.conversations[c.ID] = c
}

// reset drops all conversation state and the order key, as happens when
// the active status filter changes.
func (st *state) reset() {
	st.conversations = make(map[string]*model.Conversation)
	st.order = nil
}

// snapshot derives the immutable view handed to the rendering layer.
func (st *state) snapshot(now time.Time) *model.InboxSnapshot {
	snap := &model.InboxSnapshot{
		Conversations: groupConversations(st.ordered()),
		SelectedID:    st.selectedID,
		Revision:      st.revision,
		GeneratedAt:   now,
	}
	if sel := st.selected(); sel != nil {
		snap.SelectedConversation = sel.Clone()
	}
	return snap
}
