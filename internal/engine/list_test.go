package engine

import (
	"testing"
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
)

func conv(id string, updated time.Time) model.Conversation {
	return model.Conversation{
		ID:        id,
		UserID:    "user-" + id,
		Status:    model.StatusOpen,
		UpdatedAt: updated,
	}
}

func seedList(st *state, ids ...string) {
	for i, id := range ids {
		c := conv(id, base.Add(time.Duration(i)*time.Minute))
		st.conversations[id] = &c
		st.order = append(st.order, id)
	}
}

func TestMergeListOrderStability(t *testing.T) {
	st := newState()
	seedList(st, "A", "B", "C")

	// Same set, different server order.
	mergeList(st, []model.Conversation{conv("C", base), conv("A", base), conv("B", base)})

	want := []string{"A", "B", "C"}
	if len(st.order) != len(want) {
		t.Fatalf("expected %d ids, got %v", len(want), st.order)
	}
	for i, id := range want {
		if st.order[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, st.order[i])
		}
	}
}

func TestMergeListAppendsNewAtEnd(t *testing.T) {
	st := newState()
	seedList(st, "A", "B", "C")

	// D arrives first in the server response but still joins at the end.
	mergeList(st, []model.Conversation{conv("D", base), conv("A", base), conv("B", base), conv("C", base)})

	want := []string{"A", "B", "C", "D"}
	for i, id := range want {
		if st.order[i] != id {
			t.Fatalf("expected order %v, got %v", want, st.order)
		}
	}
}

func TestMergeListDropsAbsentConversations(t *testing.T) {
	st := newState()
	seedList(st, "A", "B", "C")

	mergeList(st, []model.Conversation{conv("A", base), conv("C", base)})

	if _, ok := st.conversations["B"]; ok {
		t.Error("conversation absent from the snapshot must be dropped")
	}
	want := []string{"A", "C"}
	if len(st.order) != 2 || st.order[0] != want[0] || st.order[1] != want[1] {
		t.Errorf("expected order %v, got %v", want, st.order)
	}
}

func TestMergeListSelectedMessageAuthority(t *testing.T) {
	st := newState()
	seedList(st, "A", "B")
	st.selectedID = "A"

	local := st.conversations["A"].Clone()
	local.Messages = []model.Message{serverMsg("m1", "local history", base)}
	local.Typing = model.Typing{User: true}
	st.conversations["A"] = local

	stale := conv("A", base.Add(time.Hour))
	stale.Messages = []model.Message{serverMsg("m0", "stale list copy", base.Add(-time.Hour))}
	stale.UnreadCountAdmin = 7
	mergeList(st, []model.Conversation{stale, conv("B", base)})

	got := st.conversations["A"]
	if len(got.Messages) != 1 || got.Messages[0].ID != "m1" {
		t.Error("list poll must not overwrite the selected conversation's messages")
	}
	if !got.Typing.User {
		t.Error("list poll must not overwrite the selected conversation's typing")
	}
	if got.UnreadCountAdmin != 7 {
		t.Error("list poll stays authoritative for the selected conversation's counters")
	}
}

func TestMergeListUnselectedTakesServerState(t *testing.T) {
	st := newState()
	seedList(st, "A", "B")
	st.selectedID = "A"

	local := st.conversations["B"].Clone()
	local.Messages = []model.Message{serverMsg("old", "previous", base)}
	st.conversations["B"] = local

	fresh := conv("B", base.Add(time.Hour))
	fresh.Messages = []model.Message{serverMsg("new", "fresh", base.Add(time.Hour))}
	mergeList(st, []model.Conversation{conv("A", base), fresh})

	got := st.conversations["B"]
	if len(got.Messages) != 1 || got.Messages[0].ID != "new" {
		t.Error("list poll is authoritative for unselected conversations")
	}
}

func TestMergeListReappliesLastTyping(t *testing.T) {
	st := newState()
	seedList(st, "A")
	st.selectedID = "A"
	st.lastTyping["A"] = model.Typing{User: true}

	// Server list copy has no typing set; the cached signal survives.
	mergeList(st, []model.Conversation{conv("A", base)})

	if !st.conversations["A"].Typing.User {
		t.Error("a stale list merge must not erase a just-observed typing signal")
	}
}

func TestMergeListInitialLoadAppliesSort(t *testing.T) {
	st := newState()

	a := conv("A", base)
	a.LastMessageAt = base
	b := conv("B", base.Add(time.Hour))
	b.LastMessageAt = base.Add(time.Hour)

	// Server returns oldest-first; the initial load still lands sorted by
	// the active direction.
	mergeList(st, []model.Conversation{a, b})

	if len(st.order) != 2 || st.order[0] != "B" || st.order[1] != "A" {
		t.Errorf("initial load must apply the newest-first sort, got %v", st.order)
	}
}

func TestMergeListFilterResetAppliesSort(t *testing.T) {
	st := newState()
	seedList(st, "X")
	st.sort = model.SortOldestFirst
	st.reset()

	a := conv("A", base)
	a.LastMessageAt = base
	b := conv("B", base.Add(time.Hour))
	b.LastMessageAt = base.Add(time.Hour)

	mergeList(st, []model.Conversation{b, a})

	if len(st.order) != 2 || st.order[0] != "A" || st.order[1] != "B" {
		t.Errorf("first merge after a filter reset must sort by the active direction, got %v", st.order)
	}
}
