package engine

import (
	"testing"
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
)

func TestAppendOptimisticUpdatesSummary(t *testing.T) {
	st := newState()
	seedList(st, "c1")

	msg := newOptimisticMessage("c1", "hello", model.RoleAdmin, base)
	if !appendOptimistic(st, msg) {
		t.Fatal("append failed")
	}

	got := st.conversations["c1"]
	if len(got.Messages) != 1 || !got.Messages[0].Metadata.IsOptimistic {
		t.Fatal("expected one optimistic message")
	}
	if got.LastMessage == nil || got.LastMessage.ID != msg.ID {
		t.Error("lastMessage must track the optimistic entry")
	}
	if got.MessageCount != 1 || !got.LastMessageAt.Equal(base) {
		t.Error("summary fields not updated")
	}
}

func TestConfirmSendReplacesInPlace(t *testing.T) {
	st := newState()
	seedList(st, "c1")

	first := newOptimisticMessage("c1", "first", model.RoleAdmin, base)
	second := newOptimisticMessage("c1", "second", model.RoleAdmin, base.Add(time.Second))
	appendOptimistic(st, first)
	appendOptimistic(st, second)

	server := serverMsg("srv-1", "first", base.Add(100*time.Millisecond))
	if !confirmSend(st, "c1", first.ID, server) {
		t.Fatal("confirm failed")
	}

	msgs := st.conversations["c1"].Messages
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Confirmed record keeps the first slot: same position, server id.
	if msgs[0].ID != "srv-1" {
		t.Errorf("expected in-place replacement, got %q first", msgs[0].ID)
	}
	if msgs[0].Metadata.IsOptimistic || msgs[0].Metadata.FailedToSend {
		t.Error("confirmed record must carry clean metadata")
	}
	if msgs[1].ID != second.ID {
		t.Error("unrelated optimistic entry must be untouched")
	}
}

func TestConfirmSendAfterReconcileIsNoop(t *testing.T) {
	st := newState()
	seedList(st, "c1")
	if confirmSend(st, "c1", "tmp-gone", serverMsg("srv-1", "x", base)) {
		t.Error("confirming an already-reconciled entry must be a no-op")
	}
}

func TestFailSendFlagsEntry(t *testing.T) {
	st := newState()
	seedList(st, "c1")
	msg := newOptimisticMessage("c1", "hello", model.RoleAdmin, base)
	appendOptimistic(st, msg)

	if !failSend(st, "c1", msg.ID) {
		t.Fatal("failSend returned false")
	}
	got := st.conversations["c1"].Messages[0]
	if !got.Metadata.FailedToSend {
		t.Error("entry must be flagged failed")
	}
	if !got.Metadata.IsOptimistic {
		t.Error("failed entry stays optimistic so a late server match can still reconcile it")
	}
}

func TestMarkReadLocal(t *testing.T) {
	st := newState()
	seedList(st, "c1")
	c := st.conversations["c1"].Clone()
	c.UnreadCountAdmin = 3
	c.Messages = []model.Message{serverMsg("m1", "hi", base)}
	st.conversations["c1"] = c

	if !markReadLocal(st, "c1", model.RoleAdmin) {
		t.Fatal("markReadLocal returned false")
	}
	got := st.conversations["c1"]
	if got.UnreadCountAdmin != 0 {
		t.Error("admin unread counter must be zeroed")
	}
	if !got.Messages[0].IsRead {
		t.Error("messages must be marked read")
	}
	if markReadLocal(st, "c1", model.RoleAdmin) {
		t.Error("second markRead must report no change")
	}
}

func TestResolveLocal(t *testing.T) {
	st := newState()
	seedList(st, "c1")
	c := st.conversations["c1"].Clone()
	c.UnreadCountAdmin = 2
	st.conversations["c1"] = c

	if !resolveLocal(st, "c1", base.Add(time.Minute)) {
		t.Fatal("resolveLocal returned false")
	}
	got := st.conversations["c1"]
	if got.Status != model.StatusClosed || got.UnreadCountAdmin != 0 {
		t.Errorf("expected closed with cleared unread, got %s/%d", got.Status, got.UnreadCountAdmin)
	}
	if resolveLocal(st, "c1", base.Add(2*time.Minute)) {
		t.Error("resolving a closed conversation must report no change")
	}
}

func TestApplyTypingStaleSelection(t *testing.T) {
	st := newState()
	seedList(st, "c1", "c2")
	st.selectedID = "c2"

	if applyTyping(st, "c1", model.Typing{User: true}) {
		t.Error("typing for an unselected conversation must not change visible state")
	}
	if got := st.lastTyping["c1"]; !got.User {
		t.Error("the observed value must still be cached")
	}

	if !applyTyping(st, "c2", model.Typing{Admin: true}) {
		t.Error("typing for the selected conversation must apply")
	}
	if !st.conversations["c2"].Typing.Admin {
		t.Error("selected conversation typing not updated")
	}
}
