package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/logger"
)

// fakeBackend serves canned snapshots and lets tests hold a detail fetch
// open to simulate a slow response racing a selection change.
type fakeBackend struct {
	mu      sync.Mutex
	list    []model.Conversation
	details map[string]*model.Conversation
	gates   map[string]chan struct{}

	detailStarted chan string

	sendResp *model.Message
	sendErr  error
}

func newFakeBackend(list ...model.Conversation) *fakeBackend {
	return &fakeBackend{
		list:          list,
		details:       make(map[string]*model.Conversation),
		gates:         make(map[string]chan struct{}),
		detailStarted: make(chan string, 16),
	}
}

func (f *fakeBackend) FetchConversationList(ctx context.Context, status model.Status) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Conversation, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeBackend) FetchConversationDetail(ctx context.Context, conversationID string) (*model.Conversation, error) {
	f.mu.Lock()
	gate := f.gates[conversationID]
	detail := f.details[conversationID]
	f.mu.Unlock()

	f.detailStarted <- conversationID
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if detail == nil {
		return &model.Conversation{ID: conversationID}, nil
	}
	return detail.Clone(), nil
}

func (f *fakeBackend) FetchTyping(ctx context.Context, conversationID string) (model.Typing, error) {
	return model.Typing{}, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID, text string, role model.Role) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	resp := *f.sendResp
	return &resp, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, conversationID string, side model.Role) error {
	return nil
}

func (f *fakeBackend) ResolveConversation(ctx context.Context, conversationID string) error {
	return nil
}

func (f *fakeBackend) SetTyping(ctx context.Context, conversationID string, side model.Role, active bool) error {
	return nil
}

func startEngine(t *testing.T, fb *fakeBackend) (*Engine, context.Context) {
	t.Helper()
	eng := New(fb, nil, nil, logger.NewNop(), Config{
		TenantID:           "t1",
		ListPollInterval:   time.Hour,
		DetailPollInterval: time.Hour,
		TypingPollInterval: time.Hour,
		FetchTimeout:       5 * time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)
	return eng, ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDetailStarted(t *testing.T, fb *fakeBackend, id string) {
	t.Helper()
	for {
		select {
		case got := <-fb.detailStarted:
			if got == id {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for detail fetch of %s", id)
		}
	}
}

func TestEngineStaleSelectionGuard(t *testing.T) {
	fb := newFakeBackend(conv("X", base), conv("Y", base))

	xDetail := conv("X", base)
	xDetail.Messages = []model.Message{serverMsg("from-x", "hello from x", base)}
	fb.details["X"] = &xDetail
	gateX := make(chan struct{})
	fb.gates["X"] = gateX

	yDetail := conv("Y", base)
	yDetail.Messages = []model.Message{serverMsg("from-y", "hello from y", base)}
	fb.details["Y"] = &yDetail

	eng, ctx := startEngine(t, fb)
	waitFor(t, "initial list", func() bool {
		return len(eng.Snapshot().Conversations) == 2
	})

	if err := eng.Select(ctx, "X"); err != nil {
		t.Fatal(err)
	}
	// X's detail fetch is now in flight and held open.
	waitDetailStarted(t, fb, "X")

	if err := eng.Select(ctx, "Y"); err != nil {
		t.Fatal(err)
	}
	waitDetailStarted(t, fb, "Y")
	waitFor(t, "Y detail merged", func() bool {
		sel := eng.Snapshot().SelectedConversation
		return sel != nil && sel.ID == "Y" && len(sel.Messages) == 1
	})

	// The late X response lands after navigation; it must be discarded.
	close(gateX)
	time.Sleep(100 * time.Millisecond)

	snap := eng.Snapshot()
	if snap.SelectedConversation == nil || snap.SelectedConversation.ID != "Y" {
		t.Fatal("selection must still be Y")
	}
	if len(snap.SelectedConversation.Messages) != 1 || snap.SelectedConversation.Messages[0].ID != "from-y" {
		t.Errorf("unexpected selected messages: %+v", snap.SelectedConversation.Messages)
	}
	for _, g := range snap.Conversations {
		if g.Primary.ID == "X" && len(g.Primary.Messages) != 0 {
			t.Error("late X response must not have been merged")
		}
	}
}

func TestEngineSendThenConfirm(t *testing.T) {
	fb := newFakeBackend(conv("X", base))
	eng, ctx := startEngine(t, fb)
	waitFor(t, "initial list", func() bool {
		return len(eng.Snapshot().Conversations) == 1
	})
	if err := eng.Select(ctx, "X"); err != nil {
		t.Fatal(err)
	}
	waitDetailStarted(t, fb, "X")

	confirmed := serverMsg("srv-9", "hello", base.Add(400*time.Millisecond))
	fb.mu.Lock()
	fb.sendResp = &confirmed
	fb.mu.Unlock()

	msg, err := eng.Send(ctx, "hello", model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Metadata.IsOptimistic {
		t.Error("send must return the optimistic entry")
	}

	waitFor(t, "confirmation", func() bool {
		sel := eng.Snapshot().SelectedConversation
		if sel == nil {
			return false
		}
		for _, m := range sel.Messages {
			if m.ID == "srv-9" && !m.Metadata.IsOptimistic {
				return true
			}
		}
		return false
	})

	sel := eng.Snapshot().SelectedConversation
	for _, m := range sel.Messages {
		if m.ID == msg.ID {
			t.Error("temporary entry must be replaced, not kept alongside the server record")
		}
	}
}

func TestEngineSendFailure(t *testing.T) {
	fb := newFakeBackend(conv("X", base))
	fb.sendErr = errors.New("boom")
	eng, ctx := startEngine(t, fb)
	waitFor(t, "initial list", func() bool {
		return len(eng.Snapshot().Conversations) == 1
	})
	if err := eng.Select(ctx, "X"); err != nil {
		t.Fatal(err)
	}

	msg, err := eng.Send(ctx, "hello", model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "failure flag", func() bool {
		sel := eng.Snapshot().SelectedConversation
		if sel == nil {
			return false
		}
		for _, m := range sel.Messages {
			if m.ID == msg.ID && m.Metadata.FailedToSend {
				return true
			}
		}
		return false
	})
}

func TestEngineSendWithoutSelection(t *testing.T) {
	fb := newFakeBackend(conv("X", base))
	eng, _ := startEngine(t, fb)

	if _, err := eng.Send(context.Background(), "hello", model.RoleAdmin); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
}

func TestEngineSortChange(t *testing.T) {
	a := conv("A", base)
	a.LastMessageAt = base
	b := conv("B", base.Add(time.Hour))
	b.UserID = "user-B"
	b.LastMessageAt = base.Add(time.Hour)
	fb := newFakeBackend(a, b)

	eng, ctx := startEngine(t, fb)
	waitFor(t, "initial list", func() bool {
		return len(eng.Snapshot().Conversations) == 2
	})

	if err := eng.SetSort(ctx, model.SortNewestFirst); err != nil {
		t.Fatal(err)
	}
	snap := eng.Snapshot()
	if snap.Conversations[0].Primary.ID != "B" {
		t.Errorf("expected B first after newest sort, got %s", snap.Conversations[0].Primary.ID)
	}

	if err := eng.SetSort(ctx, model.SortOldestFirst); err != nil {
		t.Fatal(err)
	}
	snap = eng.Snapshot()
	if snap.Conversations[0].Primary.ID != "A" {
		t.Errorf("expected A first after oldest sort, got %s", snap.Conversations[0].Primary.ID)
	}
}
