package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/logger"
	"github.com/funnelworks/inbox-engine/pkg/metrics"
)

// Backend is the set of collaborator contracts the engine consumes. The
// tenant is fixed per client.
type Backend interface {
	FetchConversationList(ctx context.Context, status model.Status) ([]model.Conversation, error)
	FetchConversationDetail(ctx context.Context, conversationID string) (*model.Conversation, error)
	FetchTyping(ctx context.Context, conversationID string) (model.Typing, error)
	SendMessage(ctx context.Context, conversationID, text string, role model.Role) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID string, side model.Role) error
	ResolveConversation(ctx context.Context, conversationID string) error
	SetTyping(ctx context.Context, conversationID string, side model.Role, active bool) error
}

// Cache is the persistent per-conversation repaint cache.
type Cache interface {
	Get(conversationID string) (*model.CachedConversation, bool)
	Put(conversationID string, entry *model.CachedConversation)
}

// EventSink receives engine events for external observers. Publish is
// best-effort and must not block reconciliation.
type EventSink interface {
	Publish(event *model.EngineEvent)
}

// Config holds engine tuning knobs.
type Config struct {
	TenantID string

	ListPollInterval   time.Duration
	DetailPollInterval time.Duration
	TypingPollInterval time.Duration

	// StatusFilter scopes the list poll; changing it resets the order key
	// like an initial load.
	StatusFilter model.Status

	// FetchTimeout bounds each individual poll request.
	FetchTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ListPollInterval <= 0 {
		c.ListPollInterval = 2 * time.Second
	}
	if c.DetailPollInterval <= 0 {
		c.DetailPollInterval = 2 * time.Second
	}
	if c.TypingPollInterval <= 0 {
		c.TypingPollInterval = 2 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.StatusFilter == "" {
		c.StatusFilter = model.StatusOpen
	}
}

// ErrNoSelection is returned by operations that need a selected
// conversation when none is selected.
var ErrNoSelection = errors.New("no conversation selected")

// command is one unit of work applied by the actor goroutine. apply
// returns true when visible state changed and a new snapshot must be
// published.
type command struct {
	name  string
	apply func(st *state) bool
	done  chan struct{}
}

// Engine owns the shared inbox state. All merges run on a single actor
// goroutine, so a competing poll can never observe a half-merged state;
// readers get the last published immutable snapshot.
type Engine struct {
	backend Backend
	cache   Cache
	events  EventSink
	logger  *logger.Logger
	cfg     Config

	cmds chan command
	snap atomic.Pointer[model.InboxSnapshot]

	// statusFilter is read by the list poller and swapped by SetStatusFilter.
	statusFilter atomic.Value // model.Status

	mu   sync.Mutex
	subs map[chan struct{}]struct{}

	// now is swappable for tests.
	now func() time.Time
}

// New creates an engine. cache and events may be nil.
func New(backend Backend, cache Cache, events EventSink, log *logger.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		backend: backend,
		cache:   cache,
		events:  events,
		logger:  log,
		cfg:     cfg,
		cmds:    make(chan command, 64),
		subs:    make(map[chan struct{}]struct{}),
		now:     time.Now,
	}
	e.statusFilter.Store(cfg.StatusFilter)
	e.snap.Store(&model.InboxSnapshot{GeneratedAt: e.now()})
	return e
}

// Run starts the actor loop and the three pollers, blocking until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.pollLoop(ctx, "list", e.cfg.ListPollInterval, e.pollList) }()
	go func() { defer wg.Done(); e.pollLoop(ctx, "detail", e.cfg.DetailPollInterval, e.pollDetail) }()
	go func() { defer wg.Done(); e.pollLoop(ctx, "typing", e.cfg.TypingPollInterval, e.pollTyping) }()

	st := newState()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case cmd := <-e.cmds:
			e.apply(st, cmd)
		}
	}
}

func (e *Engine) apply(st *state, cmd command) {
	start := e.now()
	changed := cmd.apply(st)
	metrics.ReconcileDuration.WithLabelValues(cmd.name).Observe(e.now().Sub(start).Seconds())

	if changed {
		st.revision++
		e.publish(st)
	}
	if cmd.done != nil {
		close(cmd.done)
	}
}

func (e *Engine) publish(st *state) {
	snap := st.snapshot(e.now())
	e.snap.Store(snap)
	metrics.SnapshotRevision.Set(float64(snap.Revision))

	if e.cache != nil {
		if sel := st.selected(); sel != nil {
			e.cache.Put(sel.ID, &model.CachedConversation{
				ConversationID: sel.ID,
				Messages:       sel.Messages,
				UpdatedAt:      sel.UpdatedAt,
				AdminAvatar:    sel.AdminAvatar,
				ControlledBy:   sel.ControlledBy,
				Meta:           sel.Meta,
			})
		}
	}

	e.mu.Lock()
	for ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
}

// do submits a command and waits until the actor has applied it.
func (e *Engine) do(ctx context.Context, name string, apply func(st *state) bool) error {
	cmd := command{name: name, apply: apply, done: make(chan struct{})}
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit queues a command without waiting; used by pollers.
func (e *Engine) submit(name string, apply func(st *state) bool) {
	select {
	case e.cmds <- command{name: name, apply: apply}:
	default:
		// Actor backlog full; drop the tick. The next poll re-derives
		// from a fresh authoritative snapshot anyway.
		metrics.PollCycles.WithLabelValues(name, "dropped").Inc()
	}
}

// Snapshot returns the last published immutable view.
func (e *Engine) Snapshot() *model.InboxSnapshot {
	return e.snap.Load()
}

// Subscribe registers a notification channel signalled after every
// published snapshot. The caller must Unsubscribe when done.
func (e *Engine) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel registered with Subscribe.
func (e *Engine) Unsubscribe(ch chan struct{}) {
	e.mu.Lock()
	delete(e.subs, ch)
	e.mu.Unlock()
}

// Select switches the selected conversation. The last cached message
// history is painted immediately; the authoritative detail fetch is
// kicked off in the background and merges over it.
func (e *Engine) Select(ctx context.Context, conversationID string) error {
	var cached *model.CachedConversation
	if e.cache != nil {
		if entry, ok := e.cache.Get(conversationID); ok {
			cached = entry
			metrics.CacheReads.WithLabelValues("hit").Inc()
		} else {
			metrics.CacheReads.WithLabelValues("miss").Inc()
		}
	}

	err := e.do(ctx, "select", func(st *state) bool {
		if st.selectedID == conversationID {
			return false
		}
		st.selectedID = conversationID
		if cached == nil {
			return true
		}
		if prev, ok := st.conversations[conversationID]; ok && len(prev.Messages) == 0 {
			next := prev.Clone()
			next.Messages = append([]model.Message(nil), cached.Messages...)
			if next.AdminAvatar == "" {
				next.AdminAvatar = cached.AdminAvatar
			}
			if next.ControlledBy == "" {
				next.ControlledBy = cached.ControlledBy
			}
			st.replace(next)
		}
		return true
	})
	if err != nil {
		return err
	}

	e.emit(model.EventTypeSelectionChanged, conversationID, "", nil)

	// Fetch the authoritative detail right away rather than waiting out
	// the poll interval.
	go e.pollDetail(context.WithoutCancel(ctx))
	return nil
}

// Send applies an optimistic message synchronously, then issues the send
// request. The optimistic entry is never rolled back to absent: it is
// either confirmed in place or transitioned to failed.
func (e *Engine) Send(ctx context.Context, text string, role model.Role) (*model.Message, error) {
	conversationID, err := e.selectedID()
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = model.RoleAdmin
	}

	msg := newOptimisticMessage(conversationID, text, role, e.now())
	if err := e.do(ctx, "send", func(st *state) bool {
		return appendOptimistic(st, msg)
	}); err != nil {
		return nil, err
	}
	metrics.OptimisticMessages.WithLabelValues("pending").Inc()

	go e.completeSend(context.WithoutCancel(ctx), conversationID, msg.ID, text, role)

	return &msg, nil
}

func (e *Engine) completeSend(ctx context.Context, conversationID, tempID, text string, role model.Role) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	server, err := e.backend.SendMessage(ctx, conversationID, text, role)
	if err != nil {
		e.logger.Warn("message send failed",
			zap.String("conversation_id", conversationID),
			zap.String("temp_id", tempID),
			zap.Error(err),
		)
		metrics.OptimisticMessages.WithLabelValues("failed_explicit").Inc()
		e.submit("send_failed", func(st *state) bool {
			return failSend(st, conversationID, tempID)
		})
		e.emit(model.EventTypeMessageFailed, conversationID, err.Error(), map[string]any{"temp_id": tempID})
		return
	}

	metrics.OptimisticMessages.WithLabelValues("confirmed").Inc()
	e.submit("send_confirmed", func(st *state) bool {
		return confirmSend(st, conversationID, tempID, *server)
	})
}

// MarkRead zeroes the given side's unread counter locally and notifies
// the server without blocking on the result.
func (e *Engine) MarkRead(ctx context.Context, side model.Role) error {
	conversationID, err := e.selectedID()
	if err != nil {
		return err
	}
	if err := e.do(ctx, "mark_read", func(st *state) bool {
		return markReadLocal(st, conversationID, side)
	}); err != nil {
		return err
	}
	go e.fireAndForget(ctx, "mark_read", func(ctx context.Context) error {
		return e.backend.MarkRead(ctx, conversationID, side)
	})
	return nil
}

// Resolve optimistically closes the selected conversation.
func (e *Engine) Resolve(ctx context.Context) error {
	conversationID, err := e.selectedID()
	if err != nil {
		return err
	}
	if err := e.do(ctx, "resolve", func(st *state) bool {
		return resolveLocal(st, conversationID, e.now())
	}); err != nil {
		return err
	}
	go e.fireAndForget(ctx, "resolve", func(ctx context.Context) error {
		return e.backend.ResolveConversation(ctx, conversationID)
	})
	return nil
}

// SetTyping reports the admin side's typing activity to the server.
func (e *Engine) SetTyping(ctx context.Context, active bool) error {
	conversationID, err := e.selectedID()
	if err != nil {
		return err
	}
	go e.fireAndForget(ctx, "set_typing", func(ctx context.Context) error {
		return e.backend.SetTyping(ctx, conversationID, model.RoleAdmin, active)
	})
	return nil
}

// SetSort recomputes the order key, the only implicit-order mutation
// besides initial load and filter change.
func (e *Engine) SetSort(ctx context.Context, dir model.SortDirection) error {
	return e.do(ctx, "sort", func(st *state) bool {
		st.sort = dir
		st.order = sortedOrderKey(st.ordered(), dir)
		return true
	})
}

// SetStatusFilter swaps the list poll's status filter and resets state
// like an initial load.
func (e *Engine) SetStatusFilter(ctx context.Context, status model.Status) error {
	e.statusFilter.Store(status)
	err := e.do(ctx, "filter", func(st *state) bool {
		st.reset()
		st.selectedID = ""
		return true
	})
	if err != nil {
		return err
	}
	go e.pollList(context.WithoutCancel(ctx))
	return nil
}

func (e *Engine) selectedID() (string, error) {
	snap := e.Snapshot()
	if snap.SelectedID == "" {
		return "", ErrNoSelection
	}
	return snap.SelectedID, nil
}

func (e *Engine) fireAndForget(ctx context.Context, op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FetchTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		e.logger.Debug("background mutation failed", zap.String("op", op), zap.Error(err))
	}
}

func (e *Engine) emit(t model.EventType, conversationID, reason string, meta map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(&model.EngineEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       e.cfg.TenantID,
		ConversationID: conversationID,
		Type:           t,
		Reason:         reason,
		Metadata:       meta,
		CreatedAt:      e.now(),
	})
}
