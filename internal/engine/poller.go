package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/metrics"
)

// pollLoop drives one poll type on a fixed interval. The three loops are
// deliberately uncoordinated; making that safe is the reconciler's job,
// not the scheduler's.
func (e *Engine) pollLoop(ctx context.Context, name string, interval time.Duration, tick func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// pollList fetches the filtered conversation list and merges it in. A
// failed cycle is skipped outright: prior state is retained and the timer
// continues on schedule.
func (e *Engine) pollList(ctx context.Context) {
	status, _ := e.statusFilter.Load().(model.Status)

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	server, err := e.backend.FetchConversationList(fetchCtx, status)
	if err != nil {
		metrics.PollCycles.WithLabelValues("list", "error").Inc()
		e.logger.Debug("list poll failed", zap.Error(err))
		return
	}
	metrics.PollCycles.WithLabelValues("list", "ok").Inc()

	e.submit("list", func(st *state) bool {
		mergeList(st, server)
		return true
	})
}

// pollDetail fetches the selected conversation's full message history and
// merges it. The response is applied only if its conversation is still
// the selection at merge time; a response for a navigated-away
// conversation is discarded.
func (e *Engine) pollDetail(ctx context.Context) {
	conversationID := e.Snapshot().SelectedID
	if conversationID == "" {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	server, err := e.backend.FetchConversationDetail(fetchCtx, conversationID)
	if err != nil {
		metrics.PollCycles.WithLabelValues("detail", "error").Inc()
		e.logger.Debug("detail poll failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	metrics.PollCycles.WithLabelValues("detail", "ok").Inc()
	if server == nil {
		return
	}

	e.submit("detail", func(st *state) bool {
		if st.selectedID != server.ID {
			metrics.StaleResponses.WithLabelValues("detail").Inc()
			return false
		}
		stats := mergeDetail(st, server, e.now())
		if stats.deduped > 0 {
			metrics.OptimisticMessages.WithLabelValues("deduped").Add(float64(stats.deduped))
		}
		for _, msg := range stats.failedNow {
			metrics.OptimisticMessages.WithLabelValues("failed_timeout").Inc()
			e.emit(model.EventTypeMessageFailed, server.ID, "no server match within threshold",
				map[string]any{"temp_id": msg.ID})
		}
		if stats.appended > 0 {
			e.emit(model.EventTypeConversationUpdated, server.ID, "", map[string]any{"new_messages": stats.appended})
		}
		return true
	})
}

// pollTyping refreshes the transient typing flags for the selected
// conversation, bypassing the list poll entirely.
func (e *Engine) pollTyping(ctx context.Context) {
	conversationID := e.Snapshot().SelectedID
	if conversationID == "" {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	typing, err := e.backend.FetchTyping(fetchCtx, conversationID)
	if err != nil {
		metrics.PollCycles.WithLabelValues("typing", "error").Inc()
		e.logger.Debug("typing poll failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	metrics.PollCycles.WithLabelValues("typing", "ok").Inc()

	e.submit("typing", func(st *state) bool {
		if st.selectedID != conversationID {
			metrics.StaleResponses.WithLabelValues("typing").Inc()
			return false
		}
		return applyTyping(st, conversationID, typing)
	})
}
