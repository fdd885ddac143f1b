package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/funnelworks/inbox-engine/internal/engine"
	"github.com/funnelworks/inbox-engine/pkg/logger"
	"github.com/funnelworks/inbox-engine/pkg/metrics"
)

const heartbeatInterval = 15 * time.Second

// StreamHandler pushes inbox snapshots over SSE so the renderer never has
// to poll the engine itself.
type StreamHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(e *engine.Engine, log *logger.Logger) *StreamHandler {
	return &StreamHandler{engine: e, logger: log}
}

// Stream handles GET /api/v1/inbox/stream
//
// Emits the current snapshot immediately, then a `snapshot` event after
// every reconciliation that changes state, with periodic heartbeats.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	updates := h.engine.Subscribe()
	defer h.engine.Unsubscribe(updates)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	// The initial snapshot lets the client paint without a separate GET.
	lastRevision := h.sendSnapshot(w, flusher, 0)

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case <-updates:
			lastRevision = h.sendSnapshot(w, flusher, lastRevision)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"ts": time.Now().UTC()})
		}
	}
}

func (h *StreamHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, lastRevision uint64) uint64 {
	snap := h.engine.Snapshot()
	if snap.Revision != 0 && snap.Revision == lastRevision {
		return lastRevision
	}
	sendSSEEvent(w, flusher, "snapshot", snap)
	return snap.Revision
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
