// Package handler provides HTTP handlers exposing the engine to the
// rendering layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/funnelworks/inbox-engine/internal/engine"
	"github.com/funnelworks/inbox-engine/internal/middleware"
	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/logger"
)

// InboxHandler serves the reconciled inbox snapshot and the user actions
// that mutate it.
type InboxHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewInboxHandler creates an inbox handler.
func NewInboxHandler(e *engine.Engine, log *logger.Logger) *InboxHandler {
	return &InboxHandler{engine: e, logger: log}
}

// Snapshot handles GET /api/v1/inbox
func (h *InboxHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Select handles POST /api/v1/inbox/select
func (h *InboxHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Select(r.Context(), req.ConversationID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to select conversation")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Sort handles POST /api/v1/inbox/sort
func (h *InboxHandler) Sort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSortDirection(req.Direction); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetSort(r.Context(), model.SortDirection(req.Direction)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to change sort")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Filter handles POST /api/v1/inbox/filter
func (h *InboxHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateStatusFilter(req.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetStatusFilter(r.Context(), model.Status(req.Status)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to change filter")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send handles POST /api/v1/inbox/messages
func (h *InboxHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.engine.Send(r.Context(), req.Text, req.Role)
	if err != nil {
		if errors.Is(err, engine.ErrNoSelection) {
			writeError(w, http.StatusConflict, "no conversation selected")
			return
		}
		h.logger.Error("failed to send message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusAccepted, model.SendMessageResponse{Message: *msg})
}

// MarkRead handles POST /api/v1/inbox/read
func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Side string `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := model.Role(req.Side)
	if side != model.RoleAdmin && side != model.RoleUser {
		writeError(w, http.StatusBadRequest, "side must be admin or user")
		return
	}

	if err := h.engine.MarkRead(r.Context(), side); err != nil {
		if errors.Is(err, engine.ErrNoSelection) {
			writeError(w, http.StatusConflict, "no conversation selected")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resolve handles POST /api/v1/inbox/resolve
func (h *InboxHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resolve(r.Context()); err != nil {
		if errors.Is(err, engine.ErrNoSelection) {
			writeError(w, http.StatusConflict, "no conversation selected")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Typing handles POST /api/v1/inbox/typing
func (h *InboxHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetTyping(r.Context(), req.Active); err != nil {
		if errors.Is(err, engine.ErrNoSelection) {
			writeError(w, http.StatusConflict, "no conversation selected")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to set typing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
