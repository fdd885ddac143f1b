package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func scopedRequest(scopes []string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/inbox/messages", nil)
	ctx := context.WithValue(r.Context(), ScopesKey, scopes)
	return r.WithContext(ctx)
}

func TestRequireScope(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireScope("inbox:write")(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, scopedRequest([]string{"inbox:read", "inbox:write"}))
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 with matching scope, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, scopedRequest([]string{"inbox:read"}))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without matching scope, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/inbox/messages", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 with no scopes in context, got %d", w.Code)
	}
}

func TestHasScope(t *testing.T) {
	ctx := context.WithValue(context.Background(), ScopesKey, []string{"inbox:read"})
	if !HasScope(ctx, "inbox:read") {
		t.Error("expected scope to be present")
	}
	if HasScope(ctx, "inbox:write") {
		t.Error("unexpected scope reported present")
	}
	if HasScope(context.Background(), "inbox:read") {
		t.Error("empty context must have no scopes")
	}
}
