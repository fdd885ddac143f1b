package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL,
		TenantID:  "tenant-1",
		AuthToken: "secret",
		Timeout:   time.Second,
	})
}

func TestFetchConversationList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tenants/tenant-1/conversations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			t.Errorf("unexpected status filter %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"conversations": []model.Conversation{{ID: "c1"}, {ID: "c2"}},
		})
	})

	convs, err := c.FetchConversationList(context.Background(), model.StatusOpen)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 || convs[0].ID != "c1" {
		t.Errorf("unexpected conversations: %+v", convs)
	}
}

func TestFetchConversationDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tenants/tenant-1/conversations/c1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(model.Conversation{
			ID:       "c1",
			Messages: []model.Message{{ID: "m1", Text: "hi"}},
		})
	})

	conv, err := c.FetchConversationDetail(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != "c1" || len(conv.Messages) != 1 {
		t.Errorf("unexpected detail: %+v", conv)
	}
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var req model.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Text != "hello" || req.Role != model.RoleAdmin {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(model.SendMessageResponse{
			Message: model.Message{ID: "srv-9", Text: "hello", Type: model.RoleAdmin},
		})
	})

	msg, err := c.SendMessage(context.Background(), "c1", "hello", model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-9" {
		t.Errorf("expected server-assigned id, got %q", msg.ID)
	}
}

func TestSendMessageFailureIsExplicit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "upstream down"})
	})

	_, err := c.SendMessage(context.Background(), "c1", "hello", model.RoleAdmin)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestFetchTyping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Typing{User: true})
	})

	typing, err := c.FetchTyping(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !typing.User || typing.Admin {
		t.Errorf("unexpected typing: %+v", typing)
	}
}

func TestMarkReadAndResolve(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.MarkRead(context.Background(), "c1", model.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	if err := c.ResolveConversation(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetTyping(context.Background(), "c1", model.RoleAdmin, true); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"/api/v1/tenants/tenant-1/conversations/c1/read",
		"/api/v1/tenants/tenant-1/conversations/c1/resolve",
		"/api/v1/tenants/tenant-1/conversations/c1/typing",
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("call %d: expected %s, got %s", i, p, paths[i])
		}
	}
}
