// Package backend is the HTTP client for the conversation backend: list,
// detail and typing snapshots plus the mutation calls. It is stateless;
// all merging happens in the engine.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/funnelworks/inbox-engine/internal/model"
)

// APIError is a non-2xx response from the backend. Send failures must be
// distinguishable from success, never silent.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Config holds backend client configuration.
type Config struct {
	BaseURL   string
	TenantID  string
	AuthToken string
	Timeout   time.Duration
}

// Client talks to the conversation backend for a single tenant.
type Client struct {
	baseURL   string
	tenantID  string
	authToken string
	http      *http.Client
}

// New creates a backend client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		tenantID:  cfg.TenantID,
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout},
	}
}

// FetchConversationList retrieves conversations matching a status filter.
func (c *Client) FetchConversationList(ctx context.Context, status model.Status) ([]model.Conversation, error) {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations", url.PathEscape(c.tenantID))
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var resp struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch conversation list: %w", err)
	}
	return resp.Conversations, nil
}

// FetchConversationDetail retrieves one conversation with its full
// message history.
func (c *Client) FetchConversationDetail(ctx context.Context, conversationID string) (*model.Conversation, error) {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations/%s",
		url.PathEscape(c.tenantID), url.PathEscape(conversationID))
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, fmt.Errorf("failed to fetch conversation detail: %w", err)
	}
	return &conv, nil
}

// FetchTyping retrieves the transient typing flags for a conversation.
func (c *Client) FetchTyping(ctx context.Context, conversationID string) (model.Typing, error) {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations/%s/typing",
		url.PathEscape(c.tenantID), url.PathEscape(conversationID))
	var t model.Typing
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &t); err != nil {
		return model.Typing{}, fmt.Errorf("failed to fetch typing: %w", err)
	}
	return t, nil
}

// SendMessage posts a message and returns the server record with its
// assigned id and canonical timestamp.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string, role model.Role) (*model.Message, error) {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations/%s/messages",
		url.PathEscape(c.tenantID), url.PathEscape(conversationID))
	req := model.SendMessageRequest{Text: text, Role: role}
	var resp model.SendMessageResponse
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &resp.Message, nil
}

// MarkRead clears the unread counter for one side of a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string, side model.Role) error {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations/%s/read",
		url.PathEscape(c.tenantID), url.PathEscape(conversationID))
	body := map[string]string{"side": string(side)}
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

// ResolveConversation closes a conversation.
func (c *Client) ResolveConversation(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations/%s/resolve",
		url.PathEscape(c.tenantID), url.PathEscape(conversationID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}
	return nil
}

// SetTyping reports typing activity for one side of a conversation.
func (c *Client) SetTyping(ctx context.Context, conversationID string, side model.Role, active bool) error {
	path := fmt.Sprintf("/api/v1/tenants/%s/conversations/%s/typing",
		url.PathEscape(c.tenantID), url.PathEscape(conversationID))
	body := map[string]any{"side": string(side), "active": active}
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
			if json.Unmarshal(data, &payload) == nil {
				apiErr.Message = payload.Error
			}
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
