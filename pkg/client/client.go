package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relaychat/pkg/domain"
)

// Client calls the chat backend over HTTP. Token is the identity
// provider's bearer token; FallbackSubject is the dev-mode identity
// header honored only by servers configured to trust it.
type Client struct {
	baseURL         string
	token           string
	fallbackSubject string
	httpClient      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithFallbackSubject sets the dev identity header.
func WithFallbackSubject(subject string) Option {
	return func(c *Client) { c.fallbackSubject = subject }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New constructs a chat backend client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents a chat backend error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// SyncProfile is the identity payload pushed by SyncUser.
type SyncProfile struct {
	Subject   string `json:"subject"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// SyncUser upserts the caller's profile and returns the user id.
func (c *Client) SyncUser(ctx context.Context, profile SyncProfile) (string, error) {
	var resp struct {
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/sync", profile, &resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// Me returns the caller's user record, or nil when unknown.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var resp struct {
		User *domain.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// SearchUsers finds users by name prefix for the new-chat picker.
func (c *Client) SearchUsers(ctx context.Context, term string, limit int) ([]domain.User, error) {
	q := url.Values{"q": {term}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp struct {
		Users []domain.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// SetOnline overrides the caller's online flag.
func (c *Client) SetOnline(ctx context.Context, isOnline bool) error {
	return c.do(ctx, http.MethodPost, "/users/online", map[string]bool{"isOnline": isOnline}, nil)
}

// UpsertPresenceSession registers a presence session.
func (c *Client) UpsertPresenceSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/presence/session", map[string]string{"sessionId": sessionID}, nil)
}

// Heartbeat refreshes a presence session.
func (c *Client) Heartbeat(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/presence/heartbeat", map[string]string{"sessionId": sessionID}, nil)
}

// DisconnectPresenceSession marks a presence session closed.
func (c *Client) DisconnectPresenceSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/presence/disconnect", map[string]string{"sessionId": sessionID}, nil)
}

// SetTyping publishes the caller's typing state.
func (c *Client) SetTyping(ctx context.Context, conversationID string, isTyping bool) error {
	return c.do(ctx, http.MethodPost, "/typing", map[string]any{
		"conversationId": conversationID,
		"isTyping":       isTyping,
	}, nil)
}

// ListTyping returns who is typing in the conversation.
func (c *Client) ListTyping(ctx context.Context, conversationID string) ([]domain.TypingUser, error) {
	var resp struct {
		Typing []domain.TypingUser `json:"typing"`
	}
	q := url.Values{"conversationId": {conversationID}}
	if err := c.do(ctx, http.MethodGet, "/typing?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Typing, nil
}

// CreateDirectConversation finds or creates the 1:1 conversation.
func (c *Client) CreateDirectConversation(ctx context.Context, userID string) (string, error) {
	var resp struct {
		ConversationID string `json:"conversationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations/direct", map[string]string{"userId": userID}, &resp); err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

// CreateGroupConversation creates a named group conversation.
func (c *Client) CreateGroupConversation(ctx context.Context, name string, memberIDs []string) (string, error) {
	var resp struct {
		ConversationID string `json:"conversationId"`
	}
	body := map[string]any{"name": name, "memberIds": memberIDs}
	if err := c.do(ctx, http.MethodPost, "/conversations/group", body, &resp); err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

// ListConversations returns the caller's sidebar.
func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var resp struct {
		Conversations []domain.ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetConversation returns one conversation, or nil when inaccessible.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var resp struct {
		Conversation *domain.Conversation `json:"conversation"`
	}
	q := url.Values{"id": {conversationID}}
	if err := c.do(ctx, http.MethodGet, "/conversations?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversation, nil
}

// MarkConversationRead clears the caller's unread counter.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/read", map[string]string{"conversationId": conversationID}, nil)
}

// SendMessage appends a message and returns its id.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (string, error) {
	var resp struct {
		MessageID string `json:"messageId"`
	}
	body := map[string]string{"conversationId": conversationID, "content": content}
	if err := c.do(ctx, http.MethodPost, "/messages", body, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// ListMessages returns the conversation's messages oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.MessageView, error) {
	var resp struct {
		Messages []domain.MessageView `json:"messages"`
	}
	q := url.Values{"conversationId": {conversationID}}
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteMessage soft-deletes the caller's message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/messages/delete", map[string]string{"messageId": messageID}, nil)
}

// ToggleReaction toggles the caller's reaction on a message. The
// reaction may be a glyph or a storage key.
func (c *Client) ToggleReaction(ctx context.Context, messageID, reaction string) error {
	return c.do(ctx, http.MethodPost, "/messages/reaction", map[string]string{
		"messageId": messageID,
		"reaction":  reaction,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.fallbackSubject != "" {
		req.Header.Set("X-Fallback-Subject", c.fallbackSubject)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
