package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaychat/internal/app"
	"relaychat/internal/server"
	"relaychat/pkg/store"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := server.New(server.Config{App: a, AllowFallbackSubject: true})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientRoundTrip(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	alice := New(ts.URL, WithFallbackSubject("sub-alice"))
	bob := New(ts.URL, WithFallbackSubject("sub-bob"))

	if _, err := alice.SyncUser(ctx, SyncProfile{Subject: "sub-alice", Name: "Alice"}); err != nil {
		t.Fatalf("sync alice: %v", err)
	}
	bobID, err := bob.SyncUser(ctx, SyncProfile{Subject: "sub-bob", Name: "Bob"})
	if err != nil {
		t.Fatalf("sync bob: %v", err)
	}

	me, err := alice.Me(ctx)
	if err != nil || me == nil || me.Name != "Alice" {
		t.Fatalf("me: user=%+v err=%v", me, err)
	}

	conversationID, err := alice.CreateDirectConversation(ctx, bobID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	messageID, err := alice.SendMessage(ctx, conversationID, "hi bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := bob.ToggleReaction(ctx, messageID, "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}

	messages, err := bob.ListMessages(ctx, conversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hi bob" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if len(messages[0].ReactionEntries) != 1 {
		t.Fatalf("reaction missing: %+v", messages[0])
	}

	sidebar, err := bob.ListConversations(ctx)
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if len(sidebar) != 1 || sidebar[0].UnreadCount != 1 {
		t.Fatalf("unexpected sidebar: %+v", sidebar)
	}
	if err := bob.MarkConversationRead(ctx, conversationID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	conversation, err := alice.GetConversation(ctx, conversationID)
	if err != nil || conversation == nil {
		t.Fatalf("get conversation: conv=%v err=%v", conversation, err)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	anon := New(ts.URL, WithFallbackSubject("sub-ghost"))
	_, err := anon.CreateDirectConversation(ctx, "someone")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", apiErr.Status)
	}
	if apiErr.Message == "" {
		t.Fatalf("expected error message from response body")
	}
}
