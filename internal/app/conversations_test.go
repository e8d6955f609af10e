package app

import (
	"errors"
	"testing"
	"time"
)

func TestDirectConversationDedup(t *testing.T) {
	a := newTestApp(t)
	aliceID := mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")

	id1, err := a.GetOrCreateDirectConversation("sub-alice", bobID)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Either side of the pair must land on the same row.
	id2, err := a.GetOrCreateDirectConversation("sub-bob", aliceID)
	if err != nil {
		t.Fatalf("reverse create: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("direct conversation duplicated: %s vs %s", id1, id2)
	}

	conversation, ok, err := a.GetByID("sub-alice", id1)
	if err != nil || !ok {
		t.Fatalf("get by id: ok=%v err=%v", ok, err)
	}
	if conversation.IsGroup || len(conversation.Members) != 2 {
		t.Fatalf("unexpected conversation shape: %+v", conversation)
	}
}

func TestDirectConversationTouchBumpsUpdatedAt(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")

	id, err := a.GetOrCreateDirectConversation("sub-alice", bobID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	a.now = func() time.Time { return testEpoch.Add(time.Hour) }
	if _, err := a.GetOrCreateDirectConversation("sub-alice", bobID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	conversation, _, err := a.GetByID("sub-alice", id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if !conversation.UpdatedAt.Equal(testEpoch.Add(time.Hour)) {
		t.Fatalf("updatedAt not bumped: %v", conversation.UpdatedAt)
	}
	if !conversation.CreatedAt.Equal(testEpoch) {
		t.Fatalf("createdAt must be stable: %v", conversation.CreatedAt)
	}
}

func TestDirectConversationValidation(t *testing.T) {
	a := newTestApp(t)
	aliceID := mustSyncUser(t, a, "sub-alice", "Alice")

	if _, err := a.GetOrCreateDirectConversation("sub-alice", aliceID); !IsValidation(err) {
		t.Fatalf("self conversation should be rejected, got %v", err)
	}
	if _, err := a.GetOrCreateDirectConversation("sub-alice", "no-such-user"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := a.GetOrCreateDirectConversation("sub-nobody", aliceID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateGroupConversation(t *testing.T) {
	a := newTestApp(t)
	aliceID := mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")
	carolID := mustSyncUser(t, a, "sub-carol", "Carol")

	// Caller id and duplicates in the selection are ignored.
	id, err := a.CreateGroupConversation("sub-alice", "  Weekend Plans  ", []string{bobID, bobID, aliceID, carolID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	conversation, ok, err := a.GetByID("sub-alice", id)
	if err != nil || !ok {
		t.Fatalf("get by id: ok=%v err=%v", ok, err)
	}
	if !conversation.IsGroup || conversation.Name != "Weekend Plans" {
		t.Fatalf("unexpected group: %+v", conversation)
	}
	if len(conversation.Members) != 3 || conversation.Members[0] != aliceID {
		t.Fatalf("unexpected members: %v", conversation.Members)
	}
}

func TestCreateGroupConversationValidation(t *testing.T) {
	a := newTestApp(t)
	aliceID := mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")
	carolID := mustSyncUser(t, a, "sub-carol", "Carol")

	if _, err := a.CreateGroupConversation("sub-alice", "   ", []string{bobID, carolID}); !IsValidation(err) {
		t.Fatalf("empty name should be rejected, got %v", err)
	}
	if _, err := a.CreateGroupConversation("sub-alice", "Too Small", []string{bobID, aliceID}); !IsValidation(err) {
		t.Fatalf("single non-caller member should be rejected, got %v", err)
	}
	// One missing member fails the whole creation.
	if _, err := a.CreateGroupConversation("sub-alice", "Ghosts", []string{bobID, "no-such-user"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, ok, _ := a.GetByID("sub-alice", "anything"); ok {
		t.Fatalf("no conversation should exist after failed creation")
	}
}

func TestMarkConversationRead(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")
	conversationID, err := a.GetOrCreateDirectConversation("sub-alice", bobID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.SendMessage("sub-alice", conversationID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := a.SendMessage("sub-alice", conversationID, "there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	items, err := a.ListForSidebar("sub-bob")
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if len(items) != 1 || items[0].UnreadCount != 2 {
		t.Fatalf("expected 2 unread, got %+v", items)
	}

	if err := a.MarkConversationRead("sub-bob", conversationID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	items, err = a.ListForSidebar("sub-bob")
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if items[0].UnreadCount != 0 {
		t.Fatalf("unread not cleared: %+v", items[0])
	}

	// Missing conversation is a no-op, non-member is rejected.
	if err := a.MarkConversationRead("sub-bob", "missing"); err != nil {
		t.Fatalf("missing conversation should be a no-op: %v", err)
	}
	mustSyncUser(t, a, "sub-eve", "Eve")
	if err := a.MarkConversationRead("sub-eve", conversationID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListForSidebarOrderingAndPreviews(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")
	carolID := mustSyncUser(t, a, "sub-carol", "Carol")

	bobConv, err := a.GetOrCreateDirectConversation("sub-alice", bobID)
	if err != nil {
		t.Fatalf("create bob conv: %v", err)
	}
	a.now = func() time.Time { return testEpoch.Add(time.Minute) }
	carolConv, err := a.GetOrCreateDirectConversation("sub-alice", carolID)
	if err != nil {
		t.Fatalf("create carol conv: %v", err)
	}

	items, err := a.ListForSidebar("sub-alice")
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(items))
	}
	if items[0].ID != carolConv || items[1].ID != bobConv {
		t.Fatalf("expected newest first, got %s then %s", items[0].ID, items[1].ID)
	}
	if items[0].Title != "Carol" {
		t.Fatalf("direct title should be the other user, got %q", items[0].Title)
	}
	if items[0].LastMessagePreview != "No messages yet" {
		t.Fatalf("empty conversation preview: %q", items[0].LastMessagePreview)
	}

	// Activity reorders.
	a.now = func() time.Time { return testEpoch.Add(2 * time.Minute) }
	messageID, err := a.SendMessage("sub-bob", bobConv, "ping")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	items, err = a.ListForSidebar("sub-alice")
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if items[0].ID != bobConv {
		t.Fatalf("active conversation should bubble up")
	}
	if items[0].LastMessagePreview != "ping" {
		t.Fatalf("preview should show last message, got %q", items[0].LastMessagePreview)
	}

	// Deleted last message shows the redacted preview.
	if err := a.SoftDeleteMessage("sub-bob", messageID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, err = a.ListForSidebar("sub-alice")
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if items[0].LastMessagePreview != "Message deleted" {
		t.Fatalf("expected redacted preview, got %q", items[0].LastMessagePreview)
	}
}

func TestListForSidebarMembershipFilter(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")
	mustSyncUser(t, a, "sub-eve", "Eve")

	if _, err := a.GetOrCreateDirectConversation("sub-alice", bobID); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, err := a.ListForSidebar("sub-eve")
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("non-member should see nothing, got %+v", items)
	}

	items, err = a.ListForSidebar("sub-nobody")
	if err != nil || len(items) != 0 {
		t.Fatalf("unknown identity: items=%v err=%v", items, err)
	}
}

func TestGetByIDLenient(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")
	bobID := mustSyncUser(t, a, "sub-bob", "Bob")
	mustSyncUser(t, a, "sub-eve", "Eve")
	conversationID, err := a.GetOrCreateDirectConversation("sub-alice", bobID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok, err := a.GetByID("", conversationID); err != nil || ok {
		t.Fatalf("no identity: ok=%v err=%v", ok, err)
	}
	if _, ok, err := a.GetByID("sub-alice", "missing"); err != nil || ok {
		t.Fatalf("missing conversation: ok=%v err=%v", ok, err)
	}
	if _, ok, err := a.GetByID("sub-eve", conversationID); err != nil || ok {
		t.Fatalf("non-member: ok=%v err=%v", ok, err)
	}
}
