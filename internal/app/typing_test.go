package app

import (
	"errors"
	"testing"
)

func setupDirectConversation(t *testing.T, a *App) (aliceID, bobID, conversationID string) {
	t.Helper()
	aliceID = mustSyncUser(t, a, "sub-alice", "Alice")
	bobID = mustSyncUser(t, a, "sub-bob", "Bob")
	conversationID, err := a.GetOrCreateDirectConversation("sub-alice", bobID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return aliceID, bobID, conversationID
}

func TestSetTypingVisibleToOtherMember(t *testing.T) {
	a := newTestApp(t)
	aliceID, _, conversationID := setupDirectConversation(t, a)

	if err := a.SetTyping("sub-alice", conversationID, true); err != nil {
		t.Fatalf("set typing: %v", err)
	}

	typers, err := a.ListTypingUsers("sub-bob", conversationID)
	if err != nil {
		t.Fatalf("list typing: %v", err)
	}
	if len(typers) != 1 || typers[0].UserID != aliceID || typers[0].Name != "Alice" {
		t.Fatalf("expected Alice typing, got %+v", typers)
	}

	// The typer never sees their own marker.
	own, err := a.ListTypingUsers("sub-alice", conversationID)
	if err != nil {
		t.Fatalf("list own typing: %v", err)
	}
	if len(own) != 0 {
		t.Fatalf("caller should be excluded, got %+v", own)
	}
}

func TestSetTypingStopClearsMarker(t *testing.T) {
	a := newTestApp(t)
	_, _, conversationID := setupDirectConversation(t, a)

	if err := a.SetTyping("sub-alice", conversationID, true); err != nil {
		t.Fatalf("start typing: %v", err)
	}
	if err := a.SetTyping("sub-alice", conversationID, false); err != nil {
		t.Fatalf("stop typing: %v", err)
	}

	typers, err := a.ListTypingUsers("sub-bob", conversationID)
	if err != nil {
		t.Fatalf("list typing: %v", err)
	}
	if len(typers) != 0 {
		t.Fatalf("marker should be cleared, got %+v", typers)
	}

	// Stopping again with no marker is fine.
	if err := a.SetTyping("sub-alice", conversationID, false); err != nil {
		t.Fatalf("repeat stop: %v", err)
	}
}

func TestSetTypingRepeatKeepsSingleMarker(t *testing.T) {
	a := newTestApp(t)
	_, _, conversationID := setupDirectConversation(t, a)

	for i := 0; i < 3; i++ {
		if err := a.SetTyping("sub-alice", conversationID, true); err != nil {
			t.Fatalf("set typing #%d: %v", i, err)
		}
	}

	typers, err := a.ListTypingUsers("sub-bob", conversationID)
	if err != nil {
		t.Fatalf("list typing: %v", err)
	}
	if len(typers) != 1 {
		t.Fatalf("expected one marker, got %d", len(typers))
	}
}

func TestSetTypingUnauthenticatedNoop(t *testing.T) {
	a := newTestApp(t)
	_, _, conversationID := setupDirectConversation(t, a)

	if err := a.SetTyping("", conversationID, true); err != nil {
		t.Fatalf("unauthenticated set typing should be a no-op: %v", err)
	}
	typers, err := a.ListTypingUsers("sub-bob", conversationID)
	if err != nil {
		t.Fatalf("list typing: %v", err)
	}
	if len(typers) != 0 {
		t.Fatalf("no marker expected, got %+v", typers)
	}
}

func TestTypingNonMemberForbidden(t *testing.T) {
	a := newTestApp(t)
	_, _, conversationID := setupDirectConversation(t, a)
	mustSyncUser(t, a, "sub-eve", "Eve")

	if err := a.SetTyping("sub-eve", conversationID, true); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := a.ListTypingUsers("sub-eve", conversationID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on list, got %v", err)
	}
}

func TestListTypingUsersLenientReads(t *testing.T) {
	a := newTestApp(t)
	_, _, conversationID := setupDirectConversation(t, a)

	typers, err := a.ListTypingUsers("", conversationID)
	if err != nil || len(typers) != 0 {
		t.Fatalf("no identity: typers=%v err=%v", typers, err)
	}
	typers, err = a.ListTypingUsers("sub-alice", "missing-conv")
	if err != nil || len(typers) != 0 {
		t.Fatalf("missing conversation: typers=%v err=%v", typers, err)
	}
}
