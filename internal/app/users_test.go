package app

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncUserCreatesThenUpdates(t *testing.T) {
	a := newTestApp(t)

	id1, err := a.SyncUser("sub-alice", SyncUserInput{Subject: "sub-alice", Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}

	id2, err := a.SyncUser("sub-alice", SyncUserInput{Subject: "sub-alice", Name: "Alice B", Email: "alice@new.example.com"})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected stable user id, got %s then %s", id1, id2)
	}

	user, ok, err := a.GetCurrent("sub-alice")
	if err != nil || !ok {
		t.Fatalf("get current: ok=%v err=%v", ok, err)
	}
	if user.Name != "Alice B" || user.Email != "alice@new.example.com" {
		t.Fatalf("profile not updated: %+v", user)
	}
	if !user.IsOnline {
		t.Fatalf("synced user should be online")
	}
}

func TestSyncUserRejectsSubjectMismatch(t *testing.T) {
	a := newTestApp(t)

	_, err := a.SyncUser("sub-alice", SyncUserInput{Subject: "sub-mallory", Name: "Mallory"})
	if !errors.Is(err, ErrInvalidSync) {
		t.Fatalf("expected ErrInvalidSync, got %v", err)
	}
}

func TestSyncUserRequiresSubject(t *testing.T) {
	a := newTestApp(t)

	_, err := a.SyncUser("", SyncUserInput{Subject: "  ", Name: "Ghost"})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetCurrentUnknownIdentity(t *testing.T) {
	a := newTestApp(t)

	if _, ok, err := a.GetCurrent(""); err != nil || ok {
		t.Fatalf("empty subject: ok=%v err=%v", ok, err)
	}
	if _, ok, err := a.GetCurrent("sub-nobody"); err != nil || ok {
		t.Fatalf("unknown subject: ok=%v err=%v", ok, err)
	}
}

func TestSearchForChatExcludesCaller(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")
	mustSyncUser(t, a, "sub-albert", "Albert")
	mustSyncUser(t, a, "sub-bob", "Bob")

	res, err := a.SearchForChat("sub-alice", "al", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Name != "Albert" {
		t.Fatalf("expected only Albert, got %+v", res)
	}

	for _, u := range res {
		if u.Subject == "sub-alice" {
			t.Fatalf("caller leaked into results")
		}
	}
}

// Out-of-range limits clamp to the [1, 50] window instead of falling
// back to the default page size.
func TestSearchForChatLimitClamping(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-caller", "Zed")
	for i := 0; i < 25; i++ {
		subject := fmt.Sprintf("sub-user-%02d", i)
		mustSyncUser(t, a, subject, fmt.Sprintf("User %02d", i))
	}

	// Zero means unset and gets the default page of 20.
	res, err := a.SearchForChat("sub-caller", "user", 0)
	if err != nil {
		t.Fatalf("search default: %v", err)
	}
	if len(res) != 20 {
		t.Fatalf("default limit returned %d, want 20", len(res))
	}

	// Negative clamps up to 1.
	res, err = a.SearchForChat("sub-caller", "user", -5)
	if err != nil {
		t.Fatalf("search negative: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("negative limit returned %d, want 1", len(res))
	}

	// Over the cap clamps down to 50, not back to 20.
	res, err = a.SearchForChat("sub-caller", "user", 100)
	if err != nil {
		t.Fatalf("search oversized: %v", err)
	}
	if len(res) != 25 {
		t.Fatalf("oversized limit returned %d, want all 25", len(res))
	}
}

func TestSearchForChatUnknownCallerEmpty(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")

	res, err := a.SearchForChat("sub-nobody", "a", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestSetOnlineStatus(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")

	if err := a.SetOnlineStatus("sub-alice", false); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	user, _, err := a.GetCurrent("sub-alice")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if user.IsOnline {
		t.Fatalf("user should be offline")
	}

	if err := a.SetOnlineStatus("sub-nobody", true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSetAvatar(t *testing.T) {
	a := newTestApp(t)
	mustSyncUser(t, a, "sub-alice", "Alice")

	if err := a.SetAvatar("sub-alice", "https://cdn.example.com/a.png"); err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	user, _, _ := a.GetCurrent("sub-alice")
	if user.AvatarURL != "https://cdn.example.com/a.png" {
		t.Fatalf("avatar not stored: %q", user.AvatarURL)
	}

	if err := a.SetAvatar("sub-alice", "   "); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
