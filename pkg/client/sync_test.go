package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakySync struct {
	failures int
	calls    int
}

func (f *flakySync) SyncUser(_ context.Context, _ SyncProfile) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("backend unavailable")
	}
	return "user-1", nil
}

func TestSyncRetrierBackoffSequence(t *testing.T) {
	api := &flakySync{failures: 6}
	s := NewSyncRetrier(api)
	var delays []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	userID, err := s.Sync(context.Background(), SyncProfile{Subject: "sub-alice", Name: "Alice"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("userID = %q", userID)
	}

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestSyncRetrierSuppressesUnchangedProfile(t *testing.T) {
	api := &flakySync{}
	s := NewSyncRetrier(api)

	profile := SyncProfile{Subject: "sub-alice", Name: "Alice", Email: "alice@example.com"}
	if _, err := s.Sync(context.Background(), profile); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("calls = %d, want 1", api.calls)
	}

	// Same signature: no request at all.
	if _, err := s.Sync(context.Background(), profile); err != nil {
		t.Fatalf("suppressed sync: %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("suppression failed, calls = %d", api.calls)
	}

	// Profile edit re-enables syncing.
	profile.Name = "Alice B"
	if _, err := s.Sync(context.Background(), profile); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if api.calls != 2 {
		t.Fatalf("calls = %d, want 2", api.calls)
	}
}

func TestSyncRetrierStopsOnContextCancel(t *testing.T) {
	api := &flakySync{failures: 100}
	s := NewSyncRetrier(api)
	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if _, err := s.Sync(ctx, SyncProfile{Subject: "sub-alice"}); err == nil {
		t.Fatalf("expected error after context cancel")
	}
	if api.calls != 1 {
		t.Fatalf("calls = %d, want 1", api.calls)
	}
}
