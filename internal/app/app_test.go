package app

import (
	"testing"
	"time"

	"relaychat/internal/events"
	"relaychat/pkg/store"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(Config{Store: store.NewMemoryStore(), Events: events.NopPublisher{}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	a.now = func() time.Time { return testEpoch }
	return a
}

func mustSyncUser(t *testing.T, a *App, subject, name string) string {
	t.Helper()
	id, err := a.SyncUser(subject, SyncUserInput{Subject: subject, Name: name, Email: subject + "@example.com"})
	if err != nil {
		t.Fatalf("sync user %s: %v", subject, err)
	}
	return id
}
