package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTypingPingInterval throttles isTyping=true writes while the
	// user keeps typing.
	DefaultTypingPingInterval = 1200 * time.Millisecond
	// DefaultTypingIdleTimeout is how long after the last keystroke the
	// stop signal is emitted.
	DefaultTypingIdleTimeout = 2 * time.Second
)

type typingAPI interface {
	SetTyping(ctx context.Context, conversationID string, isTyping bool) error
}

// TypingPinger translates raw keystroke notifications into the typing
// protocol: at most one isTyping=true per ping interval, and an
// automatic isTyping=false once the keystrokes stop.
type TypingPinger struct {
	api            typingAPI
	conversationID string
	pingInterval   time.Duration
	idleTimeout    time.Duration

	mu        sync.Mutex
	lastPing  time.Time
	idleTimer *time.Timer
}

// NewTypingPinger creates a pinger for one conversation.
func NewTypingPinger(api typingAPI, conversationID string) *TypingPinger {
	return &TypingPinger{
		api:            api,
		conversationID: conversationID,
		pingInterval:   DefaultTypingPingInterval,
		idleTimeout:    DefaultTypingIdleTimeout,
	}
}

// Ping records a keystroke. The true signal goes out immediately on the
// first keystroke and then at most once per interval; every call
// re-arms the idle stop timer.
func (t *TypingPinger) Ping() {
	t.mu.Lock()
	now := time.Now()
	send := t.lastPing.IsZero() || now.Sub(t.lastPing) >= t.pingInterval
	if send {
		t.lastPing = now
	}
	if t.idleTimer == nil {
		t.idleTimer = time.AfterFunc(t.idleTimeout, t.idleStop)
	} else {
		t.idleTimer.Reset(t.idleTimeout)
	}
	t.mu.Unlock()

	if send {
		t.set(true)
	}
}

// Stop emits the stop signal immediately and disarms the idle timer.
// Safe to call repeatedly (send button, input blur, unmount).
func (t *TypingPinger) Stop() {
	t.mu.Lock()
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	active := !t.lastPing.IsZero()
	t.lastPing = time.Time{}
	t.mu.Unlock()

	if active {
		t.set(false)
	}
}

func (t *TypingPinger) idleStop() {
	t.mu.Lock()
	t.idleTimer = nil
	active := !t.lastPing.IsZero()
	t.lastPing = time.Time{}
	t.mu.Unlock()

	if active {
		t.set(false)
	}
}

func (t *TypingPinger) set(isTyping bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.api.SetTyping(ctx, t.conversationID, isTyping); err != nil {
		slog.Warn("typing signal failed", "is_typing", isTyping, "err", err)
	}
}
