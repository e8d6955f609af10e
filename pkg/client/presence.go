package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHeartbeatInterval is the presence heartbeat cadence. It must
// stay comfortably inside the server's 35s active window so one missed
// beat does not flip the user offline.
const DefaultHeartbeatInterval = 20 * time.Second

// presenceAPI is the slice of Client the runner needs.
type presenceAPI interface {
	UpsertPresenceSession(ctx context.Context, sessionID string) error
	Heartbeat(ctx context.Context, sessionID string) error
	DisconnectPresenceSession(ctx context.Context, sessionID string) error
}

// PresenceRunner keeps one presence session alive for the lifetime of
// the process: session upsert on Start, heartbeats on a ticker,
// disconnect on Stop. Presence calls are fire-and-forget; failures are
// logged and the loop keeps going.
type PresenceRunner struct {
	api       presenceAPI
	sessionID string
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPresenceRunner creates a runner with a fresh session id.
func NewPresenceRunner(api presenceAPI) *PresenceRunner {
	return &PresenceRunner{
		api:       api,
		sessionID: uuid.NewString(),
		interval:  DefaultHeartbeatInterval,
	}
}

// SessionID returns the per-process session id.
func (p *PresenceRunner) SessionID() string { return p.sessionID }

// Start registers the session and begins heartbeating. Calling Start on
// a running runner is a no-op.
func (p *PresenceRunner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	if err := p.api.UpsertPresenceSession(runCtx, p.sessionID); err != nil {
		slog.Warn("presence session upsert failed", "err", err)
	}
	go p.loop(runCtx, p.done)
}

func (p *PresenceRunner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.api.Heartbeat(ctx, p.sessionID); err != nil {
				slog.Warn("presence heartbeat failed", "err", err)
			}
		}
	}
}

// Stop halts heartbeating and marks the session disconnected.
func (p *PresenceRunner) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	ctx, cancelDisconnect := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelDisconnect()
	if err := p.api.DisconnectPresenceSession(ctx, p.sessionID); err != nil {
		slog.Warn("presence disconnect failed", "err", err)
	}
}
