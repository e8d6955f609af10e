package client

import (
	"context"
	"log/slog"
	"time"
)

const (
	syncBackoffInitial = 500 * time.Millisecond
	syncBackoffMax     = 8 * time.Second
)

type syncAPI interface {
	SyncUser(ctx context.Context, profile SyncProfile) (string, error)
}

// SyncRetrier pushes the identity profile to the backend with
// exponential backoff, and suppresses re-syncs while the profile
// signature is unchanged. A later failure or a profile edit re-enables
// syncing.
type SyncRetrier struct {
	api   syncAPI
	sleep func(ctx context.Context, d time.Duration) error

	syncedSignature string
}

// NewSyncRetrier creates a retrier.
func NewSyncRetrier(api syncAPI) *SyncRetrier {
	return &SyncRetrier{
		api:   api,
		sleep: sleepCtx,
	}
}

// Sync ensures the profile is synced, retrying with backoff
// 500ms, 1s, 2s, 4s, then 8s per attempt until the context ends.
// Returns the user id, or "" when the profile was already synced.
func (s *SyncRetrier) Sync(ctx context.Context, profile SyncProfile) (string, error) {
	signature := profile.Subject + "|" + profile.Name + "|" + profile.Email + "|" + profile.AvatarURL
	if signature == s.syncedSignature {
		return "", nil
	}

	delay := syncBackoffInitial
	for {
		userID, err := s.api.SyncUser(ctx, profile)
		if err == nil {
			s.syncedSignature = signature
			return userID, nil
		}
		slog.Warn("user sync failed, retrying", "delay", delay, "err", err)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return "", err
		}
		if delay < syncBackoffMax {
			delay *= 2
			if delay > syncBackoffMax {
				delay = syncBackoffMax
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
