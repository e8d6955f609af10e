package app

import (
	"time"

	"relaychat/internal/events"
	"relaychat/internal/util"
	"relaychat/pkg/domain"
	"relaychat/pkg/store"
)

// ActiveWindow is the span after which a silent session counts as
// disconnected. Clients heartbeat every 20s, so one missed beat is
// tolerated before the user flips offline.
const ActiveWindow = 35 * time.Second

// UpsertSession registers or refreshes a per-tab presence session and
// recomputes the user's aggregate online flag. Unauthenticated callers
// are a silent no-op: presence must never block rendering.
func (a *App) UpsertSession(subject, sessionID, userAgent string) error {
	return a.presenceMutation(subject, sessionID, func(s store.Store, user domain.User, existing domain.PresenceSession, found bool, now time.Time) error {
		if found {
			existing.LastActiveAt = now
			existing.DisconnectedAt = nil
			existing.UserAgent = userAgent
			return s.SavePresenceSession(existing)
		}
		return s.SavePresenceSession(domain.PresenceSession{
			ID:           util.NewID(),
			UserID:       user.ID,
			SessionID:    sessionID,
			UserAgent:    userAgent,
			LastActiveAt: now,
		})
	})
}

// Heartbeat refreshes the session's last-active timestamp, creating the
// row when it is missing (a tab that outlived a server restart).
func (a *App) Heartbeat(subject, sessionID string) error {
	return a.presenceMutation(subject, sessionID, func(s store.Store, user domain.User, existing domain.PresenceSession, found bool, now time.Time) error {
		if found {
			existing.LastActiveAt = now
			existing.DisconnectedAt = nil
			return s.SavePresenceSession(existing)
		}
		return s.SavePresenceSession(domain.PresenceSession{
			ID:           util.NewID(),
			UserID:       user.ID,
			SessionID:    sessionID,
			LastActiveAt: now,
		})
	})
}

// DisconnectSession marks the session as gone (tab closed).
func (a *App) DisconnectSession(subject, sessionID string) error {
	return a.presenceMutation(subject, sessionID, func(s store.Store, user domain.User, existing domain.PresenceSession, found bool, now time.Time) error {
		if !found {
			return nil
		}
		existing.LastActiveAt = now
		existing.DisconnectedAt = &now
		return s.SavePresenceSession(existing)
	})
}

func (a *App) presenceMutation(subject, sessionID string, apply func(store.Store, domain.User, domain.PresenceSession, bool, time.Time) error) error {
	if sessionID == "" {
		return nil
	}
	var (
		userID string
		online bool
		acted  bool
	)
	err := a.store.WithinTx(func(s store.Store) error {
		user, ok, err := currentUser(s, subject)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		now := a.now()
		existing, found, err := s.GetPresenceSession(user.ID, sessionID)
		if err != nil {
			return err
		}
		if err := apply(s, user, existing, found, now); err != nil {
			return err
		}
		online, err = recomputeUserOnline(s, user, now)
		if err != nil {
			return err
		}
		userID = user.ID
		acted = true
		return nil
	})
	if err != nil {
		return err
	}
	if acted {
		a.publish(events.KeyPresenceChanged, map[string]any{"userId": userID, "isOnline": online})
	}
	return nil
}

// recomputeUserOnline derives the aggregate online flag from all of the
// user's sessions. Sessions silent beyond the active window are lazily
// stamped disconnected here; there is no background sweep.
func recomputeUserOnline(s store.Store, user domain.User, now time.Time) (bool, error) {
	sessions, err := s.ListPresenceSessions(user.ID)
	if err != nil {
		return false, err
	}

	cutoff := now.Add(-ActiveWindow)
	hasActive := false
	for _, session := range sessions {
		active := session.DisconnectedAt == nil && !session.LastActiveAt.Before(cutoff)
		if !active && session.DisconnectedAt == nil {
			stamp := now
			session.DisconnectedAt = &stamp
			if err := s.SavePresenceSession(session); err != nil {
				return false, err
			}
		}
		if active {
			hasActive = true
		}
	}

	user.IsOnline = hasActive
	user.LastSeen = now
	user.UpdatedAt = now
	if err := s.SaveUser(user); err != nil {
		return false, err
	}
	return hasActive, nil
}
