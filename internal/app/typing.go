package app

import (
	"relaychat/internal/events"
	"relaychat/internal/util"
	"relaychat/pkg/domain"
	"relaychat/pkg/store"
)

// SetTyping upserts or clears the caller's typing marker for the
// conversation. At most one row per (conversation, user) survives;
// duplicates from racing writes are collapsed here. Unauthenticated
// callers are a silent no-op, non-members are rejected.
func (a *App) SetTyping(subject, conversationID string, isTyping bool) error {
	var acted bool
	err := a.store.WithinTx(func(s store.Store) error {
		user, ok, err := currentUser(s, subject)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := requireConversationMember(s, conversationID, user.ID); err != nil {
			return err
		}

		rows, err := s.ListTypingMarkersForUser(conversationID, user.ID)
		if err != nil {
			return err
		}
		var existing *domain.TypingMarker
		if len(rows) > 0 {
			existing = &rows[0]
			for _, duplicate := range rows[1:] {
				if err := s.DeleteTypingMarker(duplicate.ID); err != nil {
					return err
				}
			}
		}

		acted = true
		if !isTyping {
			if existing == nil {
				return nil
			}
			return s.DeleteTypingMarker(existing.ID)
		}

		now := a.now()
		if existing != nil {
			existing.LastTypedAt = now
			return s.SaveTypingMarker(*existing)
		}
		return s.SaveTypingMarker(domain.TypingMarker{
			ID:             util.NewID(),
			ConversationID: conversationID,
			UserID:         user.ID,
			LastTypedAt:    now,
		})
	})
	if err != nil {
		return err
	}
	if acted {
		a.publish(events.KeyTypingChanged, map[string]any{"conversationId": conversationID, "isTyping": isTyping})
	}
	return nil
}

// ListTypingUsers returns everyone currently marked typing in the
// conversation, caller excluded, joined with display names. Raw
// timestamps are returned; the 2s display window is applied by the
// consumer, not here.
func (a *App) ListTypingUsers(subject, conversationID string) ([]domain.TypingUser, error) {
	user, ok, err := currentUser(a.store, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.TypingUser{}, nil
	}

	conversation, found, err := a.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.TypingUser{}, nil
	}
	if !conversation.HasMember(user.ID) {
		return nil, ErrForbidden
	}

	rows, err := a.store.ListTypingMarkersByConversation(conversationID)
	if err != nil {
		return nil, err
	}
	res := make([]domain.TypingUser, 0, len(rows))
	for _, row := range rows {
		if row.UserID == user.ID {
			continue
		}
		member, ok, err := a.store.GetUserByID(row.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		res = append(res, domain.TypingUser{
			UserID:      member.ID,
			Name:        member.Name,
			LastTypedAt: row.LastTypedAt,
		})
	}
	return res, nil
}
