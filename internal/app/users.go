package app

import (
	"strings"

	"relaychat/internal/events"
	"relaychat/internal/util"
	"relaychat/pkg/domain"
	"relaychat/pkg/store"
)

// SyncUserInput carries the identity-provider profile for an upsert.
type SyncUserInput struct {
	Subject   string
	Name      string
	Email     string
	AvatarURL string
}

// SyncUser reconciles the internal user record with the identity
// provider. Idempotent upsert keyed by subject: the first sync creates
// the user online, later syncs refresh profile fields and timestamps.
// A verified identity must match the requested subject.
func (a *App) SyncUser(verifiedSubject string, in SyncUserInput) (string, error) {
	if verifiedSubject != "" && verifiedSubject != in.Subject {
		return "", ErrInvalidSync
	}
	if strings.TrimSpace(in.Subject) == "" {
		return "", validation("subject is required")
	}

	var userID string
	err := a.store.WithinTx(func(s store.Store) error {
		now := a.now()
		existing, ok, err := s.GetUserBySubject(in.Subject)
		if err != nil {
			return err
		}
		if ok {
			existing.Name = in.Name
			existing.NameLower = strings.ToLower(in.Name)
			existing.Email = in.Email
			existing.AvatarURL = in.AvatarURL
			existing.IsOnline = true
			existing.LastSeen = now
			existing.UpdatedAt = now
			userID = existing.ID
			return s.SaveUser(existing)
		}
		user := domain.User{
			ID:        util.NewID(),
			Subject:   in.Subject,
			Name:      in.Name,
			NameLower: strings.ToLower(in.Name),
			Email:     in.Email,
			AvatarURL: in.AvatarURL,
			IsOnline:  true,
			LastSeen:  now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		userID = user.ID
		return s.SaveUser(user)
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// GetCurrent returns the caller's user record, or ok=false when the
// identity is unknown. Missing identity is not an error on this path.
func (a *App) GetCurrent(subject string) (domain.User, bool, error) {
	return currentUser(a.store, subject)
}

// SearchForChat returns users whose name starts with the term,
// excluding the caller. Unknown identity yields an empty result.
func (a *App) SearchForChat(subject, term string, limit int) ([]domain.User, error) {
	caller, ok, err := currentUser(a.store, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.User{}, nil
	}
	if limit == 0 {
		limit = 20
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	term = strings.ToLower(strings.TrimSpace(term))
	// Fetch one extra so the caller's own row never eats into the page.
	rows, err := a.store.SearchUsersByNamePrefix(term, limit+1)
	if err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, limit)
	for _, u := range rows {
		if u.ID == caller.ID {
			continue
		}
		res = append(res, u)
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

// SetOnlineStatus overrides the caller's online flag directly.
func (a *App) SetOnlineStatus(subject string, isOnline bool) error {
	err := a.store.WithinTx(func(s store.Store) error {
		user, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		now := a.now()
		user.IsOnline = isOnline
		user.LastSeen = now
		user.UpdatedAt = now
		return s.SaveUser(user)
	})
	if err != nil {
		return err
	}
	a.publish(events.KeyPresenceChanged, map[string]any{"subject": subject, "isOnline": isOnline})
	return nil
}

// SetAvatar stores an uploaded avatar URL on the caller's profile.
func (a *App) SetAvatar(subject, avatarURL string) error {
	if strings.TrimSpace(avatarURL) == "" {
		return validation("avatar URL is required")
	}
	return a.store.WithinTx(func(s store.Store) error {
		user, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		user.AvatarURL = avatarURL
		user.UpdatedAt = a.now()
		return s.SaveUser(user)
	})
}
