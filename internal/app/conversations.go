package app

import (
	"sort"
	"strings"

	"relaychat/internal/events"
	"relaychat/internal/util"
	"relaychat/pkg/domain"
	"relaychat/pkg/store"
)

const sidebarLimit = 50

// makeDirectKey builds the canonical order-independent key for a 1:1
// conversation: the two user ids sorted and joined.
func makeDirectKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// GetOrCreateDirectConversation finds the live direct conversation with
// the target user, or creates it. Calling with either side of the pair
// lands on the same row; an existing conversation only gets its
// updatedAt bumped (touch semantics, no duplicate creation).
func (a *App) GetOrCreateDirectConversation(subject, targetUserID string) (string, error) {
	var conversationID string
	err := a.store.WithinTx(func(s store.Store) error {
		caller, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		if caller.ID == targetUserID {
			return validation("cannot create a conversation with yourself")
		}
		if _, ok, err := s.GetUserByID(targetUserID); err != nil {
			return err
		} else if !ok {
			return ErrUserNotFound
		}

		directKey := makeDirectKey(caller.ID, targetUserID)
		existing, found, err := s.GetConversationByDirectKey(directKey)
		if err != nil {
			return err
		}
		if found && !existing.IsGroup {
			existing.UpdatedAt = a.now()
			conversationID = existing.ID
			return s.SaveConversation(existing)
		}

		now := a.now()
		conversation := domain.Conversation{
			ID:        util.NewID(),
			IsGroup:   false,
			Members:   []string{caller.ID, targetUserID},
			DirectKey: directKey,
			CreatedBy: caller.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		conversationID = conversation.ID
		return s.SaveConversation(conversation)
	})
	if err != nil {
		return "", err
	}
	a.publish(events.KeyConversationUpdated, map[string]any{"conversationId": conversationID})
	return conversationID, nil
}

// CreateGroupConversation creates a named group with the caller plus at
// least two other distinct members. Every selected member must still
// exist; the call fails wholesale otherwise.
func (a *App) CreateGroupConversation(subject, name string, memberIDs []string) (string, error) {
	var conversationID string
	err := a.store.WithinTx(func(s store.Store) error {
		caller, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		trimmedName := strings.TrimSpace(name)
		if trimmedName == "" {
			return validation("group name is required")
		}

		selected := make([]string, 0, len(memberIDs))
		seen := map[string]struct{}{caller.ID: {}}
		for _, id := range memberIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			selected = append(selected, id)
		}
		if len(selected) < 2 {
			return validation("select at least 2 members")
		}
		for _, memberID := range selected {
			if _, ok, err := s.GetUserByID(memberID); err != nil {
				return err
			} else if !ok {
				return ErrUserNotFound
			}
		}

		now := a.now()
		conversation := domain.Conversation{
			ID:        util.NewID(),
			IsGroup:   true,
			Name:      trimmedName,
			Members:   append([]string{caller.ID}, selected...),
			CreatedBy: caller.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		conversationID = conversation.ID
		return s.SaveConversation(conversation)
	})
	if err != nil {
		return "", err
	}
	a.publish(events.KeyConversationUpdated, map[string]any{"conversationId": conversationID})
	return conversationID, nil
}

// MarkConversationRead clears the caller's unread counters for the
// conversation, including any historical duplicate rows. Missing
// conversation is a no-op; non-membership is rejected.
func (a *App) MarkConversationRead(subject, conversationID string) error {
	var acted bool
	err := a.store.WithinTx(func(s store.Store) error {
		caller, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		conversation, found, err := s.GetConversation(conversationID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if !conversation.HasMember(caller.ID) {
			return ErrForbidden
		}

		rows, err := s.ListUnreadForUserConversation(caller.ID, conversationID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := s.DeleteUnreadCount(row.ID); err != nil {
				return err
			}
		}
		acted = len(rows) > 0
		return nil
	})
	if err != nil {
		return err
	}
	if acted {
		a.publish(events.KeyUnreadChanged, map[string]any{"conversationId": conversationID})
	}
	return nil
}

// ListForSidebar returns the caller's 50 most recently active
// conversations with display metadata. Conversations beyond the cap
// stay invisible until they become active again; there is no
// pagination follow-up.
func (a *App) ListForSidebar(subject string) ([]domain.ConversationSummary, error) {
	caller, ok, err := currentUser(a.store, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.ConversationSummary{}, nil
	}

	conversations, err := a.store.ListConversationsByUpdatedDesc()
	if err != nil {
		return nil, err
	}
	unreadRows, err := a.store.ListUnreadByUser(caller.ID)
	if err != nil {
		return nil, err
	}
	// Sum rather than take-first: defensive against historical duplicates.
	unreadByConversation := make(map[string]int, len(unreadRows))
	for _, row := range unreadRows {
		unreadByConversation[row.ConversationID] += row.Count
	}

	items := make([]domain.ConversationSummary, 0, sidebarLimit)
	for _, conversation := range conversations {
		if !conversation.HasMember(caller.ID) {
			continue
		}
		item, err := a.summarizeConversation(conversation, caller.ID, unreadByConversation[conversation.ID])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if len(items) == sidebarLimit {
			break
		}
	}
	return items, nil
}

func (a *App) summarizeConversation(conversation domain.Conversation, callerID string, unread int) (domain.ConversationSummary, error) {
	item := domain.ConversationSummary{
		ID:            conversation.ID,
		IsGroup:       conversation.IsGroup,
		MemberCount:   len(conversation.Members),
		UnreadCount:   unread,
		LastMessageAt: conversation.UpdatedAt,
		UpdatedAt:     conversation.UpdatedAt,
	}

	if conversation.IsGroup {
		item.Title = conversation.Name
		if item.Title == "" {
			item.Title = "Group Chat"
		}
	} else {
		item.Title = "Unknown User"
		if otherID, ok := conversation.OtherMember(callerID); ok {
			other, found, err := a.store.GetUserByID(otherID)
			if err != nil {
				return domain.ConversationSummary{}, err
			}
			if found {
				item.Title = other.Name
				item.AvatarURL = other.AvatarURL
				item.IsOnline = other.IsOnline
			}
		}
	}

	item.LastMessagePreview = "No messages yet"
	if conversation.LastMessageID != "" {
		lastMessage, found, err := a.store.GetMessage(conversation.LastMessageID)
		if err != nil {
			return domain.ConversationSummary{}, err
		}
		if found {
			if lastMessage.Deleted {
				item.LastMessagePreview = "Message deleted"
			} else {
				item.LastMessagePreview = lastMessage.Content
			}
			item.LastMessageAt = lastMessage.CreatedAt
		}
	}
	return item, nil
}

// GetByID returns the conversation when the caller is a member.
// Read-path leniency: unauthenticated, missing, and non-member cases
// all come back as ok=false rather than an error.
func (a *App) GetByID(subject, conversationID string) (domain.Conversation, bool, error) {
	caller, ok, err := currentUser(a.store, subject)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	if !ok {
		return domain.Conversation{}, false, nil
	}
	conversation, found, err := a.store.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	if !found || !conversation.HasMember(caller.ID) {
		return domain.Conversation{}, false, nil
	}
	return conversation, true, nil
}
