package app

import (
	"strings"
	"time"

	"relaychat/internal/events"
	"relaychat/internal/util"
	"relaychat/pkg/domain"
	"relaychat/pkg/store"
)

const deletedMessagePlaceholder = "This message was deleted"

// SendMessage appends a message and performs the coupled bookkeeping in
// one transaction: conversation last-message pointer and updatedAt,
// unread counter increments for every other member, and the sender's
// typing markers cleared.
func (a *App) SendMessage(subject, conversationID, content string) (string, error) {
	var messageID string
	err := a.store.WithinTx(func(s store.Store) error {
		sender, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		conversation, err := requireConversationMember(s, conversationID, sender.ID)
		if err != nil {
			return err
		}
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return validation("message content is required")
		}

		now := a.now()
		message := domain.Message{
			ID:             util.NewID(),
			ConversationID: conversationID,
			SenderID:       sender.ID,
			Content:        trimmed,
			Reactions:      map[string][]string{},
			CreatedAt:      now,
		}
		if err := s.SaveMessage(message); err != nil {
			return err
		}
		messageID = message.ID

		conversation.LastMessageID = message.ID
		conversation.UpdatedAt = now
		if err := s.SaveConversation(conversation); err != nil {
			return err
		}

		for _, memberID := range conversation.Members {
			if memberID == sender.ID {
				continue
			}
			if err := incrementUnread(s, memberID, conversationID, now); err != nil {
				return err
			}
		}

		return clearTypingMarkers(s, conversationID, sender.ID)
	})
	if err != nil {
		return "", err
	}
	a.publish(events.KeyMessageSent, map[string]any{"conversationId": conversationID, "messageId": messageID})
	a.publish(events.KeyUnreadChanged, map[string]any{"conversationId": conversationID})
	return messageID, nil
}

// incrementUnread bumps the member's counter for the conversation.
// Historical duplicate rows are collapsed into the first before the
// bump so the count stays consistent.
func incrementUnread(s store.Store, userID, conversationID string, now time.Time) error {
	rows, err := s.ListUnreadForUserConversation(userID, conversationID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return s.SaveUnreadCount(domain.UnreadCount{
			ID:             util.NewID(),
			UserID:         userID,
			ConversationID: conversationID,
			Count:          1,
			UpdatedAt:      now,
		})
	}
	first := rows[0]
	for _, duplicate := range rows[1:] {
		first.Count += duplicate.Count
		if err := s.DeleteUnreadCount(duplicate.ID); err != nil {
			return err
		}
	}
	first.Count++
	first.UpdatedAt = now
	return s.SaveUnreadCount(first)
}

func clearTypingMarkers(s store.Store, conversationID, userID string) error {
	markers, err := s.ListTypingMarkersForUser(conversationID, userID)
	if err != nil {
		return err
	}
	for _, marker := range markers {
		if err := s.DeleteTypingMarker(marker.ID); err != nil {
			return err
		}
	}
	return nil
}

// SoftDeleteMessage replaces the message content with a placeholder and
// clears its reactions. Membership and the sender-only rule are checked
// before the already-deleted short circuit, so a non-sender asking
// about a deleted message still gets rejected.
func (a *App) SoftDeleteMessage(subject, messageID string) error {
	var conversationID string
	err := a.store.WithinTx(func(s store.Store) error {
		caller, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		message, found, err := s.GetMessage(messageID)
		if err != nil {
			return err
		}
		if !found {
			return ErrMessageNotFound
		}
		if _, err := requireConversationMember(s, message.ConversationID, caller.ID); err != nil {
			return err
		}
		if message.SenderID != caller.ID {
			return ErrForbidden
		}
		if message.Deleted {
			return nil
		}
		message.Deleted = true
		message.Content = deletedMessagePlaceholder
		message.Reactions = map[string][]string{}
		conversationID = message.ConversationID
		return s.SaveMessage(message)
	})
	if err != nil {
		return err
	}
	if conversationID != "" {
		a.publish(events.KeyMessageDeleted, map[string]any{"conversationId": conversationID, "messageId": messageID})
	}
	return nil
}

// ToggleReaction adds the caller's reaction to the message, or removes
// it when already present. The stored map is renormalized wholesale on
// every toggle, which heals legacy glyph keys and duplicate user ids.
func (a *App) ToggleReaction(subject, messageID, rawReaction string) error {
	var conversationID string
	err := a.store.WithinTx(func(s store.Store) error {
		caller, err := requireCurrentUser(s, subject)
		if err != nil {
			return err
		}
		message, found, err := s.GetMessage(messageID)
		if err != nil {
			return err
		}
		if !found {
			return ErrMessageNotFound
		}
		// Membership gates everything else so non-members learn nothing
		// about the message, not even that it was deleted.
		if _, err := requireConversationMember(s, message.ConversationID, caller.ID); err != nil {
			return err
		}
		if message.Deleted {
			return validation("cannot react to a deleted message")
		}
		reaction, ok := domain.ParseReaction(rawReaction)
		if !ok {
			return validation("unsupported reaction")
		}

		reactions := domain.NormalizeReactions(message.Reactions)
		key := string(reaction)
		users := reactions[key]
		removed := false
		for i, userID := range users {
			if userID == caller.ID {
				users = append(users[:i], users[i+1:]...)
				removed = true
				break
			}
		}
		if removed {
			if len(users) == 0 {
				delete(reactions, key)
			} else {
				reactions[key] = users
			}
		} else {
			reactions[key] = append(users, caller.ID)
		}

		message.Reactions = reactions
		conversationID = message.ConversationID
		return s.SaveMessage(message)
	})
	if err != nil {
		return err
	}
	a.publish(events.KeyMessageReacted, map[string]any{"conversationId": conversationID, "messageId": messageID})
	return nil
}

// ListMessages returns the conversation's messages oldest first, each
// joined with sender info and a display-ordered reaction breakdown.
// Senders are resolved once per distinct id.
func (a *App) ListMessages(subject, conversationID string) ([]domain.MessageView, error) {
	caller, err := requireCurrentUser(a.store, subject)
	if err != nil {
		return nil, err
	}
	if _, err := requireConversationMember(a.store, conversationID, caller.ID); err != nil {
		return nil, err
	}

	messages, err := a.store.ListMessagesByConversation(conversationID)
	if err != nil {
		return nil, err
	}

	senders := make(map[string]*domain.User, 4)
	views := make([]domain.MessageView, 0, len(messages))
	for _, message := range messages {
		sender, cached := senders[message.SenderID]
		if !cached {
			u, found, err := a.store.GetUserByID(message.SenderID)
			if err != nil {
				return nil, err
			}
			if found {
				sender = &u
			}
			senders[message.SenderID] = sender
		}

		message.Reactions = domain.NormalizeReactions(message.Reactions)
		views = append(views, domain.MessageView{
			Message:         message,
			Sender:          sender,
			ReactionEntries: reactionEntries(message.Reactions),
		})
	}
	return views, nil
}

// reactionEntries flattens a normalized reaction map into display order.
func reactionEntries(reactions map[string][]string) []domain.ReactionEntry {
	entries := make([]domain.ReactionEntry, 0, len(reactions))
	for _, reaction := range domain.AllReactions() {
		users, ok := reactions[string(reaction)]
		if !ok {
			continue
		}
		entries = append(entries, domain.ReactionEntry{
			Emoji:   reaction.Glyph(),
			UserIDs: users,
		})
	}
	return entries
}
