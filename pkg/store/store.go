package store

import "relaychat/pkg/domain"

// Store defines persistence for chat entities. Save methods upsert by
// row id. Lookups that should be unique in practice (direct key, user
// session, unread counter, typing marker) return lists so callers can
// collapse duplicate rows opportunistically; the store enforces no
// declarative uniqueness beyond primary keys.
type Store interface {
	// WithinTx runs fn atomically. Handlers wrap each mutation in a
	// single transaction so no interleaving is observable per call.
	WithinTx(fn func(Store) error) error

	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserBySubject(subject string) (domain.User, bool, error)
	SearchUsersByNamePrefix(prefix string, limit int) ([]domain.User, error)

	// conversations
	SaveConversation(domain.Conversation) error
	GetConversation(id string) (domain.Conversation, bool, error)
	GetConversationByDirectKey(key string) (domain.Conversation, bool, error)
	ListConversationsByUpdatedDesc() ([]domain.Conversation, error)

	// messages
	SaveMessage(domain.Message) error
	GetMessage(id string) (domain.Message, bool, error)
	ListMessagesByConversation(conversationID string) ([]domain.Message, error)

	// unread counters
	SaveUnreadCount(domain.UnreadCount) error
	DeleteUnreadCount(id string) error
	ListUnreadForUserConversation(userID, conversationID string) ([]domain.UnreadCount, error)
	ListUnreadByUser(userID string) ([]domain.UnreadCount, error)

	// presence sessions
	SavePresenceSession(domain.PresenceSession) error
	GetPresenceSession(userID, sessionID string) (domain.PresenceSession, bool, error)
	ListPresenceSessions(userID string) ([]domain.PresenceSession, error)

	// typing markers
	SaveTypingMarker(domain.TypingMarker) error
	DeleteTypingMarker(id string) error
	ListTypingMarkersForUser(conversationID, userID string) ([]domain.TypingMarker, error)
	ListTypingMarkersByConversation(conversationID string) ([]domain.TypingMarker, error)
}
