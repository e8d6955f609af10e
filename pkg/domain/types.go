package domain

import "time"

// User is an internal user record mapped from the identity provider.
// Subject is the provider's immutable subject id.
type User struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Name      string    `json:"name"`
	NameLower string    `json:"-"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	IsOnline  bool      `json:"isOnline"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Conversation is a direct (two member) or group (three or more) chat.
// DirectKey is set only for direct conversations and is the canonical
// order-independent key for the member pair.
type Conversation struct {
	ID            string    `json:"id"`
	IsGroup       bool      `json:"isGroup"`
	Name          string    `json:"name,omitempty"`
	Members       []string  `json:"members"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	DirectKey     string    `json:"-"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasMember reports whether the user belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the first member that is not the given user.
// Meaningful for direct conversations only.
func (c Conversation) OtherMember(userID string) (string, bool) {
	for _, id := range c.Members {
		if id != userID {
			return id, true
		}
	}
	return "", false
}

// Message is an append-only chat message. Deleted messages keep their
// row (ordering and id stability) with placeholder content.
// Reactions maps reaction storage keys to reacting user ids.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	Content        string              `json:"content"`
	Deleted        bool                `json:"deleted"`
	Reactions      map[string][]string `json:"reactions"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// UnreadCount is a per (user, conversation) pending-message counter.
type UnreadCount struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	Count          int       `json:"count"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PresenceSession is one browser tab's liveness record for a user.
type PresenceSession struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	SessionID      string     `json:"sessionId"`
	UserAgent      string     `json:"userAgent,omitempty"`
	LastActiveAt   time.Time  `json:"lastActiveAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
}

// TypingMarker signals active composition in a conversation.
type TypingMarker struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	LastTypedAt    time.Time `json:"lastTypedAt"`
}

// TypingUser is a typing marker joined with display info. Liveness
// filtering is the consumer's responsibility.
type TypingUser struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	LastTypedAt time.Time `json:"lastTypedAt"`
}

// ConversationSummary is a sidebar row.
type ConversationSummary struct {
	ID                 string    `json:"id"`
	IsGroup            bool      `json:"isGroup"`
	Title              string    `json:"title"`
	AvatarURL          string    `json:"avatarUrl,omitempty"`
	MemberCount        int       `json:"memberCount"`
	IsOnline           bool      `json:"isOnline"`
	UnreadCount        int       `json:"unreadCount"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ReactionEntry is a display-friendly reaction summary line.
type ReactionEntry struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"userIds"`
}

// MessageView is a message resolved for display: sender info attached,
// reactions normalized, plus ordered reaction entries.
type MessageView struct {
	Message
	Sender          *User           `json:"sender"`
	ReactionEntries []ReactionEntry `json:"reactionEntries"`
}
