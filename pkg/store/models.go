package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Composite lookup indexes for
// (user, session), (user, conversation) and (conversation, user) pairs
// are deliberately non-unique: write paths self-heal duplicates, and a
// unique constraint would reject the rows the healing path tolerates.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Subject   string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	NameLower string `gorm:"index;not null"`
	Email     string `gorm:"index;not null"`
	AvatarURL string
	Bio       string
	IsOnline  bool      `gorm:"index;not null"`
	LastSeen  time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type ConversationModel struct {
	ID            string         `gorm:"primaryKey"`
	IsGroup       bool           `gorm:"not null"`
	Name          string
	Members       datatypes.JSON `gorm:"type:jsonb;not null"`
	LastMessageID string
	DirectKey     string    `gorm:"index"`
	CreatedBy     string    `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null;index"`
}

type ChatMessageModel struct {
	ID             string         `gorm:"primaryKey"`
	ConversationID string         `gorm:"not null;index;index:idx_messages_conv_created,priority:1"`
	SenderID       string         `gorm:"not null;index"`
	Content        string         `gorm:"type:text;not null"`
	Deleted        bool           `gorm:"not null"`
	Reactions      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_messages_conv_created,priority:2"`
}

func (ChatMessageModel) TableName() string { return "messages" }

type UnreadCountModel struct {
	ID             string    `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;index;index:idx_unread_user_conv,priority:1"`
	ConversationID string    `gorm:"not null;index;index:idx_unread_user_conv,priority:2"`
	Count          int       `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type PresenceSessionModel struct {
	ID             string    `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;index;index:idx_presence_user_session,priority:1"`
	SessionID      string    `gorm:"not null;index:idx_presence_user_session,priority:2"`
	UserAgent      string
	LastActiveAt   time.Time `gorm:"not null"`
	DisconnectedAt *time.Time
}

func (PresenceSessionModel) TableName() string { return "presence" }

type TypingMarkerModel struct {
	ID             string    `gorm:"primaryKey"`
	ConversationID string    `gorm:"not null;index;index:idx_typing_conv_user,priority:1"`
	UserID         string    `gorm:"not null;index:idx_typing_conv_user,priority:2"`
	LastTypedAt    time.Time `gorm:"not null"`
}

func (TypingMarkerModel) TableName() string { return "typing_status" }
