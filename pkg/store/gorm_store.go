package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"relaychat/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ConversationModel{},
		&ChatMessageModel{},
		&UnreadCountModel{},
		&PresenceSessionModel{},
		&TypingMarkerModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// WithinTx runs fn inside a database transaction.
func (s *GormStore) WithinTx(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// SaveUser inserts or updates a user row.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "name_lower", "email", "avatar_url", "bio", "is_online", "last_seen", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by row id.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserBySubject looks up a user by identity-provider subject.
func (s *GormStore) GetUserBySubject(subject string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "subject = ?", subject).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SearchUsersByNamePrefix returns users whose lowercased name starts
// with prefix, ordered by name. Empty prefix returns the first page.
func (s *GormStore) SearchUsersByNamePrefix(prefix string, limit int) ([]domain.User, error) {
	tx := s.db.Order("name_lower ASC").Limit(limit)
	if prefix != "" {
		tx = tx.Where("name_lower >= ? AND name_lower < ?", prefix, prefix+"\uffff")
	}
	var models []UserModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// SaveConversation inserts or updates a conversation row.
func (s *GormStore) SaveConversation(c domain.Conversation) error {
	model, err := conversationToModel(c)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "members", "last_message_id", "updated_at"}),
	}).Create(&model).Error
}

// GetConversation retrieves a conversation by id.
func (s *GormStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	c, err := conversationFromModel(model)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return c, true, nil
}

// GetConversationByDirectKey finds a direct conversation by its
// canonical pair key. When historical duplicates exist the oldest row
// wins, matching the read-path tolerance for pre-uniqueness data.
func (s *GormStore) GetConversationByDirectKey(key string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.Order("created_at ASC").First(&model, "direct_key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	c, err := conversationFromModel(model)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return c, true, nil
}

// ListConversationsByUpdatedDesc returns all conversations, most
// recently updated first. Membership filtering happens in the caller;
// members live in a JSON column the index cannot serve.
func (s *GormStore) ListConversationsByUpdatedDesc() ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		c, err := conversationFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// SaveMessage inserts or updates a message row.
func (s *GormStore) SaveMessage(msg domain.Message) error {
	model, err := messageToModel(msg)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "deleted", "reactions"}),
	}).Create(&model).Error
}

// GetMessage retrieves a message by id.
func (s *GormStore) GetMessage(id string) (domain.Message, bool, error) {
	var model ChatMessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	msg, err := messageFromModel(model)
	if err != nil {
		return domain.Message{}, false, err
	}
	return msg, true, nil
}

// ListMessagesByConversation returns the conversation's messages in
// creation order via the compound index.
func (s *GormStore) ListMessagesByConversation(conversationID string) ([]domain.Message, error) {
	var models []ChatMessageModel
	if err := s.db.Where("conversation_id = ?", conversationID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msg, err := messageFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, nil
}

// SaveUnreadCount inserts or updates an unread counter row.
func (s *GormStore) SaveUnreadCount(c domain.UnreadCount) error {
	model := UnreadCountModel(c)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
	}).Create(&model).Error
}

// DeleteUnreadCount removes an unread counter row.
func (s *GormStore) DeleteUnreadCount(id string) error {
	return s.db.Delete(&UnreadCountModel{}, "id = ?", id).Error
}

// ListUnreadForUserConversation returns every counter row for the pair,
// oldest first, so callers can collapse duplicates.
func (s *GormStore) ListUnreadForUserConversation(userID, conversationID string) ([]domain.UnreadCount, error) {
	var models []UnreadCountModel
	err := s.db.Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("updated_at ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	return unreadFromModels(models), nil
}

// ListUnreadByUser returns all counter rows for the user.
func (s *GormStore) ListUnreadByUser(userID string) ([]domain.UnreadCount, error) {
	var models []UnreadCountModel
	if err := s.db.Where("user_id = ?", userID).Find(&models).Error; err != nil {
		return nil, err
	}
	return unreadFromModels(models), nil
}

// SavePresenceSession inserts or updates a presence session row.
func (s *GormStore) SavePresenceSession(p domain.PresenceSession) error {
	model := PresenceSessionModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_agent", "last_active_at", "disconnected_at"}),
	}).Create(&model).Error
}

// GetPresenceSession returns the first row for (user, session).
func (s *GormStore) GetPresenceSession(userID, sessionID string) (domain.PresenceSession, bool, error) {
	var model PresenceSessionModel
	err := s.db.Order("last_active_at ASC").First(&model, "user_id = ? AND session_id = ?", userID, sessionID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PresenceSession{}, false, nil
		}
		return domain.PresenceSession{}, false, err
	}
	return domain.PresenceSession(model), true, nil
}

// ListPresenceSessions returns all sessions for the user.
func (s *GormStore) ListPresenceSessions(userID string) ([]domain.PresenceSession, error) {
	var models []PresenceSessionModel
	if err := s.db.Where("user_id = ?", userID).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PresenceSession, 0, len(models))
	for _, m := range models {
		res = append(res, domain.PresenceSession(m))
	}
	return res, nil
}

// SaveTypingMarker inserts or updates a typing marker row.
func (s *GormStore) SaveTypingMarker(m domain.TypingMarker) error {
	model := TypingMarkerModel(m)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_typed_at"}),
	}).Create(&model).Error
}

// DeleteTypingMarker removes a typing marker row.
func (s *GormStore) DeleteTypingMarker(id string) error {
	return s.db.Delete(&TypingMarkerModel{}, "id = ?", id).Error
}

// ListTypingMarkersForUser returns every marker row for the pair,
// oldest first, so callers can collapse duplicates.
func (s *GormStore) ListTypingMarkersForUser(conversationID, userID string) ([]domain.TypingMarker, error) {
	var models []TypingMarkerModel
	err := s.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("last_typed_at ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	return typingFromModels(models), nil
}

// ListTypingMarkersByConversation returns all markers for the conversation.
func (s *GormStore) ListTypingMarkersByConversation(conversationID string) ([]domain.TypingMarker, error) {
	var models []TypingMarkerModel
	if err := s.db.Where("conversation_id = ?", conversationID).Find(&models).Error; err != nil {
		return nil, err
	}
	return typingFromModels(models), nil
}

func userToModel(u domain.User) UserModel {
	return UserModel(u)
}

func userFromModel(m UserModel) domain.User {
	return domain.User(m)
}

func conversationToModel(c domain.Conversation) (ConversationModel, error) {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return ConversationModel{}, fmt.Errorf("encode members: %w", err)
	}
	return ConversationModel{
		ID:            c.ID,
		IsGroup:       c.IsGroup,
		Name:          c.Name,
		Members:       datatypes.JSON(members),
		LastMessageID: c.LastMessageID,
		DirectKey:     c.DirectKey,
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}, nil
}

func conversationFromModel(m ConversationModel) (domain.Conversation, error) {
	var members []string
	if len(m.Members) > 0 {
		if err := json.Unmarshal(m.Members, &members); err != nil {
			return domain.Conversation{}, fmt.Errorf("decode members: %w", err)
		}
	}
	return domain.Conversation{
		ID:            m.ID,
		IsGroup:       m.IsGroup,
		Name:          m.Name,
		Members:       members,
		LastMessageID: m.LastMessageID,
		DirectKey:     m.DirectKey,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func messageToModel(msg domain.Message) (ChatMessageModel, error) {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	encoded, err := json.Marshal(reactions)
	if err != nil {
		return ChatMessageModel{}, fmt.Errorf("encode reactions: %w", err)
	}
	return ChatMessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Deleted:        msg.Deleted,
		Reactions:      datatypes.JSON(encoded),
		CreatedAt:      msg.CreatedAt,
	}, nil
}

func messageFromModel(m ChatMessageModel) (domain.Message, error) {
	reactions := map[string][]string{}
	if len(m.Reactions) > 0 {
		if err := json.Unmarshal(m.Reactions, &reactions); err != nil {
			return domain.Message{}, fmt.Errorf("decode reactions: %w", err)
		}
	}
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Deleted:        m.Deleted,
		Reactions:      reactions,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func unreadFromModels(models []UnreadCountModel) []domain.UnreadCount {
	res := make([]domain.UnreadCount, 0, len(models))
	for _, m := range models {
		res = append(res, domain.UnreadCount(m))
	}
	return res
}

func typingFromModels(models []TypingMarkerModel) []domain.TypingMarker {
	res := make([]domain.TypingMarker, 0, len(models))
	for _, m := range models {
		res = append(res, domain.TypingMarker(m))
	}
	return res
}
