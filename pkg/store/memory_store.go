package store

import (
	"sort"
	"strings"
	"sync"

	"relaychat/pkg/domain"
)

// MemoryStore keeps chat state in-process. It backs tests and the dev
// bootstrap mode; the gorm store is the production implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memoryData
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

// WithinTx serializes the transaction under the store mutex. The inner
// Store view operates on the shared data without re-locking.
func (m *MemoryStore) WithinTx(fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memoryTx{data: m.data})
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveUser(u)
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getUserByID(id)
}

func (m *MemoryStore) GetUserBySubject(subject string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getUserBySubject(subject)
}

func (m *MemoryStore) SearchUsersByNamePrefix(prefix string, limit int) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.searchUsersByNamePrefix(prefix, limit)
}

func (m *MemoryStore) SaveConversation(c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveConversation(c)
}

func (m *MemoryStore) GetConversation(id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getConversation(id)
}

func (m *MemoryStore) GetConversationByDirectKey(key string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getConversationByDirectKey(key)
}

func (m *MemoryStore) ListConversationsByUpdatedDesc() ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listConversationsByUpdatedDesc()
}

func (m *MemoryStore) SaveMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveMessage(msg)
}

func (m *MemoryStore) GetMessage(id string) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getMessage(id)
}

func (m *MemoryStore) ListMessagesByConversation(conversationID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listMessagesByConversation(conversationID)
}

func (m *MemoryStore) SaveUnreadCount(c domain.UnreadCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveUnreadCount(c)
}

func (m *MemoryStore) DeleteUnreadCount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteUnreadCount(id)
}

func (m *MemoryStore) ListUnreadForUserConversation(userID, conversationID string) ([]domain.UnreadCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listUnreadForUserConversation(userID, conversationID)
}

func (m *MemoryStore) ListUnreadByUser(userID string) ([]domain.UnreadCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listUnreadByUser(userID)
}

func (m *MemoryStore) SavePresenceSession(p domain.PresenceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.savePresenceSession(p)
}

func (m *MemoryStore) GetPresenceSession(userID, sessionID string) (domain.PresenceSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getPresenceSession(userID, sessionID)
}

func (m *MemoryStore) ListPresenceSessions(userID string) ([]domain.PresenceSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listPresenceSessions(userID)
}

func (m *MemoryStore) SaveTypingMarker(t domain.TypingMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveTypingMarker(t)
}

func (m *MemoryStore) DeleteTypingMarker(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteTypingMarker(id)
}

func (m *MemoryStore) ListTypingMarkersForUser(conversationID, userID string) ([]domain.TypingMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listTypingMarkersForUser(conversationID, userID)
}

func (m *MemoryStore) ListTypingMarkersByConversation(conversationID string) ([]domain.TypingMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listTypingMarkersByConversation(conversationID)
}

// memoryTx is the unlocked view handed to WithinTx callbacks.
type memoryTx struct {
	data *memoryData
}

// WithinTx nests trivially: the outer transaction already holds the lock.
func (t *memoryTx) WithinTx(fn func(Store) error) error { return fn(t) }

func (t *memoryTx) SaveUser(u domain.User) error { return t.data.saveUser(u) }
func (t *memoryTx) GetUserByID(id string) (domain.User, bool, error) {
	return t.data.getUserByID(id)
}
func (t *memoryTx) GetUserBySubject(subject string) (domain.User, bool, error) {
	return t.data.getUserBySubject(subject)
}
func (t *memoryTx) SearchUsersByNamePrefix(prefix string, limit int) ([]domain.User, error) {
	return t.data.searchUsersByNamePrefix(prefix, limit)
}
func (t *memoryTx) SaveConversation(c domain.Conversation) error { return t.data.saveConversation(c) }
func (t *memoryTx) GetConversation(id string) (domain.Conversation, bool, error) {
	return t.data.getConversation(id)
}
func (t *memoryTx) GetConversationByDirectKey(key string) (domain.Conversation, bool, error) {
	return t.data.getConversationByDirectKey(key)
}
func (t *memoryTx) ListConversationsByUpdatedDesc() ([]domain.Conversation, error) {
	return t.data.listConversationsByUpdatedDesc()
}
func (t *memoryTx) SaveMessage(msg domain.Message) error { return t.data.saveMessage(msg) }
func (t *memoryTx) GetMessage(id string) (domain.Message, bool, error) {
	return t.data.getMessage(id)
}
func (t *memoryTx) ListMessagesByConversation(conversationID string) ([]domain.Message, error) {
	return t.data.listMessagesByConversation(conversationID)
}
func (t *memoryTx) SaveUnreadCount(c domain.UnreadCount) error { return t.data.saveUnreadCount(c) }
func (t *memoryTx) DeleteUnreadCount(id string) error          { return t.data.deleteUnreadCount(id) }
func (t *memoryTx) ListUnreadForUserConversation(userID, conversationID string) ([]domain.UnreadCount, error) {
	return t.data.listUnreadForUserConversation(userID, conversationID)
}
func (t *memoryTx) ListUnreadByUser(userID string) ([]domain.UnreadCount, error) {
	return t.data.listUnreadByUser(userID)
}
func (t *memoryTx) SavePresenceSession(p domain.PresenceSession) error {
	return t.data.savePresenceSession(p)
}
func (t *memoryTx) GetPresenceSession(userID, sessionID string) (domain.PresenceSession, bool, error) {
	return t.data.getPresenceSession(userID, sessionID)
}
func (t *memoryTx) ListPresenceSessions(userID string) ([]domain.PresenceSession, error) {
	return t.data.listPresenceSessions(userID)
}
func (t *memoryTx) SaveTypingMarker(m domain.TypingMarker) error { return t.data.saveTypingMarker(m) }
func (t *memoryTx) DeleteTypingMarker(id string) error           { return t.data.deleteTypingMarker(id) }
func (t *memoryTx) ListTypingMarkersForUser(conversationID, userID string) ([]domain.TypingMarker, error) {
	return t.data.listTypingMarkersForUser(conversationID, userID)
}
func (t *memoryTx) ListTypingMarkersByConversation(conversationID string) ([]domain.TypingMarker, error) {
	return t.data.listTypingMarkersByConversation(conversationID)
}

type memoryData struct {
	users         map[string]domain.User
	userBySubject map[string]string
	conversations map[string]domain.Conversation
	convOrder     []string
	messages      map[string]domain.Message
	msgOrder      []string
	unread        map[string]domain.UnreadCount
	unreadOrder   []string
	presence      map[string]domain.PresenceSession
	presenceOrder []string
	typing        map[string]domain.TypingMarker
	typingOrder   []string
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:         make(map[string]domain.User),
		userBySubject: make(map[string]string),
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string]domain.Message),
		unread:        make(map[string]domain.UnreadCount),
		presence:      make(map[string]domain.PresenceSession),
		typing:        make(map[string]domain.TypingMarker),
	}
}

func (d *memoryData) saveUser(u domain.User) error {
	d.users[u.ID] = u
	d.userBySubject[u.Subject] = u.ID
	return nil
}

func (d *memoryData) getUserByID(id string) (domain.User, bool, error) {
	u, ok := d.users[id]
	return u, ok, nil
}

func (d *memoryData) getUserBySubject(subject string) (domain.User, bool, error) {
	id, ok := d.userBySubject[subject]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := d.users[id]
	return u, ok, nil
}

func (d *memoryData) searchUsersByNamePrefix(prefix string, limit int) ([]domain.User, error) {
	res := make([]domain.User, 0, limit)
	for _, u := range d.users {
		if prefix == "" || strings.HasPrefix(u.NameLower, prefix) {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].NameLower < res[j].NameLower })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (d *memoryData) saveConversation(c domain.Conversation) error {
	c.Members = append([]string(nil), c.Members...)
	if _, exists := d.conversations[c.ID]; !exists {
		d.convOrder = append(d.convOrder, c.ID)
	}
	d.conversations[c.ID] = c
	return nil
}

func (d *memoryData) getConversation(id string) (domain.Conversation, bool, error) {
	c, ok := d.conversations[id]
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return cloneConversation(c), true, nil
}

func (d *memoryData) getConversationByDirectKey(key string) (domain.Conversation, bool, error) {
	var found domain.Conversation
	ok := false
	for _, id := range d.convOrder {
		c, exists := d.conversations[id]
		if !exists || c.DirectKey != key {
			continue
		}
		if !ok || c.CreatedAt.Before(found.CreatedAt) {
			found = c
			ok = true
		}
	}
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return cloneConversation(found), true, nil
}

func (d *memoryData) listConversationsByUpdatedDesc() ([]domain.Conversation, error) {
	res := make([]domain.Conversation, 0, len(d.convOrder))
	for _, id := range d.convOrder {
		if c, ok := d.conversations[id]; ok {
			res = append(res, cloneConversation(c))
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func (d *memoryData) saveMessage(msg domain.Message) error {
	msg.Reactions = cloneReactions(msg.Reactions)
	if _, exists := d.messages[msg.ID]; !exists {
		d.msgOrder = append(d.msgOrder, msg.ID)
	}
	d.messages[msg.ID] = msg
	return nil
}

func (d *memoryData) getMessage(id string) (domain.Message, bool, error) {
	msg, ok := d.messages[id]
	if !ok {
		return domain.Message{}, false, nil
	}
	return cloneMessage(msg), true, nil
}

func (d *memoryData) listMessagesByConversation(conversationID string) ([]domain.Message, error) {
	res := make([]domain.Message, 0)
	for _, id := range d.msgOrder {
		msg, ok := d.messages[id]
		if !ok || msg.ConversationID != conversationID {
			continue
		}
		res = append(res, cloneMessage(msg))
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (d *memoryData) saveUnreadCount(c domain.UnreadCount) error {
	if _, exists := d.unread[c.ID]; !exists {
		d.unreadOrder = append(d.unreadOrder, c.ID)
	}
	d.unread[c.ID] = c
	return nil
}

func (d *memoryData) deleteUnreadCount(id string) error {
	delete(d.unread, id)
	return nil
}

func (d *memoryData) listUnreadForUserConversation(userID, conversationID string) ([]domain.UnreadCount, error) {
	res := make([]domain.UnreadCount, 0, 1)
	for _, id := range d.unreadOrder {
		c, ok := d.unread[id]
		if ok && c.UserID == userID && c.ConversationID == conversationID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (d *memoryData) listUnreadByUser(userID string) ([]domain.UnreadCount, error) {
	res := make([]domain.UnreadCount, 0)
	for _, id := range d.unreadOrder {
		if c, ok := d.unread[id]; ok && c.UserID == userID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (d *memoryData) savePresenceSession(p domain.PresenceSession) error {
	if p.DisconnectedAt != nil {
		at := *p.DisconnectedAt
		p.DisconnectedAt = &at
	}
	if _, exists := d.presence[p.ID]; !exists {
		d.presenceOrder = append(d.presenceOrder, p.ID)
	}
	d.presence[p.ID] = p
	return nil
}

func (d *memoryData) getPresenceSession(userID, sessionID string) (domain.PresenceSession, bool, error) {
	for _, id := range d.presenceOrder {
		p, ok := d.presence[id]
		if ok && p.UserID == userID && p.SessionID == sessionID {
			return p, true, nil
		}
	}
	return domain.PresenceSession{}, false, nil
}

func (d *memoryData) listPresenceSessions(userID string) ([]domain.PresenceSession, error) {
	res := make([]domain.PresenceSession, 0)
	for _, id := range d.presenceOrder {
		if p, ok := d.presence[id]; ok && p.UserID == userID {
			res = append(res, p)
		}
	}
	return res, nil
}

func (d *memoryData) saveTypingMarker(m domain.TypingMarker) error {
	if _, exists := d.typing[m.ID]; !exists {
		d.typingOrder = append(d.typingOrder, m.ID)
	}
	d.typing[m.ID] = m
	return nil
}

func (d *memoryData) deleteTypingMarker(id string) error {
	delete(d.typing, id)
	return nil
}

func (d *memoryData) listTypingMarkersForUser(conversationID, userID string) ([]domain.TypingMarker, error) {
	res := make([]domain.TypingMarker, 0, 1)
	for _, id := range d.typingOrder {
		m, ok := d.typing[id]
		if ok && m.ConversationID == conversationID && m.UserID == userID {
			res = append(res, m)
		}
	}
	return res, nil
}

func (d *memoryData) listTypingMarkersByConversation(conversationID string) ([]domain.TypingMarker, error) {
	res := make([]domain.TypingMarker, 0)
	for _, id := range d.typingOrder {
		if m, ok := d.typing[id]; ok && m.ConversationID == conversationID {
			res = append(res, m)
		}
	}
	return res, nil
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.Members = append([]string(nil), c.Members...)
	return c
}

func cloneMessage(msg domain.Message) domain.Message {
	msg.Reactions = cloneReactions(msg.Reactions)
	return msg
}

func cloneReactions(reactions map[string][]string) map[string][]string {
	out := make(map[string][]string, len(reactions))
	for k, v := range reactions {
		out[k] = append([]string(nil), v...)
	}
	return out
}
