package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"relaychat/internal/events"
	"relaychat/pkg/domain"
	"relaychat/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Events      events.Publisher
}

// App hosts the chat mutation/query handlers. Every mutation runs as a
// single store transaction; change notifications are published after a
// successful commit and never fail the call.
type App struct {
	store  store.Store
	events events.Publisher
	now    func() time.Time
}

// New constructs the application with database-backed storage.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &App{
		store:  dataStore,
		events: publisher,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// publish emits a change notification for the real-time delivery
// layer. Failures are logged only; the mutation already committed.
func (a *App) publish(routingKey string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.events.Publish(ctx, routingKey, payload); err != nil {
		slog.Warn("publish event failed", "routing_key", routingKey, "err", err)
	}
}

// currentUser resolves the caller's user record from the identity
// subject; empty subject means no identity.
func currentUser(s store.Store, subject string) (domain.User, bool, error) {
	if subject == "" {
		return domain.User{}, false, nil
	}
	return s.GetUserBySubject(subject)
}

func requireCurrentUser(s store.Store, subject string) (domain.User, error) {
	user, ok, err := currentUser(s, subject)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// requireConversationMember loads the conversation and checks caller
// membership.
func requireConversationMember(s store.Store, conversationID, userID string) (domain.Conversation, error) {
	conversation, ok, err := s.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		return domain.Conversation{}, ErrConversationNotFound
	}
	if !conversation.HasMember(userID) {
		return domain.Conversation{}, ErrForbidden
	}
	return conversation, nil
}
