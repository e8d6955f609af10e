package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"relaychat/internal/app"
	"relaychat/internal/ratelimit"
	"relaychat/internal/usertoken"
	"relaychat/internal/util"
	"relaychat/pkg/storage"
)

const maxBodyBytes = 1 << 20
const maxAvatarBytes = 5 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	Avatars       storage.AvatarStore

	// Limiter throttles ordinary mutation routes. PresenceLimiter
	// covers the presence and typing routes, which legitimately burst
	// on the 20s heartbeat and 1.2s typing cadences and get a wider
	// quota.
	Limiter         *ratelimit.FixedWindowLimiter
	PresenceLimiter *ratelimit.FixedWindowLimiter

	// AllowFallbackSubject trusts the X-Fallback-Subject header when no
	// bearer token is present. Development deployments only.
	AllowFallbackSubject bool
}

// Server exposes HTTP endpoints for the chat backend.
type Server struct {
	app                  *app.App
	tokenVerifier        *usertoken.Verifier
	limiter              *ratelimit.FixedWindowLimiter
	presenceLimiter      *ratelimit.FixedWindowLimiter
	avatars              storage.AvatarStore
	allowFallbackSubject bool
	mux                  *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:                  cfg.App,
		tokenVerifier:        cfg.TokenVerifier,
		limiter:              cfg.Limiter,
		presenceLimiter:      cfg.PresenceLimiter,
		avatars:              cfg.Avatars,
		allowFallbackSubject: cfg.AllowFallbackSubject,
		mux:                  http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/users/sync", s.withIdentity(s.handleUserSync))
	s.mux.Handle("/users/me", s.withIdentity(s.handleUserMe))
	s.mux.Handle("/users/search", s.withIdentity(s.handleUserSearch))
	s.mux.Handle("/users/online", s.withIdentity(s.handleUserOnline))
	s.mux.Handle("/users/avatar", s.withIdentity(s.handleUserAvatar))

	s.mux.Handle("/presence/session", s.withIdentityWide(s.handlePresenceSession))
	s.mux.Handle("/presence/heartbeat", s.withIdentityWide(s.handlePresenceHeartbeat))
	s.mux.Handle("/presence/disconnect", s.withIdentityWide(s.handlePresenceDisconnect))

	s.mux.Handle("/typing", s.withIdentityWide(s.handleTyping))

	s.mux.Handle("/conversations", s.withIdentity(s.handleConversations))
	s.mux.Handle("/conversations/direct", s.withIdentity(s.handleConversationDirect))
	s.mux.Handle("/conversations/group", s.withIdentity(s.handleConversationGroup))
	s.mux.Handle("/conversations/read", s.withIdentity(s.handleConversationRead))

	s.mux.Handle("/messages", s.withIdentity(s.handleMessages))
	s.mux.Handle("/messages/delete", s.withIdentity(s.handleMessageDelete))
	s.mux.Handle("/messages/reaction", s.withIdentity(s.handleMessageReaction))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type subjectHandler func(http.ResponseWriter, *http.Request, string)

// withIdentity resolves the caller's identity subject. A bearer token is
// verified against the identity provider's JWKS; an invalid token is
// rejected outright. Absent any token the subject stays empty and the
// handler decides how lenient to be, matching the read-path semantics.
func (s *Server) withIdentity(next subjectHandler) http.Handler {
	return s.identityHandler(next, s.limiter)
}

// withIdentityWide is withIdentity with the presence/typing quota.
func (s *Server) withIdentityWide(next subjectHandler) http.Handler {
	return s.identityHandler(next, s.presenceLimiter)
}

func (s *Server) identityHandler(next subjectHandler, limiter *ratelimit.FixedWindowLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := ""
		if token, ok := bearerToken(r); ok {
			if s.tokenVerifier == nil {
				writeError(w, http.StatusInternalServerError, "token verifier not configured")
				return
			}
			verified, err := s.tokenVerifier.VerifySubject(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			subject = verified
		} else if s.allowFallbackSubject {
			subject = strings.TrimSpace(r.Header.Get("X-Fallback-Subject"))
		}
		if r.Method != http.MethodGet && !allowRate(limiter, subject, r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r, subject)
	})
}

func allowRate(limiter *ratelimit.FixedWindowLimiter, subject string, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	key := subject
	if key == "" {
		key = util.ClientIP(r)
	}
	return limiter.Allow(key)
}

func (s *Server) handleUserSync(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Subject   string `json:"subject"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatarUrl"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, err := s.app.SyncUser(subject, app.SyncUserInput{
		Subject:   req.Subject,
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidSync) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": userID})
}

func (s *Server) handleUserMe(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok, err := s.app.GetCurrent(subject)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleUserSearch(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit = atoiDefault(raw, 0)
	}
	users, err := s.app.SearchForChat(subject, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleUserOnline(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		IsOnline bool `json:"isOnline"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.SetOnlineStatus(subject, req.IsOnline); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUserAvatar(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.avatars == nil {
		writeError(w, http.StatusNotImplemented, "avatar storage not configured")
		return
	}
	user, ok, err := s.app.GetCurrent(subject)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	switch contentType {
	case "image/png", "image/jpeg", "image/webp":
	default:
		writeError(w, http.StatusBadRequest, "unsupported avatar content type")
		return
	}
	url, err := s.avatars.Upload(r.Context(), user.ID, file, header.Size, contentType)
	if err != nil {
		writeError(w, http.StatusBadGateway, "avatar storage unavailable")
		return
	}
	if err := s.app.SetAvatar(subject, url); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatarUrl": url})
}

func (s *Server) handlePresenceSession(w http.ResponseWriter, r *http.Request, subject string) {
	s.handlePresence(w, r, func(sessionID string) error {
		return s.app.UpsertSession(subject, sessionID, r.UserAgent())
	})
}

func (s *Server) handlePresenceHeartbeat(w http.ResponseWriter, r *http.Request, subject string) {
	s.handlePresence(w, r, func(sessionID string) error {
		return s.app.Heartbeat(subject, sessionID)
	})
}

func (s *Server) handlePresenceDisconnect(w http.ResponseWriter, r *http.Request, subject string) {
	s.handlePresence(w, r, func(sessionID string) error {
		return s.app.DisconnectSession(subject, sessionID)
	})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request, call func(sessionID string) error) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := call(req.SessionID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request, subject string) {
	switch r.Method {
	case http.MethodGet:
		typers, err := s.app.ListTypingUsers(subject, r.URL.Query().Get("conversationId"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"typing": typers})
	case http.MethodPost:
		var req struct {
			ConversationID string `json:"conversationId"`
			IsTyping       bool   `json:"isTyping"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.app.SetTyping(subject, req.ConversationID, req.IsTyping); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		conversation, ok, err := s.app.GetByID(subject, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"conversation": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation})
		return
	}
	items, err := s.app.ListForSidebar(subject)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": items})
}

func (s *Server) handleConversationDirect(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	conversationID, err := s.app.GetOrCreateDirectConversation(subject, req.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"conversationId": conversationID})
}

func (s *Server) handleConversationGroup(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"memberIds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	conversationID, err := s.app.CreateGroupConversation(subject, req.Name, req.MemberIDs)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"conversationId": conversationID})
}

func (s *Server) handleConversationRead(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.MarkConversationRead(subject, req.ConversationID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, subject string) {
	switch r.Method {
	case http.MethodGet:
		views, err := s.app.ListMessages(subject, r.URL.Query().Get("conversationId"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": views})
	case http.MethodPost:
		var req struct {
			ConversationID string `json:"conversationId"`
			Content        string `json:"content"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		messageID, err := s.app.SendMessage(subject, req.ConversationID, req.Content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"messageId": messageID})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMessageDelete(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		MessageID string `json:"messageId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.SoftDeleteMessage(subject, req.MessageID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessageReaction(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		MessageID string `json:"messageId"`
		Reaction  string `json:"reaction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.ToggleReaction(subject, req.MessageID, req.Reaction); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps the app error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case app.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case app.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
