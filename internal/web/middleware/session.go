package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/database"
)

const sessionCookieName = "blinkpay_session"

// Session is an anonymous browser session.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager handles session creation and validation
type SessionManager struct {
	secret   []byte
	secure   bool
	repo     database.SessionStore
	log      zerolog.Logger
	sessions map[string]*Session
	onExpire []func(id string)
	mu       sync.RWMutex
	now      func() time.Time
}

// NewSessionManager creates a new session manager. repo may be nil to keep
// sessions in memory only.
func NewSessionManager(secret string, repo database.SessionStore, log zerolog.Logger) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "blinkpay-dev-secret-change-in-production"
		log.Warn().Msg("WEB_SESSION_SECRET is not set, using the development secret")
	}
	return &SessionManager{
		secret:   []byte(secret),
		repo:     repo,
		log:      log.With().Str("component", "sessions").Logger(),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetSecureCookies marks session cookies as HTTPS only.
func (sm *SessionManager) SetSecureCookies(secure bool) {
	sm.secure = secure
}

// OnExpire registers a callback invoked with the ID of every deleted or expired session.
func (sm *SessionManager) OnExpire(fn func(id string)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onExpire = append(sm.onExpire, fn)
}

// CreateSession creates a new anonymous session
func (sm *SessionManager) CreateSession(ctx context.Context) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	now := sm.now()
	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(idBytes),
		CreatedAt: now,
		ExpiresAt: now.Add(constants.SessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	if sm.repo != nil {
		stored := database.StoredSession{ID: session.ID, CreatedAt: session.CreatedAt, ExpiresAt: session.ExpiresAt}
		if err := sm.repo.Save(ctx, stored); err != nil {
			sm.log.Error().Err(err).Msg("failed to persist session")
		}
	}

	return session, nil
}

// GetSession retrieves a session by ID, restoring it from the repository
// after a restart.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if ok {
		if sm.now().After(session.ExpiresAt) {
			sm.DeleteSession(ctx, sessionID)
			return nil
		}
		return session
	}

	if sm.repo == nil {
		return nil
	}
	stored, err := sm.repo.Get(ctx, sessionID)
	if err != nil {
		sm.log.Error().Err(err).Msg("failed to load session")
		return nil
	}
	if stored == nil {
		return nil
	}
	session = &Session{ID: stored.ID, CreatedAt: stored.CreatedAt, ExpiresAt: stored.ExpiresAt}
	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	callbacks := append([]func(string){}, sm.onExpire...)
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			sm.log.Error().Err(err).Msg("failed to delete session")
		}
	}
	for _, fn := range callbacks {
		fn(sessionID)
	}
}

// CleanupExpired removes every expired session and returns how many were
// dropped from memory.
func (sm *SessionManager) CleanupExpired(ctx context.Context) int {
	now := sm.now()
	sm.mu.Lock()
	var expired []string
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			expired = append(expired, id)
			delete(sm.sessions, id)
		}
	}
	callbacks := append([]func(string){}, sm.onExpire...)
	sm.mu.Unlock()

	if sm.repo != nil {
		if n, err := sm.repo.DeleteExpired(ctx); err != nil {
			sm.log.Error().Err(err).Msg("failed to delete expired sessions")
		} else if n > 0 {
			sm.log.Debug().Int64("count", n).Msg("deleted expired sessions from the store")
		}
	}
	for _, id := range expired {
		for _, fn := range callbacks {
			fn(id)
		}
	}
	return len(expired)
}

// Run reaps expired sessions until ctx is done.
func (sm *SessionManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(constants.SessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := sm.CleanupExpired(ctx); n > 0 {
				sm.log.Info().Int("count", n).Msg("expired sessions removed")
			}
		}
	}
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	signature := sm.signData(session.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + signature,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(constants.SessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from the signed cookie.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	sessionID, signature, ok := strings.Cut(cookie.Value, ".")
	if !ok || !sm.verifySignature(sessionID, signature) {
		return nil
	}
	return sm.GetSession(r.Context(), sessionID)
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
