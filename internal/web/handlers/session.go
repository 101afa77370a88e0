package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/blinkpay/internal/web/middleware"
)

// SessionHandler reports and ends the anonymous browser session
type SessionHandler struct {
	sessionManager *middleware.SessionManager
	flows          *FlowRegistry
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sm *middleware.SessionManager, flows *FlowRegistry) *SessionHandler {
	return &SessionHandler{sessionManager: sm, flows: flows}
}

// SessionResponse represents the session status response
type SessionResponse struct {
	ExpiresAt string `json:"expires_at"`
	Flows     int    `json:"flows"`
}

// Status returns when the session expires and how many flows it holds
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "no session")
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		Flows:     h.flows.SessionCount(session.ID),
	})
}

// End deletes the session, which tears down its flows, and clears the cookie
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}
	h.sessionManager.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
