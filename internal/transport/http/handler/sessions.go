package handler

import (
	"encoding/json"
	"net/http"

	"github.com/huddleup/authsync/internal/application/session"
	"github.com/huddleup/authsync/internal/pkg/validate"
	"github.com/huddleup/authsync/internal/transport/http/middleware"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc session.Service
}

func NewSessionHandler(svc session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	result, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		AccessToken:  result.Bearer,
		RefreshToken: result.RefreshToken,
		Session:      toSafeSession(result.Session),
		User:         toSafeUser(result.Session.User),
	})
}

func (h *SessionHandler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	var req session.GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	result, err := h.svc.LoginWithGoogle(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		AccessToken:  result.Bearer,
		RefreshToken: result.RefreshToken,
		Session:      toSafeSession(result.Session),
		User:         toSafeUser(result.Session.User),
	})
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token required")
		return
	}
	bearer, newToken, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: bearer, RefreshToken: newToken})
}

// GetCurrent returns the session with its user attached. Polling clients hit
// this every few seconds while waiting for email_confirmed_at to appear.
func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess, err := h.svc.GetCurrent(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: toSafeSession(sess), User: toSafeUser(sess.User)})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}
