package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/huddleup/authsync/internal/application/auth"
	"github.com/huddleup/authsync/internal/application/session"
	"github.com/huddleup/authsync/internal/pkg/validate"
	"github.com/huddleup/authsync/internal/transport/http/middleware"
)

// PasswordRecoveryHandler handles the OTP recovery flow.
type PasswordRecoveryHandler struct {
	svc      auth.Service
	sessions session.Service
}

func NewPasswordRecoveryHandler(svc auth.Service, sessions session.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc, sessions: sessions}
}

func (h *PasswordRecoveryHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req auth.PasswordRecoveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.RequestPasswordRecovery(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent"})
	case "validate-code":
		var req auth.ValidateOTPRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		u, err := h.svc.ValidateOTP(r.Context(), req)
		if err != nil {
			httpError(w, err)
			return
		}
		// A valid OTP proves control of the mailbox; hand back a session so
		// the client can change the password while signed in.
		result, err := h.sessions.IssueFor(r.Context(), u, nil)
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AuthEnvelope{
			AccessToken:  result.Bearer,
			RefreshToken: result.RefreshToken,
			Session:      toSafeSession(result.Session),
			User:         toSafeUser(u),
		})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// ChangePassword resets the password for the authenticated (OTP-recovered) user.
func (h *PasswordRecoveryHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.UserID, req.NewPassword); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}
