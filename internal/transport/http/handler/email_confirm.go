package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/huddleup/authsync/internal/application/auth"
	"github.com/huddleup/authsync/internal/pkg/validate"
	"github.com/huddleup/authsync/internal/transport/http/middleware"
)

// EmailConfirmHandler handles the email confirmation flow.
type EmailConfirmHandler struct {
	svc auth.Service
}

func NewEmailConfirmHandler(svc auth.Service) *EmailConfirmHandler {
	return &EmailConfirmHandler{svc: svc}
}

// Action dispatches authenticated confirmation operations.
func (h *EmailConfirmHandler) Action(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch chi.URLParam(r, "action") {
	case "request":
		if err := h.svc.RequestEmailConfirmation(r.Context(), claims.UserID); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "confirmation email sent"})
	case "validate-code":
		var body struct {
			Token string `json:"token" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&body); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.ConfirmEmail(r.Context(), claims.UserID, body.Token); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email confirmed"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// Resend is the public resend entry point. The wait screen may hold only a
// remembered email and no live session, so no auth is required; the service
// refuses already-confirmed accounts and enforces the cooldown.
func (h *EmailConfirmHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.ResendConfirmation(r.Context(), body.Email); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "confirmation email sent"})
}
