package handler

import (
	"encoding/json"
	"net/http"

	"github.com/huddleup/authsync/internal/application/session"
	"github.com/huddleup/authsync/internal/application/user"
	"github.com/huddleup/authsync/internal/domain"
	"github.com/huddleup/authsync/internal/pkg/validate"
	"github.com/huddleup/authsync/internal/transport/http/middleware"
)

// UserHandler handles account endpoints.
type UserHandler struct {
	svc      user.Service
	sessions session.Service
}

func NewUserHandler(svc user.Service, sessions session.Service) *UserHandler {
	return &UserHandler{svc: svc, sessions: sessions}
}

// Register creates the account and immediately issues a session, so the
// client lands on the verification wait screen already signed in.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	result, err := h.sessions.IssueFor(r.Context(), u, req.DeviceUUID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{
		AccessToken:  result.Bearer,
		RefreshToken: result.RefreshToken,
		Session:      toSafeSession(result.Session),
		User:         toSafeUser(u),
	})
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Get(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSafeUser(u))
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.Update(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSafeUser(u))
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Delete(r.Context(), claims.UserID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account deleted"})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}
