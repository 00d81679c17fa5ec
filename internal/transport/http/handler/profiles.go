package handler

import (
	"encoding/json"
	"net/http"

	"github.com/huddleup/authsync/internal/application/profile"
	"github.com/huddleup/authsync/internal/domain"
	"github.com/huddleup/authsync/internal/transport/http/middleware"
)

// Multipart avatar uploads are capped at 5 MiB.
const maxAvatarBytes = 5 << 20

// ProfileEnvelope wraps profile responses. Complete mirrors
// domain.Profile.Complete so clients can route to profile setup without
// re-deriving the rule.
type ProfileEnvelope struct {
	Profile  *domain.Profile `json:"profile,omitempty"`
	Complete bool            `json:"complete"`
	Error    string          `json:"error,omitempty"`
}

// ProfileHandler handles the authenticated user's own profile.
type ProfileHandler struct {
	svc profile.Service
}

func NewProfileHandler(svc profile.Service) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := h.svc.GetByUser(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Profile: p, Complete: p.Complete()})
}

func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.svc.UpdateByUser(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Profile: p, Complete: p.Complete()})
}

func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
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
		writeError(w, http.StatusBadRequest, "avatar file required")
		return
	}
	defer file.Close()
	p, err := h.svc.UploadAvatar(r.Context(), claims.UserID, header.Filename, file)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Profile: p, Complete: p.Complete()})
}

func (h *ProfileHandler) AvatarURL(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	url, err := h.svc.AvatarURL(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		URL string `json:"url"`
	}{URL: url})
}
