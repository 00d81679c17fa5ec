package handler

import (
	"errors"
	"net/http"

	"github.com/huddleup/authsync/internal/application/profile"
	"github.com/huddleup/authsync/internal/application/session"
	"github.com/huddleup/authsync/internal/domain"
	"github.com/huddleup/authsync/internal/transport/http/middleware"
)

// SnapshotHandler serves the server-side auth snapshot that consistency
// monitors compare against their local cache.
type SnapshotHandler struct {
	sessions session.Service
	profiles profile.Service
}

func NewSnapshotHandler(sessions session.Service, profiles profile.Service) *SnapshotHandler {
	return &SnapshotHandler{sessions: sessions, profiles: profiles}
}

// Get reports the live auth state for the caller's session. A dead or
// disabled session yields an unauthenticated snapshot with 200, not 401;
// "you are signed out" is a valid answer to "who am I".
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, domain.AuthSnapshot{IsAuthenticated: false})
		return
	}
	sess, err := h.sessions.GetCurrent(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, domain.AuthSnapshot{IsAuthenticated: false})
			return
		}
		httpError(w, err)
		return
	}
	snap := domain.AuthSnapshot{IsAuthenticated: true, UserID: sess.UserID}
	if p, err := h.profiles.GetByUser(r.Context(), sess.UserID); err == nil {
		snap.ProfileID = p.ProfileID
	}
	writeJSON(w, http.StatusOK, snap)
}
