package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/huddleup/authsync/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// SafeUser is the wire shape of a user: no hash, no provider internals.
type SafeUser struct {
	UserID           string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Phone            *string    `json:"phone,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	PhoneConfirmed   bool       `json:"phone_confirmed"`
	Created          time.Time  `json:"created"`
}

// SafeSession is the wire shape of a session; refresh material travels only
// in the top-level envelope fields.
type SafeSession struct {
	SessionID string    `json:"id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Created   time.Time `json:"created"`
}

// AuthEnvelope wraps login/register/refresh responses.
type AuthEnvelope struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	Session      *SafeSession `json:"session,omitempty"`
	User         *SafeUser    `json:"user,omitempty"`
	Message      string       `json:"message,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *SafeSession `json:"session,omitempty"`
	User    *SafeUser    `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:           u.UserID,
		Username:         u.Username,
		Email:            u.Email,
		Phone:            u.Phone,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		EmailConfirmedAt: u.EmailConfirmedAt,
		PhoneConfirmed:   u.PhoneConfirmed,
		Created:          u.CreatedAt,
	}
}

func toSafeSession(s *domain.Session) *SafeSession {
	if s == nil {
		return nil
	}
	return &SafeSession{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		DeviceID:  s.DeviceID,
		Created:   s.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps the domain sentinel wrapped inside err to an HTTP status.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
