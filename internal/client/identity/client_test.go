package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/huddleup/authsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentSession_NoCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	_, err := c.CurrentSession(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoSession))
}

func TestCurrentSession_ServerRejectsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetTokens("stale", "stale")
	_, err := c.CurrentSession(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoSession))
}

func TestCurrentSession_DecodesUser(t *testing.T) {
	confirmed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session":{"id":"s1"},"user":{"id":"u1","email":"a@b.com","email_confirmed_at":"2026-03-01T12:00:00Z"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetTokens("tok", "r")
	sess, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.SessionID)
	assert.Equal(t, "a@b.com", sess.User.Email)
	require.NotNil(t, sess.User.EmailConfirmedAt)
	assert.True(t, confirmed.Equal(*sess.User.EmailConfirmedAt))
	assert.True(t, sess.User.EmailConfirmed())
}

func TestResendConfirmation_ConflictSurfacesAsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"sent recently"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.ResendConfirmation(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Contains(t, err.Error(), "sent recently")
}

func TestSignOut_DeadSessionStillDropsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetTokens("tok", "r")
	require.NoError(t, c.SignOut(context.Background()))
	assert.False(t, c.HasSession())
}

func TestSignOut_ServerErrorKeepsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetTokens("tok", "r")
	require.Error(t, c.SignOut(context.Background()))
	assert.True(t, c.HasSession())
}

func TestSnapshot_Unauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_authenticated":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.IsAuthenticated)
}

func TestRegister_InstallsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","session":{"id":"s1"},"user":{"id":"u1","email":"a@b.com"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	sess, err := c.Register(context.Background(), RegisterRequest{Username: "ada", Email: "a@b.com", Password: "pw123456", FirstName: "Ada", LastName: "L"})
	require.NoError(t, err)
	assert.True(t, c.HasSession())
	assert.False(t, sess.User.EmailConfirmed())
}
