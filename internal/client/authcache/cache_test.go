package authcache

import (
	"context"
	"errors"
	"testing"

	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) CurrentSession(ctx context.Context) (*identity.Session, error) {
	args := m.Called(ctx)
	if s, _ := args.Get(0).(*identity.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSource) CurrentProfile(ctx context.Context) (*identity.Profile, error) {
	args := m.Called(ctx)
	if p, _ := args.Get(0).(*identity.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRefresh_DerivesAuthenticatedSnapshot(t *testing.T) {
	src := &mockSource{}
	src.On("CurrentSession", mock.Anything).Return(&identity.Session{
		SessionID: "s1",
		User:      identity.User{ID: "u1", Email: "a@b.com"},
	}, nil)
	src.On("CurrentProfile", mock.Anything).Return(&identity.Profile{ProfileID: "p1"}, nil)

	c := New()
	require.NoError(t, c.Refresh(context.Background(), src))

	snap := c.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "p1", snap.ProfileID)
	email, ok := c.Email()
	assert.True(t, ok)
	assert.Equal(t, "a@b.com", email)
}

func TestRefresh_NoSessionMeansSignedOut(t *testing.T) {
	src := &mockSource{}
	src.On("CurrentSession", mock.Anything).Return(nil, domain.ErrNoSession)

	c := New()
	c.Set(domain.AuthSnapshot{IsAuthenticated: true, UserID: "stale"}, "stale@b.com")
	require.NoError(t, c.Refresh(context.Background(), src))

	assert.False(t, c.Snapshot().IsAuthenticated)
	_, ok := c.Email()
	assert.False(t, ok)
}

func TestRefresh_TransportErrorKeepsCache(t *testing.T) {
	src := &mockSource{}
	src.On("CurrentSession", mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	c := New()
	c.Set(domain.AuthSnapshot{IsAuthenticated: true, UserID: "u1"}, "a@b.com")
	require.Error(t, c.Refresh(context.Background(), src))

	// A network failure must not wipe a previously good cache.
	assert.True(t, c.Snapshot().IsAuthenticated)
	assert.False(t, c.Loading())
}

func TestSnapshot_ZeroValueIsSignedOut(t *testing.T) {
	c := New()
	assert.False(t, c.Snapshot().IsAuthenticated)
	assert.False(t, c.Loading())
}
