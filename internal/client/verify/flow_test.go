package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huddleup/authsync/internal/client/authcache"
	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/client/signal"
	"github.com/huddleup/authsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(t *testing.T, api *fakeAPI) (*Flow, *authcache.Cache) {
	t.Helper()
	cache := authcache.New()
	return NewFlow(api, cache, newTestChannel(t), testCfg()), cache
}

func TestFlow_MountResolvesEmailFromSession(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com"}
	f, _ := newFlow(t, api)

	dest := f.Mount(context.Background(), nil)
	defer f.Leave()

	assert.Equal(t, DestNone, dest)
	assert.Equal(t, "ada@example.com", f.Email())
}

func TestFlow_MountFallsBackToRememberedEmail(t *testing.T) {
	api := &fakeAPI{err: domain.ErrNoSession}
	cache := authcache.New()
	ch := newTestChannel(t)
	require.NoError(t, ch.RememberEmail("ada@example.com"))
	f := NewFlow(api, cache, ch, testCfg())

	dest := f.Mount(context.Background(), nil)
	defer f.Leave()

	assert.Equal(t, DestNone, dest)
	assert.Equal(t, "ada@example.com", f.Email())
}

func TestFlow_MountWithNoEmailRedirectsToSignIn(t *testing.T) {
	api := &fakeAPI{err: domain.ErrNoSession}
	f, _ := newFlow(t, api)

	dest := f.Mount(context.Background(), nil)
	assert.Equal(t, DestSignIn, dest)
}

func TestFlow_MountSkipsWaitWhenAlreadyConfirmed(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com", confirmed: true, profile: identity.Profile{Complete: true}}
	f, _ := newFlow(t, api)

	dest := f.Mount(context.Background(), nil)
	assert.Equal(t, DestHome, dest)
}

// brokenDurable fails every write, as a full or unwritable signal dir would.
type brokenDurable struct{ *signal.FileStore }

func (brokenDurable) Set(key, value string) error { return errors.New("write signal: disk full") }

// brokenTransient models storage being disabled outright.
type brokenTransient struct{}

func (brokenTransient) Get(string) (string, bool, error) {
	return "", false, errors.New("storage disabled")
}
func (brokenTransient) Set(string, string) error { return errors.New("storage disabled") }
func (brokenTransient) Delete(string) error      { return errors.New("storage disabled") }

func TestFlow_MountSurvivesStorageFailure(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com"}
	fs, err := signal.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	ch := signal.NewChannel(brokenDurable{fs}, brokenTransient{})
	f := NewFlow(api, authcache.New(), ch, testCfg())

	dest := f.Mount(context.Background(), nil)
	defer f.Leave()

	require.Equal(t, DestNone, dest, "a broken store degrades the wait, it does not abort it")
	assert.Equal(t, "ada@example.com", f.Email())

	// Polling alone still reaches the verification.
	api.setConfirmed(true)
	require.Eventually(t, func() bool { return f.State() == StateVerified },
		3*time.Second, 5*time.Millisecond)
}

func TestFlow_FinishRoutesByProfileCompleteness(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com"}
	f, cache := newFlow(t, api)

	f.Mount(context.Background(), nil)

	api.setConfirmed(true)
	require.Eventually(t, func() bool { return f.State() == StateVerified },
		3*time.Second, 5*time.Millisecond)

	dest := f.Finish(context.Background())
	assert.Equal(t, DestProfileSetup, dest, "empty profile routes to setup")
	assert.True(t, cache.Snapshot().IsAuthenticated, "finish refreshes the cache")
}

func TestFlow_SignOutClearsEverything(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com"}
	cache := authcache.New()
	ch := newTestChannel(t)
	f := NewFlow(api, cache, ch, testCfg())

	f.Mount(context.Background(), nil)

	dest, err := f.SignOut(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DestSignIn, dest)
	assert.False(t, ch.Waiting())
	_, remembered := ch.RememberedEmail()
	assert.False(t, remembered)
	assert.False(t, cache.Snapshot().IsAuthenticated)
	assert.Equal(t, 1, api.signoutCount())
}

func TestFlow_SignOutFailureKeepsTheWaitAlive(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com", signOutErr: errors.New("dial tcp: refused")}
	cache := authcache.New()
	ch := newTestChannel(t)
	f := NewFlow(api, cache, ch, testCfg())

	f.Mount(context.Background(), nil)
	defer f.Leave()

	dest, err := f.SignOut(context.Background())
	assert.Error(t, err)
	assert.Equal(t, DestNone, dest)
	assert.True(t, ch.Waiting(), "a failed sign-out abandons nothing")
	_, remembered := ch.RememberedEmail()
	assert.True(t, remembered)
}

func TestFlow_LeaveKeepsRememberedEmail(t *testing.T) {
	api := &fakeAPI{email: "ada@example.com"}
	cache := authcache.New()
	ch := newTestChannel(t)
	f := NewFlow(api, cache, ch, testCfg())

	f.Mount(context.Background(), nil)

	dest := f.Leave()
	assert.Equal(t, DestHome, dest)
	assert.False(t, ch.Waiting())
	email, ok := ch.RememberedEmail()
	assert.True(t, ok, "leaving is not abandoning; the wait can resume")
	assert.Equal(t, "ada@example.com", email)
}

func TestHint_Tiers(t *testing.T) {
	assert.Contains(t, Hint(5*time.Second), "under a minute")
	assert.Contains(t, Hint(45*time.Second), "Still waiting")
	assert.Contains(t, Hint(90*time.Second), "spam")
}

func TestWaitMessage_NamesTheAddress(t *testing.T) {
	assert.Contains(t, WaitMessage("ada@example.com"), "(ada@example.com)")
}
