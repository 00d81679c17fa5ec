package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/client/signal"
	"github.com/huddleup/authsync/internal/config"
	"github.com/huddleup/authsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAPI is a hand-rolled stub: tests flip confirmed/err under the lock to
// script the server's behavior over time.
type fakeAPI struct {
	mu         sync.Mutex
	confirmed  bool
	err        error
	signOutErr error
	email      string
	checks     int
	resends    int
	signouts   int
	profile    identity.Profile
}

func (f *fakeAPI) CurrentSession(ctx context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.err != nil {
		return nil, f.err
	}
	u := identity.User{ID: "u1", Email: f.email}
	if f.confirmed {
		at := time.Now().UTC()
		u.EmailConfirmedAt = &at
	}
	return &identity.Session{SessionID: "s1", User: u}, nil
}

func (f *fakeAPI) ResendConfirmation(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resends++
	return nil
}

func (f *fakeAPI) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signouts++
	return f.signOutErr
}

func (f *fakeAPI) CurrentProfile(ctx context.Context) (*identity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profile
	return &p, nil
}

func (f *fakeAPI) setConfirmed(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = v
}

func (f *fakeAPI) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeAPI) signoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signouts
}

func (f *fakeAPI) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func testCfg() config.ClientConfig {
	return config.ClientConfig{
		PollInterval:  20 * time.Millisecond,
		WaitTimeout:   10 * time.Second,
		RedirectDelay: time.Millisecond,
	}
}

func newTestChannel(t *testing.T) *signal.Channel {
	t.Helper()
	fs, err := signal.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return signal.NewChannel(fs, signal.NewMemStore())
}

func sharedChannels(t *testing.T) (*signal.Channel, *signal.Channel) {
	t.Helper()
	dir := t.TempDir()
	a, err := signal.NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := signal.NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return signal.NewChannel(a, signal.NewMemStore()), signal.NewChannel(b, signal.NewMemStore())
}

func waitForState(t *testing.T, p *Poller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want },
		3*time.Second, 5*time.Millisecond, "never reached %s", want)
}

func TestPoller_AutoPollObservesConfirmation(t *testing.T) {
	api := &fakeAPI{email: "a@b.com"}
	p := NewPoller(api, newTestChannel(t), testCfg())
	p.Start(context.Background())
	defer p.Stop()

	assert.Equal(t, StateWaiting, p.State())
	api.setConfirmed(true)
	waitForState(t, p, StateVerified)
}

func TestPoller_NoSessionErrorIsSuppressed(t *testing.T) {
	api := &fakeAPI{email: "a@b.com", err: domain.ErrNoSession}
	p := NewPoller(api, newTestChannel(t), testCfg())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return api.checkCount() >= 2 },
		3*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateWaiting, p.State())
	assert.NoError(t, p.LastError())
}

func TestPoller_OtherErrorsAreRecordedButNotFatal(t *testing.T) {
	api := &fakeAPI{email: "a@b.com", err: errors.New("dial tcp: refused")}
	p := NewPoller(api, newTestChannel(t), testCfg())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return p.LastError() != nil },
		3*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateWaiting, p.State())

	// Recovery: the error clears and polling continues to the confirmation.
	api.setErr(nil)
	api.setConfirmed(true)
	waitForState(t, p, StateVerified)
	assert.NoError(t, p.LastError())
}

func TestPoller_TimeoutIsIndependentOfPolling(t *testing.T) {
	api := &fakeAPI{email: "a@b.com"}
	cfg := testCfg()
	cfg.WaitTimeout = 60 * time.Millisecond
	p := NewPoller(api, newTestChannel(t), cfg)
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateTimedOut)

	// Automatic polling stops after the timeout.
	n := api.checkCount()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, api.checkCount(), n+1)
}

func TestPoller_ManualCheckWorksAfterTimeout(t *testing.T) {
	api := &fakeAPI{email: "a@b.com"}
	cfg := testCfg()
	cfg.WaitTimeout = 40 * time.Millisecond
	p := NewPoller(api, newTestChannel(t), cfg)
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateTimedOut)

	api.setConfirmed(true)
	p.Check(context.Background(), TriggerManual)
	waitForState(t, p, StateVerified)
}

func TestPoller_ManualCheckReturnsToTimedOutWhenUnverified(t *testing.T) {
	api := &fakeAPI{email: "a@b.com"}
	cfg := testCfg()
	cfg.WaitTimeout = 40 * time.Millisecond
	p := NewPoller(api, newTestChannel(t), cfg)
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateTimedOut)
	p.Check(context.Background(), TriggerManual)
	waitForState(t, p, StateTimedOut)
}

func TestPoller_ResendRestartsTheWait(t *testing.T) {
	api := &fakeAPI{email: "a@b.com"}
	cfg := testCfg()
	cfg.WaitTimeout = 40 * time.Millisecond
	p := NewPoller(api, newTestChannel(t), cfg)
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateTimedOut)

	require.NoError(t, p.Resend(context.Background(), "a@b.com"))
	assert.Equal(t, StateWaiting, p.State())
	assert.Less(t, p.Elapsed(), 40*time.Millisecond)

	// And the restarted wait can still verify.
	api.setConfirmed(true)
	waitForState(t, p, StateVerified)
}

func TestPoller_ResendWithoutEmailFails(t *testing.T) {
	api := &fakeAPI{}
	p := NewPoller(api, newTestChannel(t), testCfg())

	assert.ErrorIs(t, p.Resend(context.Background(), ""), domain.ErrNotFound)
	api.mu.Lock()
	assert.Zero(t, api.resends)
	api.mu.Unlock()
}

func TestPoller_VerifiedTransitionIsIdempotent(t *testing.T) {
	api := &fakeAPI{email: "a@b.com", confirmed: true}
	ch := newTestChannel(t)
	p := NewPoller(api, ch, testCfg())

	var mu sync.Mutex
	verifiedNotifications := 0
	p.OnState = func(s State) {
		if s == StateVerified {
			mu.Lock()
			verifiedNotifications++
			mu.Unlock()
		}
	}
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateVerified)
	first, _ := p.VerifiedAt()

	// Pile on every other trigger; none may re-fire the transition.
	p.Check(context.Background(), TriggerManual)
	p.Check(context.Background(), TriggerAuto)
	require.NoError(t, p.Resend(context.Background(), "a@b.com"))

	again, ok := p.VerifiedAt()
	assert.True(t, ok)
	assert.True(t, first.Equal(again))
	mu.Lock()
	assert.Equal(t, 1, verifiedNotifications)
	mu.Unlock()
}

func TestPoller_FollowerAdoptsSiblingAnnouncementWithoutNetwork(t *testing.T) {
	chA, chB := sharedChannels(t)

	// The follower's server still says "not confirmed"; the announcement
	// alone must flip it.
	api := &fakeAPI{email: "a@b.com"}
	follower := NewPoller(api, chB, config.ClientConfig{
		PollInterval: time.Hour, // no automatic polls during this test
		WaitTimeout:  time.Hour,
	})
	follower.Start(context.Background())
	defer follower.Stop()

	at := time.Now().UTC()
	require.NoError(t, chA.AnnounceVerified(at))

	waitForState(t, follower, StateVerified)
	got, ok := follower.VerifiedAt()
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.Zero(t, api.checkCount())
}

func TestPoller_AdoptsAnnouncementPresentBeforeStart(t *testing.T) {
	chA, chB := sharedChannels(t)
	at := time.Now().UTC()
	require.NoError(t, chA.AnnounceVerified(at))

	api := &fakeAPI{email: "a@b.com"}
	p := NewPoller(api, chB, config.ClientConfig{PollInterval: time.Hour, WaitTimeout: time.Hour})
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateVerified)
	assert.Zero(t, api.checkCount())
}

func TestPoller_LocalVerificationIsAnnounced(t *testing.T) {
	chA, chB := sharedChannels(t)
	api := &fakeAPI{email: "a@b.com", confirmed: true}
	p := NewPoller(api, chA, testCfg())
	p.Start(context.Background())
	defer p.Stop()

	waitForState(t, p, StateVerified)
	require.Eventually(t, func() bool {
		_, ok := chB.VerifiedAnnounced()
		return ok
	}, 3*time.Second, 5*time.Millisecond)
}
