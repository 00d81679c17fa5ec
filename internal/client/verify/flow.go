package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huddleup/authsync/internal/client/authcache"
	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/client/signal"
	"github.com/huddleup/authsync/internal/config"
	"github.com/huddleup/authsync/internal/domain"
)

// Destination is where the wait screen sends the user next.
type Destination int

const (
	// DestNone: stay on the wait screen.
	DestNone Destination = iota
	// DestSignIn: no email to wait on, or the user signed out.
	DestSignIn
	// DestHome: verified with a complete profile.
	DestHome
	// DestProfileSetup: verified but the profile still needs filling in.
	DestProfileSetup
)

type flowAPI interface {
	sessionAPI
	SignOut(ctx context.Context) error
	CurrentProfile(ctx context.Context) (*identity.Profile, error)
}

// Flow is the wait screen's controller: it resolves which address is being
// verified, runs the poller, and decides the exit destination.
type Flow struct {
	api     flowAPI
	cache   *authcache.Cache
	signals *signal.Channel
	cfg     config.ClientConfig

	mu     sync.Mutex
	email  string
	poller *Poller
}

func NewFlow(api flowAPI, cache *authcache.Cache, signals *signal.Channel, cfg config.ClientConfig) *Flow {
	return &Flow{api: api, cache: cache, signals: signals, cfg: cfg}
}

// Mount prepares the wait screen. The address being verified comes from the
// live session when there is one, else from the cross-client remembered
// email; with neither there is nothing to wait for and the user goes to
// sign-in. A session that is already confirmed skips the wait entirely.
// Signal storage failures degrade the wait to this-client-polls-alone; they
// never prevent it.
func (f *Flow) Mount(ctx context.Context, onState func(State)) Destination {
	var email string
	sess, err := f.api.CurrentSession(ctx)
	if err == nil {
		if sess.User.EmailConfirmed() {
			return f.destinationAfterVerified(ctx)
		}
		email = sess.User.Email
		if err := f.signals.RememberEmail(email); err != nil {
			slog.Warn("failed to remember signup email", "err", err)
		}
	} else if remembered, ok := f.signals.RememberedEmail(); ok {
		email = remembered
	} else {
		return DestSignIn
	}

	f.mu.Lock()
	f.email = email
	f.poller = NewPoller(f.api, f.signals, f.cfg)
	f.poller.OnState = onState
	f.mu.Unlock()

	if err := f.signals.MarkWaiting(); err != nil {
		slog.Warn("failed to set waiting marker", "err", err)
	}
	f.currentPoller().Start(ctx)
	return DestNone
}

func (f *Flow) currentPoller() *Poller {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poller
}

// Email returns the address being verified.
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

func (f *Flow) State() State {
	if p := f.currentPoller(); p != nil {
		return p.State()
	}
	return StateWaiting
}

func (f *Flow) Elapsed() time.Duration {
	if p := f.currentPoller(); p != nil {
		return p.Elapsed()
	}
	return 0
}

func (f *Flow) LastError() error {
	if p := f.currentPoller(); p != nil {
		return p.LastError()
	}
	return nil
}

// CheckNow runs a user-initiated verification check.
func (f *Flow) CheckNow(ctx context.Context) {
	if p := f.currentPoller(); p != nil {
		p.Check(ctx, TriggerManual)
	}
}

// Resend re-sends the confirmation email and restarts the wait.
func (f *Flow) Resend(ctx context.Context) error {
	p := f.currentPoller()
	if p == nil {
		return nil
	}
	return p.Resend(ctx, f.Email())
}

// SignOut abandons the wait: session revoked, cross-client state cleared.
// If the revocation itself fails the wait stays intact and the caller keeps
// the user on the screen.
func (f *Flow) SignOut(ctx context.Context) (Destination, error) {
	if err := f.api.SignOut(ctx); err != nil {
		return DestNone, err
	}
	if p := f.currentPoller(); p != nil {
		p.Stop()
	}
	_ = f.signals.ClearWaiting()
	_ = f.signals.ClearRememberedEmail()
	f.cache.Set(domain.AuthSnapshot{}, "")
	return DestSignIn, nil
}

// Leave exits the wait screen without signing out (the "home" action). The
// remembered email stays so the wait can resume later.
func (f *Flow) Leave() Destination {
	if p := f.currentPoller(); p != nil {
		p.Stop()
	}
	_ = f.signals.ClearWaiting()
	return DestHome
}

// Finish completes a verified wait after the success view has had its
// moment: refresh the cache, clear the wait state, pick the destination.
func (f *Flow) Finish(ctx context.Context) Destination {
	if p := f.currentPoller(); p != nil {
		p.Stop()
	}
	_ = f.signals.ClearWaiting()
	_ = f.signals.ClearRememberedEmail()
	if err := f.cache.Refresh(ctx, f.api); err != nil {
		slog.Warn("cache refresh after verification failed", "err", err)
	}
	return f.destinationAfterVerified(ctx)
}

// RedirectDelay is how long the success view lingers before Finish.
func (f *Flow) RedirectDelay() time.Duration {
	return f.cfg.RedirectDelay
}

func (f *Flow) destinationAfterVerified(ctx context.Context) Destination {
	p, err := f.api.CurrentProfile(ctx)
	if err != nil || !p.Complete {
		return DestProfileSetup
	}
	return DestHome
}
