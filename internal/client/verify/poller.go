// Package verify implements the email verification wait flow: a poller that
// watches for the server-side confirmation stamp, cross-client adoption of a
// sibling's result, and the screen-level flow around both.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/client/signal"
	"github.com/huddleup/authsync/internal/config"
	"github.com/huddleup/authsync/internal/domain"
)

// State is the poller's position in the wait.
type State int

const (
	// StateWaiting: between checks, automatic polling active.
	StateWaiting State = iota
	// StateChecking: a session fetch is in flight.
	StateChecking
	// StateVerified: the confirmation stamp was observed, here or elsewhere.
	StateVerified
	// StateTimedOut: the wall-clock bound expired without a verification.
	// Automatic polling stops; manual checks and resends still work.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateChecking:
		return "checking"
	case StateVerified:
		return "verified"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Trigger names what prompted a verification check.
type Trigger int

const (
	TriggerAuto Trigger = iota
	TriggerManual
	TriggerFollower
)

type sessionAPI interface {
	CurrentSession(ctx context.Context) (*identity.Session, error)
	ResendConfirmation(ctx context.Context, email string) error
}

// Poller drives the verification wait. Checks from any trigger funnel into
// one idempotent verified transition; the wall-clock timeout runs
// independently of poll scheduling, so a slow check cannot stretch the wait.
type Poller struct {
	api     sessionAPI
	signals *signal.Channel
	cfg     config.ClientConfig

	// OnState, when set, is called after every state change, outside the
	// poller's lock. Set it before Start.
	OnState func(State)

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	verifiedAt time.Time
	checking   bool
	resending  bool
	lastErr    error

	resetTimeout chan struct{}
	stopOnce     sync.Once
	stop         chan struct{}
	done         chan struct{}
}

func NewPoller(api sessionAPI, signals *signal.Channel, cfg config.ClientConfig) *Poller {
	return &Poller{
		api:          api,
		signals:      signals,
		cfg:          cfg,
		state:        StateWaiting,
		resetTimeout: make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the poll loop. If a sibling client already announced a
// verification, the poller adopts it immediately and never polls.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()

	if at, ok := p.signals.VerifiedAnnounced(); ok {
		p.markVerified(at, TriggerFollower)
	}
	go p.run(ctx)
}

// Stop terminates the loop and waits for it to exit. Safe to call twice.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	unsub := p.signals.OnVerifiedAnnounced(func(at time.Time) {
		p.markVerified(at, TriggerFollower)
	})
	defer unsub()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(p.cfg.WaitTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if p.State() == StateWaiting {
				p.Check(ctx, TriggerAuto)
			}
		case <-timeout.C:
			p.markTimedOut()
		case <-p.resetTimeout:
			if !timeout.Stop() {
				select {
				case <-timeout.C:
				default:
				}
			}
			timeout.Reset(p.cfg.WaitTimeout)
		}
	}
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Elapsed is the time since the wait (or the latest resend) began.
func (p *Poller) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.startedAt)
}

// VerifiedAt returns the adoption instant once verified.
func (p *Poller) VerifiedAt() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifiedAt, p.state == StateVerified
}

// LastError returns the most recent reportable check failure. "No session
// yet" never lands here.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Check fetches the session and inspects the confirmation stamp. Only one
// check runs at a time; an overlapping trigger is dropped, not queued.
// Whatever the outcome, the state returns to where it was unless the check
// verified.
func (p *Poller) Check(ctx context.Context, trigger Trigger) {
	p.mu.Lock()
	if p.state == StateVerified || p.state == StateChecking || p.checking {
		p.mu.Unlock()
		return
	}
	prev := p.state
	p.state = StateChecking
	p.checking = true
	p.mu.Unlock()
	p.notify(StateChecking)

	sess, err := p.api.CurrentSession(ctx)

	verified := err == nil && sess.User.EmailConfirmed()
	if verified {
		p.mu.Lock()
		p.checking = false
		p.mu.Unlock()
		p.markVerified(time.Now(), trigger)
		return
	}

	p.mu.Lock()
	p.checking = false
	// The timeout may have fired mid-check; it wins over a non-verified
	// result.
	if p.state == StateChecking {
		p.state = prev
	}
	switch {
	case err == nil:
		p.lastErr = nil
	case errors.Is(err, domain.ErrNoSession):
		// Expected between account creation and the session hand-off.
		p.lastErr = nil
	default:
		p.lastErr = err
		slog.Warn("verification check failed", "trigger", trigger, "err", err)
	}
	after := p.state
	p.mu.Unlock()
	p.notify(after)
}

// Resend asks the server to re-send the confirmation email and restarts the
// wait: a fresh email deserves a fresh wall-clock bound, and a timed-out
// poller resumes automatic polling. An overlapping resend is dropped, and
// with no known address there is nothing to resend.
func (p *Poller) Resend(ctx context.Context, email string) error {
	if email == "" {
		return domain.ErrNotFound
	}
	p.mu.Lock()
	if p.resending {
		p.mu.Unlock()
		return nil
	}
	p.resending = true
	p.mu.Unlock()

	err := p.api.ResendConfirmation(ctx, email)

	p.mu.Lock()
	p.resending = false
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if p.state == StateVerified {
		p.mu.Unlock()
		return nil
	}
	p.startedAt = time.Now()
	if p.state == StateTimedOut {
		p.state = StateWaiting
	}
	after := p.state
	p.mu.Unlock()

	select {
	case p.resetTimeout <- struct{}{}:
	default:
	}
	p.notify(after)
	return nil
}

// markVerified is the single entry point for the verified transition, for
// every trigger. First caller wins; repeats are no-ops. Only a locally
// observed verification is announced, so an adopted announcement never
// echoes back around the ring.
func (p *Poller) markVerified(at time.Time, trigger Trigger) {
	p.mu.Lock()
	if p.state == StateVerified {
		p.mu.Unlock()
		return
	}
	p.state = StateVerified
	p.verifiedAt = at
	p.lastErr = nil
	p.mu.Unlock()

	if trigger != TriggerFollower {
		if err := p.signals.AnnounceVerified(at); err != nil {
			slog.Warn("failed to announce verification", "err", err)
		}
	}
	p.notify(StateVerified)
}

func (p *Poller) markTimedOut() {
	p.mu.Lock()
	if p.state == StateVerified || p.state == StateTimedOut {
		p.mu.Unlock()
		return
	}
	// A check may be in flight; TimedOut still takes effect now. The
	// check's non-verified result will find the state already moved.
	p.state = StateTimedOut
	p.mu.Unlock()
	p.notify(StateTimedOut)
}

func (p *Poller) notify(s State) {
	if p.OnState != nil {
		p.OnState(s)
	}
}
