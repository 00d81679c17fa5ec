package signal

import (
	"time"
)

// Well-known keys. The email and verified announcement are durable so any
// client of the same OS user can see them; the waiting marker is transient
// so one client waiting does not make every client think it is waiting.
const (
	keyRememberedEmail = "verify.email"
	keyVerifiedAt      = "verify.verified_at"
	keyWaiting         = "verify.waiting"
)

// Channel is the cross-client signalling surface of the verification flow.
// One client announces "verified" once; every other client of the same OS
// user observes it and can finish without another network round-trip.
type Channel struct {
	durable   WatchStore
	transient Store
}

func NewChannel(durable WatchStore, transient Store) *Channel {
	return &Channel{durable: durable, transient: transient}
}

// RememberEmail records the address awaiting verification so the wait screen
// can recover it after a restart, when the session may not exist yet.
func (c *Channel) RememberEmail(email string) error {
	return c.durable.Set(keyRememberedEmail, email)
}

func (c *Channel) RememberedEmail() (string, bool) {
	v, ok, err := c.durable.Get(keyRememberedEmail)
	if err != nil || v == "" {
		return "", false
	}
	return v, ok
}

func (c *Channel) ClearRememberedEmail() error {
	return c.durable.Delete(keyRememberedEmail)
}

// MarkWaiting flags this client as sitting on the verification wait screen.
// The consistency monitor reads it to skip checks mid-flow.
func (c *Channel) MarkWaiting() error {
	return c.transient.Set(keyWaiting, "1")
}

func (c *Channel) Waiting() bool {
	_, ok, _ := c.transient.Get(keyWaiting)
	return ok
}

func (c *Channel) ClearWaiting() error {
	return c.transient.Delete(keyWaiting)
}

// AnnounceVerified publishes the verification instant. The announcing client
// does not hear its own announcement back; followers do.
func (c *Channel) AnnounceVerified(at time.Time) error {
	return c.durable.Set(keyVerifiedAt, at.UTC().Format(time.RFC3339Nano))
}

// VerifiedAnnounced reports whether some client already announced, and when.
func (c *Channel) VerifiedAnnounced() (time.Time, bool) {
	v, ok, err := c.durable.Get(keyVerifiedAt)
	if err != nil || !ok || v == "" {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func (c *Channel) ClearVerified() error {
	return c.durable.Delete(keyVerifiedAt)
}

// OnVerifiedAnnounced subscribes to announcements from other clients. The
// callback never fires for this channel's own AnnounceVerified.
func (c *Channel) OnVerifiedAnnounced(fn func(at time.Time)) (unsubscribe func()) {
	return c.durable.Watch(keyVerifiedAt, func(value string, ok bool) {
		if !ok || value == "" {
			return
		}
		at, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return
		}
		fn(at)
	})
}
