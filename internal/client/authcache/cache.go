// Package authcache holds the client's local view of "who is signed in".
// Screens render from it instead of calling the API; the consistency monitor
// compares it against the server and forces a refresh when they disagree.
package authcache

import (
	"context"
	"errors"
	"sync"

	"github.com/huddleup/authsync/internal/client/identity"
	"github.com/huddleup/authsync/internal/domain"
)

// Source supplies the facts the cache is derived from.
type Source interface {
	CurrentSession(ctx context.Context) (*identity.Session, error)
	CurrentProfile(ctx context.Context) (*identity.Profile, error)
}

// Cache is the client-side auth context. All methods are safe for
// concurrent use; the poller, the monitor and the UI share one Cache.
type Cache struct {
	mu       sync.RWMutex
	snapshot domain.AuthSnapshot
	email    string
	loading  bool
}

func New() *Cache {
	return &Cache{}
}

// Snapshot returns the cached view. The zero value means "signed out".
func (c *Cache) Snapshot() domain.AuthSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Email returns the session email, if an authenticated snapshot is cached.
func (c *Cache) Email() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email, c.email != ""
}

func (c *Cache) Set(snap domain.AuthSnapshot, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snap
	c.email = email
}

// Loading reports whether a refresh is in flight. The monitor skips its
// comparison while true; a half-derived cache disagrees with everything.
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Cache) setLoading(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = v
}

// Refresh re-derives the cache from the source. No session is a valid
// outcome, not an error: the cache then records "signed out".
func (c *Cache) Refresh(ctx context.Context, src Source) error {
	c.setLoading(true)
	defer c.setLoading(false)

	sess, err := src.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			c.Set(domain.AuthSnapshot{IsAuthenticated: false}, "")
			return nil
		}
		return err
	}
	snap := domain.AuthSnapshot{IsAuthenticated: true, UserID: sess.User.ID}
	if p, err := src.CurrentProfile(ctx); err == nil {
		snap.ProfileID = p.ProfileID
	}
	c.Set(snap, sess.User.Email)
	return nil
}
