// Package monitor is the auth-state consistency watchdog: it periodically
// compares the server's view of "who is signed in" against the local cache
// and forces a resync when the two disagree in a way screens would notice.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huddleup/authsync/internal/client/authcache"
	"github.com/huddleup/authsync/internal/client/signal"
	"github.com/huddleup/authsync/internal/config"
	"github.com/huddleup/authsync/internal/domain"
)

// Result classifies one consistency check.
type Result int

const (
	// ResultConsistent: server and cache agree.
	ResultConsistent Result = iota
	// ResultResynced: major disagreement; the cache was re-derived.
	ResultResynced
	// ResultSkippedActivity: user input inside the quiet period.
	ResultSkippedActivity
	// ResultSkippedLoading: the cache is mid-refresh.
	ResultSkippedLoading
	// ResultSkippedWaiting: this client sits on the verification wait
	// screen, where auth state is expected to be in flux.
	ResultSkippedWaiting
	// ResultError: the server could not be asked; nothing was concluded.
	ResultError
)

type snapshotAPI interface {
	Snapshot(ctx context.Context) (domain.AuthSnapshot, error)
}

// Monitor runs the periodic check. Resync is the forced re-derivation
// callback; it must leave the cache consistent with the server.
type Monitor struct {
	api      snapshotAPI
	cache    *authcache.Cache
	activity *Activity
	signals  *signal.Channel
	cfg      config.ClientConfig
	resync   func(ctx context.Context) error

	mu        sync.Mutex
	lastCheck time.Time
	lastErr   error
	resyncs   int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(api snapshotAPI, cache *authcache.Cache, activity *Activity, signals *signal.Channel, cfg config.ClientConfig, resync func(ctx context.Context) error) *Monitor {
	return &Monitor{
		api:      api,
		cache:    cache,
		activity: activity,
		signals:  signals,
		cfg:      cfg,
		resync:   resync,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop: first check after the initial delay, then on the
// regular interval. The initial delay keeps the monitor out of startup's
// way; the session is still being established.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	initial := time.NewTimer(m.cfg.MonitorInitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-m.stop:
		return
	case <-initial.C:
		m.CheckNow(ctx)
	}

	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow performs one consistency check. A check never runs against a
// moving target: recent input, a loading cache, or an in-progress
// verification wait each defer to the next cycle instead.
func (m *Monitor) CheckNow(ctx context.Context) Result {
	if m.activity.IdleFor() < m.cfg.QuietPeriod {
		return ResultSkippedActivity
	}
	if m.cache.Loading() {
		return ResultSkippedLoading
	}
	if m.signals.Waiting() {
		return ResultSkippedWaiting
	}

	server, err := m.api.Snapshot(ctx)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		slog.Warn("auth consistency check failed", "err", err)
		return ResultError
	}

	local := m.cache.Snapshot()
	result := ResultConsistent
	if !server.ConsistentWith(local) {
		slog.Warn("auth state inconsistency detected, forcing resync",
			"server_authenticated", server.IsAuthenticated,
			"local_authenticated", local.IsAuthenticated)
		if err := m.resync(ctx); err != nil {
			m.mu.Lock()
			m.lastErr = err
			m.mu.Unlock()
			return ResultError
		}
		m.mu.Lock()
		m.resyncs++
		m.mu.Unlock()
		result = ResultResynced
	}

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.lastErr = nil
	m.mu.Unlock()
	return result
}

// LastCheck returns when a check last completed (successfully or with a
// detected-and-resolved inconsistency).
func (m *Monitor) LastCheck() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck, !m.lastCheck.IsZero()
}

func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Resyncs counts forced resyncs since start.
func (m *Monitor) Resyncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resyncs
}
