package monitor

import (
	"sync"
	"time"
)

// Activity tracks the last user input. Input sources call Touch; the monitor
// asks how long the user has been quiet.
type Activity struct {
	mu   sync.Mutex
	last time.Time
}

func NewActivity() *Activity {
	// A fresh tracker counts as "just active": launching the client is
	// itself user activity.
	return &Activity{last: time.Now()}
}

// Touch records input now.
func (a *Activity) Touch() {
	a.mu.Lock()
	a.last = time.Now()
	a.mu.Unlock()
}

// IdleFor is the time since the last input.
func (a *Activity) IdleFor() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.last)
}
