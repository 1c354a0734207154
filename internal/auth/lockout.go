package auth

import (
	"sync"
	"time"
)

// Lockout blocks a key after too many consecutive failures.
type Lockout struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	failures    int
	lockedUntil time.Time
	last        time.Time
}

// NewLockout locks a key for window once it fails maxAttempts times within it.
func NewLockout(maxAttempts int, window time.Duration) *Lockout {
	return &Lockout{
		max:     maxAttempts,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*lockEntry),
	}
}

// Check returns how long key remains locked, or zero.
func (l *Lockout) Check(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return 0
	}
	if wait := e.lockedUntil.Sub(l.now()); wait > 0 {
		return wait
	}
	return 0
}

// Fail records a failure and reports whether the key is now locked.
func (l *Lockout) Fail(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evict(now)

	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	// Failures older than the window start a fresh count.
	if now.Sub(e.last) > l.window {
		e.failures = 0
	}
	e.failures++
	e.last = now
	if e.failures >= l.max {
		e.lockedUntil = now.Add(l.window)
		e.failures = 0
		return true
	}
	return false
}

// Reset clears the key after a success.
func (l *Lockout) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

func (l *Lockout) evict(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.last) > l.window && now.After(e.lockedUntil) {
			delete(l.entries, k)
		}
	}
}
