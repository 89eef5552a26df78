// Package arena keeps per-entity cancellable timers so that two racing
// completion paths (an explicit decision vs. a timeout, a device ack vs. a
// grace timer) resolve deterministically: whichever path removes the entry
// first wins, the loser observes "not found" and becomes a no-op.
package arena

import (
	"sync"
	"time"
)

// Arena holds at most one armed timer per key.
type Arena[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*time.Timer
}

// New creates an empty arena.
func New[K comparable]() *Arena[K] {
	return &Arena[K]{entries: make(map[K]*time.Timer)}
}

// Arm registers a timer for key firing fn after d. When the timer fires, the
// entry is removed atomically before fn runs; if another path already took
// the entry, fn is never invoked. Arming an already-armed key replaces and
// stops the previous timer.
func (a *Arena[K]) Arm(key K, d time.Duration, fn func()) {
	a.mu.Lock()
	if prev, ok := a.entries[key]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		if a.take(key, timer) {
			fn()
		}
	})
	a.entries[key] = timer
	a.mu.Unlock()
}

// Resolve removes the key's entry and stops its timer. It reports whether the
// caller won the race – false means the timer already fired (or the key was
// never armed) and the caller's effects must not be applied.
func (a *Arena[K]) Resolve(key K) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	timer, ok := a.entries[key]
	if !ok {
		return false
	}
	delete(a.entries, key)
	timer.Stop()
	return true
}

// Len returns the number of armed entries. Used by tests to assert that no
// timer leaks past a terminal transition.
func (a *Arena[K]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// take removes the entry only when it still maps to the firing timer; a
// replacement armed after this timer was scheduled keeps its own entry.
func (a *Arena[K]) take(key K, timer *time.Timer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	current, ok := a.entries[key]
	if !ok || current != timer {
		return false
	}
	delete(a.entries, key)
	return true
}
