package signaling

import (
	"sync"
	"time"
)

// interruptionSuffix keys a call's grace timer separately from its ring or
// duration timer, so the two never collide in the registry.
const interruptionSuffix = "_interruption"

// timerRegistry tracks at most one live timer per key and guarantees that a
// cancelled or replaced timer never runs its callback: the callback re-checks
// that its own entry is still the registered one before acting, which closes
// the window where time.Timer.Stop returns false because the function already
// fired but has not yet been observed.
type timerRegistry struct {
	mu      sync.Mutex
	entries map[string]*timerEntry
}

type timerEntry struct {
	timer *time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{entries: make(map[string]*timerEntry)}
}

// Set schedules fn after d, replacing (and invalidating) any timer already
// registered under key.
func (r *timerRegistry) Set(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[key]; ok {
		old.timer.Stop()
		delete(r.entries, key)
	}

	e := &timerEntry{}
	r.entries[key] = e
	e.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		cur, ok := r.entries[key]
		if !ok || cur != e {
			r.mu.Unlock()
			return
		}
		delete(r.entries, key)
		r.mu.Unlock()
		fn()
	})
}

// Cancel invalidates the timer under key, if any. After Cancel returns the
// callback will not run even if the timer had already expired.
func (r *timerRegistry) Cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.timer.Stop()
		delete(r.entries, key)
	}
}

func (r *timerRegistry) active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}
