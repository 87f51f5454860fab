// Package ratelimit provides per-model sliding-window admission control.
//
// Each model owns an independent limiter with its own lock, so saturation
// on one provider never blocks admission checks for another. Refusal is a
// soft signal: callers move to the next candidate instead of waiting.
package ratelimit

import (
	"sync"
	"time"
)

const window = time.Minute

// limiter tracks admitted call timestamps inside the sliding window.
type limiter struct {
	mu     sync.Mutex
	limit  int
	stamps []time.Time
}

// admit records the call and reports whether it fits in the window.
func (l *limiter) admit(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return true
	}

	cutoff := now.Add(-window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Registry holds one limiter per model id.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*limiter

	// now is swappable for tests.
	now func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		limiters: make(map[string]*limiter),
		now:      time.Now,
	}
}

// SetLimit installs or updates the per-minute limit for a model. A limit of
// zero or less disables limiting for that model.
func (r *Registry) SetLimit(modelID string, rpm int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[modelID]; ok {
		l.mu.Lock()
		l.limit = rpm
		l.mu.Unlock()
		return
	}
	r.limiters[modelID] = &limiter{limit: rpm}
}

// Admit reports whether a call to the model may proceed now, and counts it
// against the window when it may. Unknown models are always admitted.
func (r *Registry) Admit(modelID string) bool {
	r.mu.RLock()
	l, ok := r.limiters[modelID]
	now := r.now()
	r.mu.RUnlock()

	if !ok {
		return true
	}
	return l.admit(now)
}
