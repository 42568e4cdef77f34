// Package limiter implements per-client fixed-window admission control for
// contact submissions.
//
// Two implementations share the Limiter contract:
//   - FixedWindow keeps counters in process memory (best effort; resets on
//     restart, not shared between instances).
//   - RedisFixedWindow keeps counters in Redis so several instances share one
//     budget per client.
//
// The limiter is an abuse deterrent, not a security boundary.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-contact-intake/internal/domain"
)

// Default window parameters: 5 admitted submissions per client per hour.
const (
	DefaultWindow = time.Hour
	DefaultMax    = 5
)

// Decision is the outcome of an admission check.
type Decision int

const (
	Admitted Decision = iota
	Rejected
)

func (d Decision) String() string {
	if d == Rejected {
		return "rejected"
	}
	return "admitted"
}

// Limiter decides whether a client may submit at time now.
type Limiter interface {
	Admit(ctx context.Context, clientKey string, now time.Time) (Decision, error)
}

// FixedWindow is a process-local fixed-window counter keyed by client.
//
// Entries whose window has expired are swept opportunistically every
// sweepEvery calls so the map stays bounded by recently active clients.
// Safe for concurrent use.
type FixedWindow struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	entries map[string]*domain.RateLimitEntry
	calls   uint64
}

const sweepEvery = 5000

// NewFixedWindow returns a limiter admitting max calls per window per key.
// Non-positive arguments fall back to DefaultWindow and DefaultMax.
func NewFixedWindow(window time.Duration, max int) *FixedWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &FixedWindow{
		window:  window,
		max:     max,
		entries: make(map[string]*domain.RateLimitEntry),
	}
}

// Admit implements Limiter. It never returns an error.
//
// A missing or expired entry (now - windowStart > window) is reset to
// {count: 1, windowStart: now}. Otherwise the count is incremented and the
// call is rejected once it exceeds max; the increment is kept.
func (l *FixedWindow) Admit(_ context.Context, clientKey string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls >= sweepEvery {
		for k, e := range l.entries {
			if now.Sub(e.WindowStart) > l.window {
				delete(l.entries, k)
			}
		}
		l.calls = 0
	}

	e, ok := l.entries[clientKey]
	if !ok || now.Sub(e.WindowStart) > l.window {
		l.entries[clientKey] = &domain.RateLimitEntry{ClientKey: clientKey, Count: 1, WindowStart: now}
		return Admitted, nil
	}
	e.Count++
	if e.Count > l.max {
		return Rejected, nil
	}
	return Admitted, nil
}

// Entry returns a copy of the counter for clientKey.
func (l *FixedWindow) Entry(clientKey string) (domain.RateLimitEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[clientKey]
	if !ok {
		return domain.RateLimitEntry{}, false
	}
	return *e, true
}

// Len reports the number of tracked client keys.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
