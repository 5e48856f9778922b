// Package dedup suppresses repeated logging of the same device.
//
// The radio source rediscovers every stationary device on each pass, so
// without a window in front of it every cycle would append the same set of
// records again. Entries expire after a TTL rather than being suppressed
// permanently: a device that leaves and returns later is worth a new record.
package dedup

import (
	"sync"
	"time"
)

// Window is a bounded, time-expiring set of recently logged device IDs.
type Window struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time // value = last accepted sighting
}

func NewWindow(ttl time.Duration) *Window {
	return &Window{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// ShouldAccept reports whether deviceID has not been accepted within the TTL.
// On acceptance the entry is recorded/refreshed, so callers must only invoke
// this once all cheaper filters have passed.
func (w *Window) ShouldAccept(deviceID string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.seen[deviceID]; ok && now.Sub(last) < w.ttl {
		return false
	}
	w.seen[deviceID] = now
	return true
}

// Reset clears all entries. Called on the periodic window rollover and
// whenever the selected event changes.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = make(map[string]time.Time)
}

// Len returns the number of tracked entries, expired ones included.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
