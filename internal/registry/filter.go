// Package registry caches the backend's per-event device registrations.
//
// The cache is disposable and scoped to one event: switching events throws
// it away. A failed refresh keeps the previous set rather than replacing it
// with an empty one — an empty set from a failed fetch would otherwise turn
// into "reject everything" or, worse, be confused with a valid open event.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DeviceLister fetches the registered device identifiers for an event.
type DeviceLister interface {
	RegisteredDevices(ctx context.Context, eventID string) ([]string, error)
}

// StaleRegistrationsError signals that a refresh failed and membership tests
// run against a previously cached set. Non-fatal: the caller decides whether
// the stale set is usable.
type StaleRegistrationsError struct {
	EventID string
	Err     error
}

func (e *StaleRegistrationsError) Error() string {
	return fmt.Sprintf("registrations for event %s are stale: %v", e.EventID, e.Err)
}

func (e *StaleRegistrationsError) Unwrap() error { return e.Err }

// Filter is the per-event set of device identifiers eligible for logging.
type Filter struct {
	mu      sync.RWMutex
	backend DeviceLister
	ttl     time.Duration
	logger  *slog.Logger

	eventID   string
	devices   map[string]struct{}
	fetchedAt time.Time
	ready     bool // at least one successful fetch for eventID
}

func NewFilter(backend DeviceLister, ttl time.Duration) *Filter {
	return &Filter{
		backend: backend,
		ttl:     ttl,
		logger:  slog.With("component", "registry"),
		devices: make(map[string]struct{}),
	}
}

// Refresh fetches the registrations for eventID unless a fresh-enough set is
// already cached. On fetch failure the cached set is left untouched and a
// StaleRegistrationsError is returned; the error wraps the cause.
func (f *Filter) Refresh(ctx context.Context, eventID string) error {
	f.mu.Lock()
	if eventID != f.eventID {
		// Event switched; the old cache is meaningless.
		f.eventID = eventID
		f.devices = make(map[string]struct{})
		f.ready = false
		f.fetchedAt = time.Time{}
	} else if f.ready && time.Since(f.fetchedAt) < f.ttl {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	devices, err := f.backend.RegisteredDevices(ctx, eventID)
	if err != nil {
		return &StaleRegistrationsError{EventID: eventID, Err: err}
	}

	set := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		set[d] = struct{}{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventID != eventID {
		// Event switched while we were fetching; discard the result.
		return nil
	}
	f.devices = set
	f.fetchedAt = time.Now()
	f.ready = true

	f.logger.Debug("registrations refreshed", "event_id", eventID, "devices", len(set))
	return nil
}

// IsRegistered tests membership against the current cached set.
func (f *Filter) IsRegistered(deviceID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.devices[deviceID]
	return ok
}

// Ready reports whether any fetch has succeeded for the current event.
// While false, callers must not log anything: there is no basis to decide
// registration.
func (f *Filter) Ready() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ready
}

// Size returns the number of cached registrations.
func (f *Filter) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.devices)
}

// Reset discards the cache. Called when the selected event changes.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventID = ""
	f.devices = make(map[string]struct{})
	f.ready = false
	f.fetchedAt = time.Time{}
}
