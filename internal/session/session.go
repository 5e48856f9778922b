// Package session holds the mutable scanner state shared by the scan loop,
// the sync loop and the control surface.
//
// All access goes through atomic transition operations plus a point-in-time
// Snapshot; the raw fields are never exposed. Loops that gate on a snapshot
// must tolerate the state changing right after the check — the next tick
// simply re-evaluates.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNoEventSelected = errors.New("no event selected")
	ErrNotScanning     = errors.New("no event is currently being scanned")
	ErrMissingEvent    = errors.New("missing event id or name")
)

// Snapshot is a consistent copy of the session at one instant.
type Snapshot struct {
	SelectedEventID   string
	SelectedEventName string
	IsScanning        bool
	IsEventActive     bool

	TotalScans     int64
	DevicesFound   int64
	RecordsLogged  int64
	RecordsSynced  int64
	LastSyncTimeMs int64
	LastError      string
}

// EventSession is the single mutable hub of the scanner. It is never
// persisted: a restart loses the counters but not the record store.
type EventSession struct {
	mu sync.Mutex

	selectedEventID   string
	selectedEventName string
	isScanning        bool
	isEventActive     bool

	totalScans     int64
	devicesFound   int64
	recordsLogged  int64
	recordsSynced  int64
	lastSyncTimeMs int64
	lastError      string

	onSelect []func()
}

func New() *EventSession {
	return &EventSession{}
}

// OnSelect registers a hook invoked whenever the selected event changes.
// Used to reset the dedup window and the registration cache, which are
// scoped to one event.
func (s *EventSession) OnSelect(fn func()) {
	s.mu.Lock()
	s.onSelect = append(s.onSelect, fn)
	s.mu.Unlock()
}

// SelectEvent switches the active event. Scanning always stops: collection
// must not continue under the old event's context.
func (s *EventSession) SelectEvent(eventID, eventName string) error {
	if eventID == "" || eventName == "" {
		return ErrMissingEvent
	}

	s.mu.Lock()
	s.selectedEventID = eventID
	s.selectedEventName = eventName
	s.isScanning = false
	s.isEventActive = false
	hooks := s.onSelect
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (s *EventSession) StartScanning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedEventID == "" {
		return ErrNoEventSelected
	}
	s.isScanning = true
	return nil
}

// StopScanning halts collection at the next cycle boundary. Counters and the
// record store are untouched.
func (s *EventSession) StopScanning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isScanning {
		return ErrNotScanning
	}
	s.isScanning = false
	s.isEventActive = false
	return nil
}

// SetEventActive mirrors the backend-side activation state. It may diverge
// from the scanning flag when the backend rejects an activation request.
func (s *EventSession) SetEventActive(active bool) {
	s.mu.Lock()
	s.isEventActive = active
	s.mu.Unlock()
}

// ScanGate returns the selected event ID when scanning is enabled. Both
// background loops use it as their per-tick entry condition.
func (s *EventSession) ScanGate() (eventID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isScanning || s.selectedEventID == "" {
		return "", false
	}
	return s.selectedEventID, true
}

func (s *EventSession) IncTotalScans() {
	s.mu.Lock()
	s.totalScans++
	s.mu.Unlock()
}

func (s *EventSession) AddDevicesFound(n int) {
	s.mu.Lock()
	s.devicesFound += int64(n)
	s.mu.Unlock()
}

func (s *EventSession) AddRecordsLogged(n int) {
	s.mu.Lock()
	s.recordsLogged += int64(n)
	s.mu.Unlock()
}

func (s *EventSession) AddRecordsSynced(n int) {
	s.mu.Lock()
	s.recordsSynced += int64(n)
	s.mu.Unlock()
}

func (s *EventSession) SetLastSync(t time.Time) {
	s.mu.Lock()
	s.lastSyncTimeMs = t.UnixMilli()
	s.mu.Unlock()
}

func (s *EventSession) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *EventSession) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

func (s *EventSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SelectedEventID:   s.selectedEventID,
		SelectedEventName: s.selectedEventName,
		IsScanning:        s.isScanning,
		IsEventActive:     s.isEventActive,
		TotalScans:        s.totalScans,
		DevicesFound:      s.devicesFound,
		RecordsLogged:     s.recordsLogged,
		RecordsSynced:     s.recordsSynced,
		LastSyncTimeMs:    s.lastSyncTimeMs,
		LastError:         s.lastError,
	}
}
