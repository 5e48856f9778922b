package session

import (
	"errors"
	"testing"
	"time"
)

func TestStartScanning_RequiresEvent(t *testing.T) {
	s := New()
	if err := s.StartScanning(); !errors.Is(err, ErrNoEventSelected) {
		t.Fatalf("StartScanning = %v, want ErrNoEventSelected", err)
	}

	if err := s.SelectEvent("evt-1", "Opening Day"); err != nil {
		t.Fatalf("SelectEvent: %v", err)
	}
	if err := s.StartScanning(); err != nil {
		t.Fatalf("StartScanning after select: %v", err)
	}
	if snap := s.Snapshot(); !snap.IsScanning {
		t.Fatal("IsScanning should be true")
	}
}

func TestStopScanning_RequiresScanning(t *testing.T) {
	s := New()
	if err := s.StopScanning(); !errors.Is(err, ErrNotScanning) {
		t.Fatalf("StopScanning = %v, want ErrNotScanning", err)
	}

	s.SelectEvent("evt-1", "Opening Day")
	s.StartScanning()
	if err := s.StopScanning(); err != nil {
		t.Fatalf("StopScanning: %v", err)
	}
	if err := s.StopScanning(); !errors.Is(err, ErrNotScanning) {
		t.Fatalf("second StopScanning = %v, want ErrNotScanning", err)
	}
}

func TestStopScanning_KeepsCounters(t *testing.T) {
	s := New()
	s.SelectEvent("evt-1", "Opening Day")
	s.StartScanning()
	s.AddRecordsLogged(7)
	s.StopScanning()

	if snap := s.Snapshot(); snap.RecordsLogged != 7 {
		t.Fatalf("RecordsLogged = %d, want 7 after stop", snap.RecordsLogged)
	}
}

func TestSelectEvent_StopsScanningAndFiresHooks(t *testing.T) {
	s := New()
	resets := 0
	s.OnSelect(func() { resets++ })

	s.SelectEvent("evt-1", "Opening Day")
	s.StartScanning()
	s.SetEventActive(true)

	s.SelectEvent("evt-2", "Workshop")
	snap := s.Snapshot()
	if snap.IsScanning {
		t.Fatal("switching events must stop scanning")
	}
	if snap.IsEventActive {
		t.Fatal("switching events must clear the active flag")
	}
	if snap.SelectedEventID != "evt-2" {
		t.Fatalf("SelectedEventID = %s, want evt-2", snap.SelectedEventID)
	}
	if resets != 2 {
		t.Fatalf("reset hooks fired %d times, want 2", resets)
	}
}

func TestSelectEvent_Validation(t *testing.T) {
	s := New()
	if err := s.SelectEvent("", "Opening Day"); !errors.Is(err, ErrMissingEvent) {
		t.Fatalf("SelectEvent with empty id = %v, want ErrMissingEvent", err)
	}
	if err := s.SelectEvent("evt-1", ""); !errors.Is(err, ErrMissingEvent) {
		t.Fatalf("SelectEvent with empty name = %v, want ErrMissingEvent", err)
	}
}

func TestScanGate(t *testing.T) {
	s := New()
	if _, ok := s.ScanGate(); ok {
		t.Fatal("gate open with no event selected")
	}

	s.SelectEvent("evt-1", "Opening Day")
	if _, ok := s.ScanGate(); ok {
		t.Fatal("gate open while not scanning")
	}

	s.StartScanning()
	eventID, ok := s.ScanGate()
	if !ok || eventID != "evt-1" {
		t.Fatalf("ScanGate = (%q, %v), want (evt-1, true)", eventID, ok)
	}
}

func TestCountersAndSyncState(t *testing.T) {
	s := New()
	s.IncTotalScans()
	s.IncTotalScans()
	s.AddDevicesFound(3)
	s.AddRecordsLogged(2)
	s.AddRecordsSynced(2)
	s.SetError("boom")

	snap := s.Snapshot()
	if snap.TotalScans != 2 || snap.DevicesFound != 3 || snap.RecordsLogged != 2 || snap.RecordsSynced != 2 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.LastError != "boom" {
		t.Fatalf("LastError = %q, want boom", snap.LastError)
	}

	now := time.Now()
	s.SetLastSync(now)
	s.ClearError()
	snap = s.Snapshot()
	if snap.LastSyncTimeMs != now.UnixMilli() {
		t.Fatalf("LastSyncTimeMs = %d, want %d", snap.LastSyncTimeMs, now.UnixMilli())
	}
	if snap.LastError != "" {
		t.Fatalf("LastError = %q, want empty", snap.LastError)
	}
}
