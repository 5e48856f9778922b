package scanner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"attendance-scanner/internal/models"
	"attendance-scanner/internal/session"
	"attendance-scanner/internal/store"
)

type fakeBatcher struct {
	calls  int
	got    []models.AttendanceRecord
	result *models.BatchResult
	err    error
}

func (f *fakeBatcher) BatchCheckin(ctx context.Context, records []models.AttendanceRecord) (*models.BatchResult, error) {
	f.calls++
	f.got = records
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var _ Batcher = (*fakeBatcher)(nil)

type fakeArchiver struct {
	calls  int
	result models.BatchResult
	err    error
}

func (f *fakeArchiver) RecordBatch(ctx context.Context, records []models.AttendanceRecord, result models.BatchResult) error {
	f.calls++
	f.result = result
	return f.err
}

type fakeNotifier struct {
	calls       int
	consecutive int
	pending     int
}

func (f *fakeNotifier) SyncFailed(ctx context.Context, consecutive int, lastErr string, pending int) error {
	f.calls++
	f.consecutive = consecutive
	f.pending = pending
	return nil
}

type syncFixture struct {
	controller *SyncController
	session    *session.EventSession
	store      *store.RecordStore
	backend    *fakeBatcher
}

func newSyncFixture(t *testing.T, keep int) *syncFixture {
	t.Helper()

	f := &syncFixture{
		session: session.New(),
		store:   store.New(filepath.Join(t.TempDir(), "log.jsonl")),
		backend: &fakeBatcher{},
	}
	f.controller = NewSyncController(f.backend, f.store, f.session, SyncConfig{KeepRecords: keep})

	f.session.SelectEvent("evt-1", "Opening Day")
	f.session.StartScanning()
	return f
}

func (f *syncFixture) seed(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := models.AttendanceRecord{
			DeviceID:      "EVT-" + string(rune('A'+i)),
			TimestampMs:   int64(1000 + i),
			EventID:       "evt-1",
			ScannerSource: "Scanner-01",
		}
		if err := f.store.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func (f *syncFixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func TestSyncCycle_Success(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 5)
	f.backend.result = &models.BatchResult{Processed: 5, Successful: 5}
	f.session.SetError("discovery: previous failure")

	f.controller.RunCycle(context.Background())

	if f.backend.calls != 1 {
		t.Fatalf("backend called %d times, want 1", f.backend.calls)
	}
	if len(f.backend.got) != 5 {
		t.Fatalf("uploaded %d records, want 5", len(f.backend.got))
	}
	// 5 pending is under the keep threshold, so the trim is a no-op.
	if n := f.count(t); n != 5 {
		t.Fatalf("store has %d records, want 5", n)
	}

	snap := f.session.Snapshot()
	if snap.RecordsSynced != 5 {
		t.Fatalf("RecordsSynced = %d, want 5", snap.RecordsSynced)
	}
	if snap.LastSyncTimeMs == 0 {
		t.Fatal("LastSyncTimeMs not set after successful sync")
	}
	if snap.LastError != "" {
		t.Fatalf("LastError = %q, want cleared after successful sync", snap.LastError)
	}
}

func TestSyncCycle_TrimsToKeepThreshold(t *testing.T) {
	f := newSyncFixture(t, 3)
	f.seed(t, 10)
	f.backend.result = &models.BatchResult{Processed: 10, Successful: 10}

	f.controller.RunCycle(context.Background())

	if n := f.count(t); n != 3 {
		t.Fatalf("store has %d records after trim, want 3", n)
	}
	records, err := f.store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	// Most recent tail survives.
	if records[0].TimestampMs != 1007 || records[2].TimestampMs != 1009 {
		t.Fatalf("wrong tail kept: %+v", records)
	}
}

func TestSyncCycle_BackendFailureKeepsRecords(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 5)
	f.backend.err = errors.New("connection refused")

	f.controller.RunCycle(context.Background())

	if n := f.count(t); n != 5 {
		t.Fatalf("store has %d records after failed sync, want 5 untouched", n)
	}
	snap := f.session.Snapshot()
	if snap.RecordsSynced != 0 {
		t.Fatalf("RecordsSynced = %d, want 0", snap.RecordsSynced)
	}
	if snap.LastError == "" {
		t.Fatal("sync failure should surface via LastError")
	}

	// Backend recovers; the same batch goes out on the next tick.
	f.backend.err = nil
	f.backend.result = &models.BatchResult{Processed: 5, Successful: 5}
	f.controller.RunCycle(context.Background())
	if snap := f.session.Snapshot(); snap.RecordsSynced != 5 {
		t.Fatalf("RecordsSynced = %d after recovery, want 5", snap.RecordsSynced)
	}
}

func TestSyncCycle_DuplicatesNotCountedAsSynced(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 5)
	f.backend.result = &models.BatchResult{Processed: 5, Successful: 2, Duplicates: 3}

	f.controller.RunCycle(context.Background())

	if snap := f.session.Snapshot(); snap.RecordsSynced != 2 {
		t.Fatalf("RecordsSynced = %d, want 2 (duplicates excluded)", snap.RecordsSynced)
	}
}

func TestSyncCycle_NoRecordsNoCall(t *testing.T) {
	f := newSyncFixture(t, 100)

	f.controller.RunCycle(context.Background())

	if f.backend.calls != 0 {
		t.Fatalf("backend called %d times with empty store, want 0", f.backend.calls)
	}
}

func TestSyncCycle_GateClosed(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 3)
	f.session.StopScanning()

	f.controller.RunCycle(context.Background())

	if f.backend.calls != 0 {
		t.Fatalf("backend called %d times while stopped, want 0", f.backend.calls)
	}
	if n := f.count(t); n != 3 {
		t.Fatalf("store has %d records, want 3 untouched", n)
	}
}

func TestSyncCycle_ArchivesSyncedBatch(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 4)
	f.backend.result = &models.BatchResult{Processed: 4, Successful: 4}
	archive := &fakeArchiver{}
	f.controller.WithArchive(archive)

	f.controller.RunCycle(context.Background())

	if archive.calls != 1 {
		t.Fatalf("archive called %d times, want 1", archive.calls)
	}
	if archive.result.Successful != 4 {
		t.Fatalf("archived result = %+v, want successful 4", archive.result)
	}
}

func TestSyncCycle_ArchiveFailureDoesNotFailSync(t *testing.T) {
	f := newSyncFixture(t, 2)
	f.seed(t, 4)
	f.backend.result = &models.BatchResult{Processed: 4, Successful: 4}
	f.controller.WithArchive(&fakeArchiver{err: errors.New("disk full")})

	f.controller.RunCycle(context.Background())

	if snap := f.session.Snapshot(); snap.RecordsSynced != 4 || snap.LastError != "" {
		t.Fatalf("archive failure leaked into sync state: %+v", snap)
	}
	if n := f.count(t); n != 2 {
		t.Fatalf("store has %d records, want trimmed to 2 despite archive failure", n)
	}
}

func TestSyncCycle_AlertsAfterConsecutiveFailures(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 5)
	f.backend.err = errors.New("connection refused")
	notifier := &fakeNotifier{}
	f.controller.alertAfter = 3
	f.controller.WithNotifier(notifier)

	for i := 0; i < 5; i++ {
		f.controller.RunCycle(context.Background())
	}

	if notifier.calls != 1 {
		t.Fatalf("notifier fired %d times, want exactly 1 per outage", notifier.calls)
	}
	if notifier.consecutive != 3 || notifier.pending != 5 {
		t.Fatalf("alert carried consecutive=%d pending=%d, want 3 and 5", notifier.consecutive, notifier.pending)
	}

	// A successful sync re-arms the alert for the next outage.
	f.backend.err = nil
	f.backend.result = &models.BatchResult{Processed: 5, Successful: 5}
	f.controller.RunCycle(context.Background())

	f.backend.err = errors.New("connection refused")
	f.seed(t, 1)
	for i := 0; i < 3; i++ {
		f.controller.RunCycle(context.Background())
	}
	if notifier.calls != 2 {
		t.Fatalf("notifier fired %d times across two outages, want 2", notifier.calls)
	}
}

func TestSyncCycle_NoNotifierNoPanic(t *testing.T) {
	f := newSyncFixture(t, 100)
	f.seed(t, 1)
	f.backend.err = errors.New("connection refused")
	f.controller.alertAfter = 1

	f.controller.RunCycle(context.Background())
	f.controller.RunCycle(context.Background())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newSyncFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.controller.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
