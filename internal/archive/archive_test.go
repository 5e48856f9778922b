package archive

import (
	"context"
	"path/filepath"
	"testing"

	"attendance-scanner/internal/models"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func rssi(v int) *int { return &v }

func TestRecordBatch_RoundTrip(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	records := []models.AttendanceRecord{
		{DeviceID: "EVT-A", TimestampMs: 1000, EventID: "evt-1", ScannerSource: "Scanner-01", SignalStrength: rssi(-42), DeviceName: "EVT-A"},
		{DeviceID: "EVT-B", TimestampMs: 2000, EventID: "evt-1", ScannerSource: "Scanner-01"},
	}
	result := models.BatchResult{Processed: 2, Successful: 2}

	if err := a.RecordBatch(ctx, records, result); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	batches, err := a.RecentBatches(ctx, 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if batches[0].Processed != 2 || batches[0].Successful != 2 {
		t.Fatalf("unexpected batch summary: %+v", batches[0])
	}
	if batches[0].SyncedAtMs == 0 {
		t.Fatal("SyncedAtMs not set")
	}

	n, err := a.RecordCount(ctx, "")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d records, want 2", n)
	}
}

func TestRecentBatches_NewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result := models.BatchResult{Processed: i, Successful: i}
		if err := a.RecordBatch(ctx, nil, result); err != nil {
			t.Fatalf("RecordBatch %d: %v", i, err)
		}
	}

	batches, err := a.RecentBatches(ctx, 2)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want limit 2", len(batches))
	}
	if batches[0].Processed != 3 || batches[1].Processed != 2 {
		t.Fatalf("wrong order: %+v", batches)
	}
}

func TestRecordCount_ByEvent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	records := []models.AttendanceRecord{
		{DeviceID: "A", TimestampMs: 1, EventID: "evt-1", ScannerSource: "s"},
		{DeviceID: "B", TimestampMs: 2, EventID: "evt-1", ScannerSource: "s"},
		{DeviceID: "C", TimestampMs: 3, EventID: "evt-2", ScannerSource: "s"},
	}
	if err := a.RecordBatch(ctx, records, models.BatchResult{Processed: 3, Successful: 3}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	n, err := a.RecordCount(ctx, "evt-1")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d records for evt-1, want 2", n)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.RecordBatch(context.Background(), nil, models.BatchResult{Processed: 1, Successful: 1}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	a.Close()

	a, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()

	batches, err := a.RecentBatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches after reopen, want 1", len(batches))
	}
}
