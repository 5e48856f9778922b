// Package archive keeps a local sqlite copy of every batch that was
// confirmed by the backend. The JSONL log only retains a short tail after a
// sync, so the archive is the durable on-device audit trail.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"attendance-scanner/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_batches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	synced_at   INTEGER NOT NULL,
	processed   INTEGER NOT NULL,
	successful  INTEGER NOT NULL,
	duplicates  INTEGER NOT NULL,
	errors      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS archived_records (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id        INTEGER NOT NULL REFERENCES sync_batches(id),
	device_id       TEXT NOT NULL,
	timestamp_ms    INTEGER NOT NULL,
	event_id        TEXT NOT NULL,
	scanner_source  TEXT NOT NULL,
	signal_strength INTEGER,
	device_name     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_archived_records_batch ON archived_records(batch_id);
CREATE INDEX IF NOT EXISTS idx_archived_records_event ON archived_records(event_id);
`

// BatchSummary is one row of the sync history.
type BatchSummary struct {
	ID         int64 `db:"id" json:"id"`
	SyncedAtMs int64 `db:"synced_at" json:"syncedAtMs"`
	Processed  int   `db:"processed" json:"processed"`
	Successful int   `db:"successful" json:"successful"`
	Duplicates int   `db:"duplicates" json:"duplicates"`
	Errors     int   `db:"errors" json:"errors"`
}

// Archive is the sqlite-backed batch archive.
type Archive struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens or creates the archive database at path and applies the schema.
func Open(path string) (*Archive, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Archive{
		db:     db,
		logger: slog.With("component", "archive"),
	}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// RecordBatch stores one confirmed batch and its records in a single
// transaction.
func (a *Archive) RecordBatch(ctx context.Context, records []models.AttendanceRecord, result models.BatchResult) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_batches (synced_at, processed, successful, duplicates, errors)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), result.Processed, result.Successful, result.Duplicates, result.Errors)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("batch id: %w", err)
	}

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO archived_records (batch_id, device_id, timestamp_ms, event_id, scanner_source, signal_strength, device_name)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			batchID, rec.DeviceID, rec.TimestampMs, rec.EventID, rec.ScannerSource, rec.SignalStrength, rec.DeviceName); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}

	a.logger.Debug("batch archived", "batch_id", batchID, "records", len(records))
	return nil
}

// RecentBatches returns the newest batches, most recent first.
func (a *Archive) RecentBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var batches []BatchSummary
	err := a.db.SelectContext(ctx, &batches,
		`SELECT id, synced_at, processed, successful, duplicates, errors
		 FROM sync_batches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	return batches, nil
}

// RecordCount returns the number of archived records, optionally scoped to
// one event.
func (a *Archive) RecordCount(ctx context.Context, eventID string) (int, error) {
	var n int
	var err error
	if eventID == "" {
		err = a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM archived_records`)
	} else {
		err = a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM archived_records WHERE event_id = ?`, eventID)
	}
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
