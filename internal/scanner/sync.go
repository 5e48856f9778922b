package scanner

import (
	"context"
	"log/slog"
	"time"

	"attendance-scanner/internal/models"
	"attendance-scanner/internal/session"
)

// Batcher is the upload side of the backend client.
type Batcher interface {
	BatchCheckin(ctx context.Context, records []models.AttendanceRecord) (*models.BatchResult, error)
}

// RecordQueue is the read-and-trim side of the record store.
type RecordQueue interface {
	ReadAll() ([]models.AttendanceRecord, error)
	TruncateToTail(n int) error
}

// Archiver keeps a copy of successfully synced batches. Optional; archive
// failures never fail a sync.
type Archiver interface {
	RecordBatch(ctx context.Context, records []models.AttendanceRecord, result models.BatchResult) error
}

// Notifier is alerted after repeated consecutive sync failures. Optional.
type Notifier interface {
	SyncFailed(ctx context.Context, consecutive int, lastErr string, pending int) error
}

// SyncController periodically drains the record store, uploads the batch and
// trims the store on confirmed success. The store is only ever mutated after
// a confirmed backend response, so an abandoned in-flight upload cannot
// corrupt it.
type SyncController struct {
	backend Batcher
	store   RecordQueue
	session *session.EventSession
	archive Archiver // may be nil
	alerts  Notifier // may be nil

	keep       int
	alertAfter int

	failures int
	alerted  bool

	logger *slog.Logger
}

type SyncConfig struct {
	// Tail retained after a successful sync, a safety buffer for
	// debugging and replay.
	KeepRecords int
	// Consecutive failures before the notifier fires. Zero disables
	// alerting even when a notifier is set.
	AlertAfterFailures int
}

func NewSyncController(backend Batcher, store RecordQueue, sess *session.EventSession, cfg SyncConfig) *SyncController {
	return &SyncController{
		backend:    backend,
		store:      store,
		session:    sess,
		keep:       cfg.KeepRecords,
		alertAfter: cfg.AlertAfterFailures,
		logger:     slog.With("component", "sync"),
	}
}

// WithArchive attaches an archive for synced batches.
func (c *SyncController) WithArchive(a Archiver) *SyncController {
	c.archive = a
	return c
}

// WithNotifier attaches a failure notifier.
func (c *SyncController) WithNotifier(n Notifier) *SyncController {
	c.alerts = n
	return c
}

// Run executes sync cycles on the given interval until ctx is cancelled.
// Failed syncs are never dropped, only delayed until the next tick.
func (c *SyncController) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("sync loop started", "interval", interval, "keep", c.keep)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync loop stopped")
			return
		case <-ticker.C:
			c.RunCycle(ctx)
		}
	}
}

// RunCycle performs one read-batch-send-trim pass. The trim only ever runs
// after the send is confirmed.
func (c *SyncController) RunCycle(ctx context.Context) {
	if _, ok := c.session.ScanGate(); !ok {
		return
	}

	records, err := c.store.ReadAll()
	if err != nil {
		c.logger.Error("failed to read pending records", "error", err)
		c.session.SetError("store: " + err.Error())
		return
	}
	if len(records) == 0 {
		return
	}

	result, err := c.backend.BatchCheckin(ctx, records)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.failures++
		c.logger.Warn("sync failed", "pending", len(records), "consecutive_failures", c.failures, "error", err)
		c.session.SetError("sync: " + err.Error())
		c.maybeAlert(ctx, err.Error(), len(records))
		return
	}

	c.failures = 0
	c.alerted = false

	c.session.AddRecordsSynced(result.Successful)
	c.session.SetLastSync(time.Now())
	c.session.ClearError()

	if c.archive != nil {
		if err := c.archive.RecordBatch(ctx, records, *result); err != nil {
			c.logger.Warn("failed to archive synced batch", "error", err)
		}
	}

	if err := c.store.TruncateToTail(c.keep); err != nil {
		c.logger.Error("failed to trim record log", "error", err)
		c.session.SetError("store: " + err.Error())
		return
	}

	c.logger.Info("batch synced",
		"processed", result.Processed,
		"successful", result.Successful,
		"duplicates", result.Duplicates,
		"errors", result.Errors)
}

func (c *SyncController) maybeAlert(ctx context.Context, lastErr string, pending int) {
	if c.alerts == nil || c.alertAfter <= 0 || c.alerted || c.failures < c.alertAfter {
		return
	}
	// One alert per outage; re-armed when a sync succeeds again.
	c.alerted = true
	if err := c.alerts.SyncFailed(ctx, c.failures, lastErr, pending); err != nil {
		c.logger.Error("failed to send sync alert", "error", err)
	}
}
