// Package scanner runs the two background loops of the attendance pipeline:
// the scan cycle (discover, filter, log) and the sync cycle (drain, upload,
// trim). Both gate on the shared event session and convert every failure
// into state instead of terminating.
package scanner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"attendance-scanner/internal/allowlist"
	"attendance-scanner/internal/dedup"
	"attendance-scanner/internal/models"
	"attendance-scanner/internal/registry"
	"attendance-scanner/internal/session"
)

// Appender is the write side of the record store.
type Appender interface {
	Append(rec models.AttendanceRecord) error
}

// ScanController orchestrates one discovery pass: query the radio source,
// filter, append accepted sightings, update counters.
type ScanController struct {
	source   Source
	session  *session.EventSession
	store    Appender
	registry *registry.Filter
	window   *dedup.Window
	allow    *allowlist.Allowlist

	scannerID       string
	discoverTimeout time.Duration
	windowTTL       time.Duration

	logger *slog.Logger
}

type ScanConfig struct {
	ScannerID       string
	DiscoverTimeout time.Duration
	WindowTTL       time.Duration
}

func NewScanController(
	source Source,
	sess *session.EventSession,
	store Appender,
	reg *registry.Filter,
	window *dedup.Window,
	allow *allowlist.Allowlist,
	cfg ScanConfig,
) *ScanController {
	return &ScanController{
		source:          source,
		session:         sess,
		store:           store,
		registry:        reg,
		window:          window,
		allow:           allow,
		scannerID:       cfg.ScannerID,
		discoverTimeout: cfg.DiscoverTimeout,
		windowTTL:       cfg.WindowTTL,
		logger:          slog.With("component", "scan"),
	}
}

// Run executes scan cycles on the given interval until ctx is cancelled.
// The dedup window is cleared unconditionally every windowTTL, independent
// of cycle timing, so long-parked devices get re-logged periodically.
func (c *ScanController) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	rollover := time.NewTicker(c.windowTTL)
	defer rollover.Stop()

	c.logger.Info("scan loop started", "interval", interval, "window_ttl", c.windowTTL)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("scan loop stopped")
			return
		case <-rollover.C:
			c.window.Reset()
			c.logger.Debug("dedup window rolled over")
		case <-ticker.C:
			c.RunCycle(ctx)
		}
	}
}

// RunCycle performs one pass. It never returns an error: failures are
// surfaced on the session and retried on the next tick.
func (c *ScanController) RunCycle(ctx context.Context) {
	eventID, ok := c.session.ScanGate()
	if !ok {
		return
	}
	c.session.IncTotalScans()

	discoveries, err := c.source.Discover(ctx, c.discoverTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("discovery failed", "error", err)
		c.session.SetError("discovery: " + err.Error())
		return
	}

	if err := c.registry.Refresh(ctx, eventID); err != nil {
		if !c.registry.Ready() {
			// No registration data at all: nothing can be logged safely.
			c.logger.Warn("no registration data, skipping cycle", "event_id", eventID, "error", err)
			c.session.SetError(err.Error())
			return
		}
		c.logger.Warn("using stale registrations", "event_id", eventID, "error", err)
		c.session.SetError(err.Error())
	}

	now := time.Now()
	accepted, logged := 0, 0
	for _, d := range discoveries {
		deviceID, name := deriveIdentifier(d)
		if deviceID == "" {
			continue
		}
		// Prefix and registration checks come before the dedup window so a
		// rejected device never consumes a dedup slot.
		if !c.allow.Allowed(deviceID) {
			continue
		}
		if !c.registry.IsRegistered(deviceID) {
			continue
		}
		if !c.window.ShouldAccept(deviceID, now) {
			continue
		}
		accepted++

		rssi := d.RSSI
		rec := models.AttendanceRecord{
			DeviceID:       deviceID,
			TimestampMs:    now.UnixMilli(),
			EventID:        eventID,
			ScannerSource:  c.scannerID,
			SignalStrength: &rssi,
			DeviceName:     name,
		}
		if err := c.store.Append(rec); err != nil {
			// Logging failure is fatal to this record only; the condition
			// (disk full, permissions) may clear before the next cycle.
			c.logger.Error("failed to append record", "device_id", deviceID, "error", err)
			c.session.SetError("store: " + err.Error())
			continue
		}
		logged++
		c.logger.Info("device logged", "device_id", deviceID, "event_id", eventID, "rssi", d.RSSI)
	}

	c.session.AddDevicesFound(accepted)
	c.session.AddRecordsLogged(logged)

	if len(discoveries) > 0 {
		c.logger.Debug("scan cycle complete",
			"discovered", len(discoveries), "accepted", accepted, "logged", logged)
	}
}

// deriveIdentifier picks the logical device identifier for a sighting: the
// NFC-normalized advertised name when present (that is what registrations
// match against), otherwise the stable hardware address.
func deriveIdentifier(d models.Discovery) (deviceID, name string) {
	name = strings.TrimSpace(norm.NFC.String(d.Name))
	if name != "" {
		return name, name
	}
	return d.Address, ""
}
