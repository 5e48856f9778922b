package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"attendance-scanner/internal/config"
	"attendance-scanner/internal/models"
	"attendance-scanner/internal/session"
)

const qrImageSize = 512

func (s *Server) dashboardPage(c *gin.Context) {
	snap := s.session.Snapshot()
	c.HTML(http.StatusOK, "dashboard", gin.H{
		"Title":     "Dashboard",
		"ScannerID": s.cfg.ScannerID,
		"State":     snap,
		"QRCodeURL": urlFor(c, "/qr.png"),
	})
}

func (s *Server) eventsPage(c *gin.Context) {
	events, err := s.backend.ActiveEvents(c.Request.Context())
	if err != nil {
		s.logger.Warn("failed to fetch events for page", "error", err)
		// Page still renders; the error is shown in place of the list.
	}
	snap := s.session.Snapshot()
	c.HTML(http.StatusOK, "events", gin.H{
		"Title":     "Events",
		"ScannerID": s.cfg.ScannerID,
		"State":     snap,
		"Events":    events,
		"FetchErr":  err != nil,
	})
}

func (s *Server) configPage(c *gin.Context) {
	c.HTML(http.StatusOK, "config", gin.H{
		"Title":     "Configuration",
		"ScannerID": s.cfg.ScannerID,
		"Config":    s.editableConfig(),
	})
}

// dashboardQR serves a QR code pointing at the dashboard, for pairing a
// phone with a headless unit.
func (s *Server) dashboardQR(c *gin.Context) {
	qr, err := qrcode.Encode(urlFor(c, "/"), qrcode.Medium, qrImageSize)
	if err != nil {
		s.logger.Warn("failed to generate QR code", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", qr)
}

func (s *Server) apiDashboard(c *gin.Context) {
	snap := s.session.Snapshot()

	pending := -1
	if n, err := s.store.Count(); err == nil {
		pending = n
	} else {
		s.logger.Warn("failed to count pending records", "error", err)
	}

	archived := 0
	if s.history != nil {
		if n, err := s.history.RecordCount(c.Request.Context(), ""); err == nil {
			archived = n
		} else {
			s.logger.Warn("failed to count archived records", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"scannerId":         s.cfg.ScannerID,
		"selectedEventId":   snap.SelectedEventID,
		"selectedEventName": snap.SelectedEventName,
		"isScanning":        snap.IsScanning,
		"isEventActive":     snap.IsEventActive,
		"totalScans":        snap.TotalScans,
		"devicesFound":      snap.DevicesFound,
		"recordsLogged":     snap.RecordsLogged,
		"recordsSynced":     snap.RecordsSynced,
		"lastSyncTime":      snap.LastSyncTimeMs,
		"errorMessage":      snap.LastError,
		"pendingRecords":    pending,
		"archivedRecords":   archived,
	})
}

func (s *Server) apiEvents(c *gin.Context) {
	events, err := s.backend.ActiveEvents(c.Request.Context())
	if err != nil {
		s.logger.Warn("failed to fetch active events", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch events from backend"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type eventSelectRequest struct {
	EventID   string `json:"eventId" binding:"required"`
	EventName string `json:"eventName"`
}

func (s *Server) apiEventSelect(c *gin.Context) {
	var req eventSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventId is required"})
		return
	}

	// The name is looked up when the caller only sent the ID.
	if req.EventName == "" {
		events, err := s.backend.ActiveEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve event name"})
			return
		}
		for _, ev := range events {
			if ev.ID == req.EventID {
				req.EventName = ev.Name
				break
			}
		}
		if req.EventName == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown event"})
			return
		}
	}

	if err := s.session.SelectEvent(req.EventID, req.EventName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("event selected", "event_id", req.EventID, "event_name", req.EventName)
	c.JSON(http.StatusOK, s.stateResponse())
}

func (s *Server) apiEventStart(c *gin.Context) {
	if err := s.session.StartScanning(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := s.session.Snapshot()

	// Backend activation is best effort: local collection must not depend on
	// the backend being reachable at the moment the operator presses start.
	if _, err := s.backend.EventControl(c.Request.Context(), snap.SelectedEventID, "start"); err != nil {
		s.logger.Warn("backend event activation failed", "event_id", snap.SelectedEventID, "error", err)
	} else {
		s.session.SetEventActive(true)
	}

	s.logger.Info("scanning started", "event_id", snap.SelectedEventID)
	c.JSON(http.StatusOK, s.stateResponse())
}

func (s *Server) apiEventStop(c *gin.Context) {
	snap := s.session.Snapshot()
	if err := s.session.StopScanning(); err != nil {
		if errors.Is(err, session.ErrNotScanning) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.backend.EventControl(c.Request.Context(), snap.SelectedEventID, "stop"); err != nil {
		s.logger.Warn("backend event deactivation failed", "event_id", snap.SelectedEventID, "error", err)
	}

	s.logger.Info("scanning stopped", "event_id", snap.SelectedEventID)
	c.JSON(http.StatusOK, s.stateResponse())
}

// editableConfig is the subset of configuration exposed on the config page.
// Credentials are write-only: the API key is never echoed back.
func (s *Server) editableConfig() gin.H {
	return gin.H{
		"scannerId":           s.cfg.ScannerID,
		"uuidPrefix":          s.cfg.UUIDPrefix,
		"scanIntervalSeconds": s.cfg.ScanIntervalSeconds,
		"syncIntervalSeconds": s.cfg.SyncIntervalSeconds,
		"backendBaseUrl":      s.cfg.BackendBaseURL,
		"apiKeySet":           s.cfg.APIKey != "",
	}
}

func (s *Server) apiConfigGet(c *gin.Context) {
	c.JSON(http.StatusOK, s.editableConfig())
}

type configUpdateRequest struct {
	ScannerID           *string `json:"scannerId"`
	UUIDPrefix          *string `json:"uuidPrefix"`
	ScanIntervalSeconds *int    `json:"scanIntervalSeconds"`
	SyncIntervalSeconds *int    `json:"syncIntervalSeconds"`
	BackendBaseURL      *string `json:"backendBaseUrl"`
	APIKey              *string `json:"apiKey"`
}

func (s *Server) apiConfigSet(c *gin.Context) {
	var req configUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload"})
		return
	}

	updates := map[string]any{}
	if req.ScannerID != nil {
		updates["scanner_id"] = *req.ScannerID
	}
	if req.UUIDPrefix != nil {
		updates["uuid_prefix"] = *req.UUIDPrefix
	}
	if req.ScanIntervalSeconds != nil {
		if *req.ScanIntervalSeconds < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scanIntervalSeconds must be at least 1"})
			return
		}
		updates["scan_interval_seconds"] = *req.ScanIntervalSeconds
	}
	if req.SyncIntervalSeconds != nil {
		if *req.SyncIntervalSeconds < int(config.MinSyncInterval.Seconds()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "syncIntervalSeconds below minimum"})
			return
		}
		updates["sync_interval_seconds"] = *req.SyncIntervalSeconds
	}
	if req.BackendBaseURL != nil {
		updates["backend_base_url"] = *req.BackendBaseURL
	}
	if req.APIKey != nil && *req.APIKey != "" {
		updates["api_key"] = *req.APIKey
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no recognized settings in payload"})
		return
	}

	if s.configPath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no config file configured, settings cannot be persisted"})
		return
	}
	if err := config.SaveUpdates(s.configPath, updates); err != nil {
		s.logger.Error("failed to persist config", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist settings"})
		return
	}

	s.logger.Info("configuration saved", "keys", len(updates))
	c.JSON(http.StatusOK, gin.H{"saved": true, "restartRequired": true})
}

func (s *Server) apiHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, gin.H{"batches": []any{}})
		return
	}
	batches, err := s.history.RecentBatches(c.Request.Context(), 50)
	if err != nil {
		s.logger.Warn("failed to read sync history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read sync history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// apiDetect accepts one sighting pushed by an external radio unit and queues
// it for the next discovery pass.
func (s *Server) apiDetect(c *gin.Context) {
	var req models.DetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection payload"})
		return
	}
	if req.MacAddress == "" && req.DeviceName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "macAddress or deviceName is required"})
		return
	}

	s.source.Publish(models.Discovery{
		Name:    req.DeviceName,
		Address: req.MacAddress,
		RSSI:    req.RSSI,
	})
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (s *Server) stateResponse() gin.H {
	snap := s.session.Snapshot()
	return gin.H{
		"selectedEventId":   snap.SelectedEventID,
		"selectedEventName": snap.SelectedEventName,
		"isScanning":        snap.IsScanning,
		"isEventActive":     snap.IsEventActive,
	}
}
