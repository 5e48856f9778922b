// Package models defines the data types shared between the scanner
// components and the backend wire format.
package models

// AttendanceRecord is one attributed sighting of a registered device.
// Records are immutable once appended to the record store.
type AttendanceRecord struct {
	DeviceID       string `json:"deviceId"`
	TimestampMs    int64  `json:"timestampMs"`
	EventID        string `json:"eventId"`
	ScannerSource  string `json:"scannerSource"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
	DeviceName     string `json:"deviceName,omitempty"`
}

// Valid reports whether the record carries the mandatory fields.
func (r *AttendanceRecord) Valid() bool {
	return r.DeviceID != "" && r.EventID != "" && r.TimestampMs > 0
}

// Event as returned by the backend's active-events endpoint.
// Start and end times are milliseconds since epoch, zero when unset.
type Event struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"isActive"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
}

// BatchResult is the backend's per-batch accounting for a checkin upload.
type BatchResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Discovery is one device observed during a single discovery pass.
type Discovery struct {
	Name    string
	Address string
	RSSI    int
}

// DetectionRequest is the payload external radio units push to the
// detection ingest endpoint.
type DetectionRequest struct {
	ScannerMac string `json:"scannerMac"`
	MacAddress string `json:"macAddress"`
	RSSI       int    `json:"rssi"`
	DeviceName string `json:"deviceName"`
}
