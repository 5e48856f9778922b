package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"attendance-scanner/internal/models"
)

func TestActiveEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/active-events" {
			t.Errorf("path = %s, want /active-events", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"events": []models.Event{
				{ID: "evt-1", Name: "Opening Day", IsActive: true},
				{ID: "evt-2", Name: "Workshop", IsActive: false},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "test-key")
	events, err := c.ActiveEvents(context.Background())
	if err != nil {
		t.Fatalf("ActiveEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "evt-1" || !events[0].IsActive {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestRegisteredDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("eventId"); got != "evt-1" {
			t.Errorf("eventId = %q, want evt-1", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"deviceUuids": []string{"DEV-A", "DEV-B"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	devices, err := c.RegisteredDevices(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("RegisteredDevices: %v", err)
	}
	if len(devices) != 2 || devices[0] != "DEV-A" {
		t.Fatalf("unexpected devices: %v", devices)
	}
}

func TestBatchCheckin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req struct {
			Records []models.AttendanceRecord `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Records) != 2 {
			t.Errorf("got %d records, want 2", len(req.Records))
		}
		json.NewEncoder(w).Encode(models.BatchResult{
			Processed: 2, Successful: 2,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	records := []models.AttendanceRecord{
		{DeviceID: "DEV-A", TimestampMs: 1, EventID: "evt-1", ScannerSource: "s1"},
		{DeviceID: "DEV-B", TimestampMs: 2, EventID: "evt-1", ScannerSource: "s1"},
	}
	result, err := c.BatchCheckin(context.Background(), records)
	if err != nil {
		t.Fatalf("BatchCheckin: %v", err)
	}
	if result.Successful != 2 {
		t.Fatalf("Successful = %d, want 2", result.Successful)
	}
}

func TestEventControl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EventID string `json:"eventId"`
			Action  string `json:"action"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.EventID != "evt-1" || req.Action != "start" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"event": models.Event{ID: "evt-1", Name: "Opening Day", IsActive: true},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	event, err := c.EventControl(context.Background(), "evt-1", "start")
	if err != nil {
		t.Fatalf("EventControl: %v", err)
	}
	if !event.IsActive {
		t.Fatalf("event should be active after start: %+v", event)
	}
}

func TestNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, err := c.ActiveEvents(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want 403", statusErr.StatusCode)
	}
}

func TestNetworkErrorIsError(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "test-key")
	if _, err := c.ActiveEvents(context.Background()); err == nil {
		t.Fatal("expected error against closed server")
	}
}
