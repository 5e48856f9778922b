// Package backend is the HTTP client for the attendance backend service.
//
// The backend owns event definitions, device registration and server-side
// deduplication; this client only calls it and interprets responses. Every
// request carries the API key header and a bounded timeout, and any non-2xx
// response is a failure regardless of body content.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"attendance-scanner/internal/models"
)

const (
	getTimeout  = 10 * time.Second
	postTimeout = 30 * time.Second

	apiKeyHeader = "x-api-key"
)

// StatusError reports a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
		logger:  slog.With("component", "backend"),
	}
}

// ActiveEvents fetches the events currently available for check-in.
func (c *Client) ActiveEvents(ctx context.Context) ([]models.Event, error) {
	var resp struct {
		Events []models.Event `json:"events"`
	}
	if err := c.get(ctx, "/active-events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// RegisteredDevices fetches the device identifiers registered for an event.
func (c *Client) RegisteredDevices(ctx context.Context, eventID string) ([]string, error) {
	var resp struct {
		DeviceUuids []string `json:"deviceUuids"`
	}
	q := url.Values{"eventId": {eventID}}
	if err := c.get(ctx, "/registered-devices", q, &resp); err != nil {
		return nil, err
	}
	return resp.DeviceUuids, nil
}

// BatchCheckin uploads pending attendance records in one request.
func (c *Client) BatchCheckin(ctx context.Context, records []models.AttendanceRecord) (*models.BatchResult, error) {
	req := struct {
		Records []models.AttendanceRecord `json:"records"`
	}{Records: records}

	var result models.BatchResult
	if err := c.post(ctx, "/batch-checkin", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EventControl activates or deactivates an event. Action is "start" or "stop".
func (c *Client) EventControl(ctx context.Context, eventID, action string) (*models.Event, error) {
	req := struct {
		EventID string `json:"eventId"`
		Action  string `json:"action"`
	}{EventID: eventID, Action: action}

	var resp struct {
		Event models.Event `json:"event"`
	}
	if err := c.post(ctx, "/event-control", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Event, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, getTimeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend request failed",
			"path", req.URL.Path, "status", resp.StatusCode)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
