package scanner

import (
	"context"
	"sync"
	"time"

	"attendance-scanner/internal/models"
)

// Source yields the devices visible during one discovery pass. Radio access
// itself lives outside this process; implementations adapt whatever feeds
// sightings in.
type Source interface {
	Discover(ctx context.Context, timeout time.Duration) ([]models.Discovery, error)
}

// Upper bound on buffered sightings between two discovery passes. Oldest
// entries are dropped beyond this.
const pushBufferLimit = 4096

// PushSource collects sightings pushed by external radio units (the web
// detection ingest) and serves them as discovery passes: Discover waits out
// the pass window, then returns everything that arrived, coalesced per
// device with the strongest signal kept.
type PushSource struct {
	mu      sync.Mutex
	pending []models.Discovery
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

// Publish queues one sighting for the next discovery pass.
func (s *PushSource) Publish(d models.Discovery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= pushBufferLimit {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, d)
}

func (s *PushSource) Discover(ctx context.Context, timeout time.Duration) ([]models.Discovery, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	return coalesce(pending), nil
}

// coalesce folds repeated sightings of one device within a pass into a
// single entry, keeping first-seen order and the strongest signal.
func coalesce(sightings []models.Discovery) []models.Discovery {
	if len(sightings) <= 1 {
		return sightings
	}

	index := make(map[string]int, len(sightings))
	out := make([]models.Discovery, 0, len(sightings))
	for _, d := range sightings {
		key := d.Address
		if key == "" {
			key = d.Name
		}
		if i, ok := index[key]; ok {
			if d.RSSI > out[i].RSSI {
				out[i].RSSI = d.RSSI
			}
			if out[i].Name == "" {
				out[i].Name = d.Name
			}
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	return out
}
