// Package store implements the durable log of attendance records awaiting
// delivery.
//
// The log is a single append-only file, one JSON object per line. The scan
// loop appends, the sync loop reads and trims; a mutex serializes the two so
// a record appended mid-truncation is never lost.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"attendance-scanner/internal/models"
)

var ErrInvalidRecord = errors.New("record is missing deviceId, eventId or timestamp")

// IOError reports an unwritable or unreadable log medium (disk full,
// permission denied). Callers treat it as transient and retry next cycle.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("record store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// RecordStore is the append-only JSONL record log.
type RecordStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func New(path string) *RecordStore {
	return &RecordStore{
		path:   path,
		logger: slog.With("component", "store"),
	}
}

func (s *RecordStore) Path() string { return s.path }

// Append writes one record to the end of the log.
func (s *RecordStore) Append(rec models.AttendanceRecord) error {
	if !rec.Valid() {
		return ErrInvalidRecord
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &IOError{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// ReadAll returns every stored record, oldest first. A missing log file is
// an empty store, not an error. Malformed lines are skipped so one corrupt
// entry cannot poison the rest of the queue.
func (s *RecordStore) ReadAll() ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Count returns the number of pending records.
func (s *RecordStore) Count() (int, error) {
	records, err := s.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// TruncateToTail retains only the last n records by append order. Truncating
// a store with n or fewer records is a no-op.
func (s *RecordStore) TruncateToTail(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return err
	}
	if len(records) <= n {
		return nil
	}

	tail := records[len(records)-n:]

	// Write the tail beside the log and rename over it, so a crash
	// mid-truncation leaves either the old file or the new one.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range tail {
		line, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return &IOError{Op: "write", Path: tmpName, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}

	s.logger.Debug("truncated record log", "kept", len(tail), "dropped", len(records)-len(tail))
	return nil
}

func (s *RecordStore) readLocked() ([]models.AttendanceRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	var records []models.AttendanceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.AttendanceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Debug("skipping malformed record line", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	return records, nil
}
