package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSinkConfig configures the append-only file sink.
type FileSinkConfig struct {
	// Dir is the directory audit files are written under.
	Dir string
	// MaxFileSizeMB is the size at which the current file rotates to a
	// numbered suffix (default 100).
	MaxFileSizeMB int
	// CacheSize bounds the in-memory ring buffer of recent events kept for
	// operational introspection (default 1000).
	CacheSize int
}

// FileSink writes one JSON object per line to an append-only file, rotated
// daily (UTC) and by size, with a bounded in-memory ring buffer of recent
// events for operational introspection.
type FileSink struct {
	dir         string
	maxSize     int64
	cache       *ringBuffer
	logger      *slog.Logger
	mu          sync.Mutex
	currentFile *os.File
	currentDate string
	currentSize int64
	suffix      int
}

// NewFileSink creates the directory if needed and opens today's file.
func NewFileSink(cfg FileSinkConfig, logger *slog.Logger) (*FileSink, error) {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	s := &FileSink{
		dir:     cfg.Dir,
		maxSize: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		cache:   newRingBuffer(cfg.CacheSize),
		logger:  logger,
	}
	if err := s.openLocked(time.Now().UTC().Format("2006-01-02")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) filename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("audit-%s.log", date)
	}
	return fmt.Sprintf("audit-%s-%d.log", date, suffix)
}

func (s *FileSink) openLocked(date string) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
	}
	path := filepath.Join(s.dir, s.filename(date, 0))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: stat %s: %w", path, err)
	}
	s.currentFile = f
	s.currentDate = date
	s.currentSize = info.Size()
	s.suffix = 0
	return nil
}

func (s *FileSink) rotateSizeLocked() error {
	_ = s.currentFile.Sync()
	_ = s.currentFile.Close()
	s.suffix++
	path := filepath.Join(s.dir, s.filename(s.currentDate, s.suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	s.currentFile = f
	s.currentSize = 0
	return nil
}

// Ingest appends evt as one JSON line, rotating the file by date or size
// as needed. A write failure is logged but never returned —
// Sink.Ingest has no error channel back to the drain task.
func (s *FileSink) Ingest(_ context.Context, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := evt.Timestamp.UTC().Format("2006-01-02")
	if date != s.currentDate {
		if err := s.openLocked(date); err != nil {
			s.logger.Error("audit file sink: date rotation failed", "error", err)
			return
		}
	}
	if s.currentSize >= s.maxSize {
		if err := s.rotateSizeLocked(); err != nil {
			s.logger.Error("audit file sink: size rotation failed", "error", err)
			return
		}
	}

	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("audit file sink: marshal failed", "error", err)
		return
	}
	line := append(data, '\n')
	n, err := s.currentFile.Write(line)
	if err != nil {
		s.logger.Error("audit file sink: write failed", "error", err)
		return
	}
	s.currentSize += int64(n)
	s.cache.add(evt)
}

// Flush syncs the current file to disk.
func (s *FileSink) Flush(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
	}
}

// Close syncs and closes the current file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentFile == nil {
		return nil
	}
	_ = s.currentFile.Sync()
	err := s.currentFile.Close()
	s.currentFile = nil
	return err
}

// Recent returns the last n ingested events, newest first.
func (s *FileSink) Recent(n int) []Event { return s.cache.recent(n) }

var _ Sink = (*FileSink)(nil)

// ringBuffer is a fixed-capacity, newest-overwrites-oldest buffer of
// recent events, grounded on the same ring-cache shape the teacher uses
// for its audit admin introspection.
type ringBuffer struct {
	mu      sync.RWMutex
	entries []Event
	size    int
	head    int
	count   int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{entries: make([]Event, size), size: size}
}

func (r *ringBuffer) add(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = evt
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *ringBuffer) recent(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		out[i] = r.entries[idx]
	}
	return out
}
