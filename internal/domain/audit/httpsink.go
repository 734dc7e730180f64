package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPSinkConfig configures the batched remote SIEM export sink.
type HTTPSinkConfig struct {
	URL           string
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   uint
	HTTPClient    *http.Client
}

// HTTPSink buffers events and ships them to a remote HTTP endpoint in
// batches, flushing whichever comes first: BatchSize events accumulated,
// or FlushInterval elapsed. A failed batch is retried with exponential
// backoff up to MaxAttempts; on final failure the batch is dropped and
// counted rather than blocking the pipeline indefinitely.
type HTTPSink struct {
	cfg    HTTPSinkConfig
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	buf     []Event
	dropped uint64

	flushTimer *time.Timer
}

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultMaxAttempts   = 5
)

func NewHTTPSink(cfg HTTPSinkConfig, logger *slog.Logger) *HTTPSink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPSink{cfg: cfg, client: cfg.HTTPClient, logger: logger}
	s.flushTimer = time.AfterFunc(cfg.FlushInterval, s.flushOnTimer)
	return s
}

func (s *HTTPSink) flushOnTimer() {
	s.Flush(context.Background())
	s.flushTimer.Reset(s.cfg.FlushInterval)
}

// Ingest buffers evt, flushing immediately if the batch size threshold is
// reached.
func (s *HTTPSink) Ingest(ctx context.Context, evt Event) {
	s.mu.Lock()
	s.buf = append(s.buf, evt)
	full := len(s.buf) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush ships whatever is currently buffered. On failure after exhausting
// retries the batch is dropped and the drop counter incremented.
func (s *HTTPSink) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	if err := s.shipWithRetry(ctx, batch); err != nil {
		s.mu.Lock()
		s.dropped += uint64(len(batch))
		s.mu.Unlock()
		s.logger.Warn("audit http sink: dropping batch after exhausting retries",
			"batch_size", len(batch), "error", err)
	}
}

func (s *HTTPSink) shipWithRetry(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return struct{}{}, fmt.Errorf("siem export returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return struct{}{}, backoff.Permanent(fmt.Errorf("siem export returned status %d", resp.StatusCode))
		}
		return struct{}{}, nil
	}, backoff.WithMaxTries(s.cfg.MaxAttempts))

	return err
}

// DroppedCount reports how many events have been dropped after exhausting
// retries, for the metrics layer to expose as a counter.
func (s *HTTPSink) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *HTTPSink) Close() error {
	s.flushTimer.Stop()
	s.Flush(context.Background())
	return nil
}

var _ Sink = (*HTTPSink)(nil)
