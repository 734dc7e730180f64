package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// StdoutSink writes one JSON object per line to the given writer
// (normally os.Stdout). It never rotates or batches.
type StdoutSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStdoutSink(w io.Writer) *StdoutSink { return &StdoutSink{w: w} }

func (s *StdoutSink) Ingest(_ context.Context, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(data)
}

func (s *StdoutSink) Flush(context.Context) {}

func (s *StdoutSink) Close() error { return nil }

var _ Sink = (*StdoutSink)(nil)
