package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChannelCapacity bounds the pipeline's event queue. Once full,
// Enqueue drops the event rather than blocking the producer.
const DefaultChannelCapacity = 4096

// defaultDropLogInterval bounds how often a dropped-event warning is
// logged, so a sustained backlog doesn't itself become a logging storm.
const defaultDropLogInterval = 10 * time.Second

// Pipeline accepts Events from producers on a bounded, non-blocking
// channel and fans each one out to every configured Sink from a single
// background drain task.
type Pipeline struct {
	events chan Event
	sinks  []Sink
	logger *slog.Logger

	dropped       atomic.Uint64
	lastDropLogAt atomic.Int64 // unix nanos, 0 if never logged

	done chan struct{}
	wg   sync.WaitGroup
}

// NewPipeline starts the drain task immediately; Close stops it and
// flushes every sink.
func NewPipeline(capacity int, sinks []Sink, logger *slog.Logger) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		events: make(chan Event, capacity),
		sinks:  sinks,
		logger: logger,
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.drain()
	return p
}

// Enqueue submits evt for delivery to every sink. Non-blocking: if the
// channel is full the event is dropped and the drop counter incremented;
// a warning is logged at most once per defaultDropLogInterval.
func (p *Pipeline) Enqueue(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case p.events <- evt:
	default:
		p.dropped.Add(1)
		p.maybeLogDrop()
	}
}

func (p *Pipeline) maybeLogDrop() {
	now := time.Now().UnixNano()
	last := p.lastDropLogAt.Load()
	if now-last < int64(defaultDropLogInterval) {
		return
	}
	if p.lastDropLogAt.CompareAndSwap(last, now) {
		p.logger.Warn("audit pipeline: dropping events, channel full", "total_dropped", p.dropped.Load())
	}
}

// DroppedCount returns the number of events dropped since startup, for the
// metrics layer.
func (p *Pipeline) DroppedCount() uint64 { return p.dropped.Load() }

func (p *Pipeline) drain() {
	defer p.wg.Done()
	for {
		select {
		case evt, ok := <-p.events:
			if !ok {
				return
			}
			p.fanOut(evt)
		case <-p.done:
			p.drainRemaining()
			return
		}
	}
}

func (p *Pipeline) drainRemaining() {
	for {
		select {
		case evt := <-p.events:
			p.fanOut(evt)
		default:
			return
		}
	}
}

func (p *Pipeline) fanOut(evt Event) {
	ctx := context.Background()
	for _, sink := range p.sinks {
		sink.Ingest(ctx, evt)
	}
}

// Close stops producers from being drained further, flushes every sink
// within the given timeout, then closes them. Safe to call once.
func (p *Pipeline) Close(timeout time.Duration) error {
	close(p.done)

	flushed := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
	case <-time.After(timeout):
		p.logger.Warn("audit pipeline: shutdown flush timed out")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	for _, sink := range p.sinks {
		sink.Flush(flushCtx)
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
