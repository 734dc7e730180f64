package audit

import "context"

// Sink is one destination an Event is fanned out to. Ingest must not
// block the drain task for long — a sink that needs to batch (the HTTP
// sink) buffers internally and flushes on its own schedule.
type Sink interface {
	Ingest(ctx context.Context, evt Event)
	// Flush forces any buffered events out, used at shutdown. Returns once
	// the flush attempt (including retries, if any) has settled.
	Flush(ctx context.Context)
	// Close releases the sink's resources (file handles, HTTP client).
	Close() error
}
