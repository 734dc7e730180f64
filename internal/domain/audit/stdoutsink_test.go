package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestStdoutSinkWritesOneJSONLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	s.Ingest(context.Background(), Event{Type: EventToolCall, IdentityID: "u1"})
	s.Ingest(context.Background(), Event{Type: EventAuthFailure, IdentityID: "u2"})

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var evt Event
	if err := json.Unmarshal(lines[0], &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.IdentityID != "u1" {
		t.Fatalf("expected first line to be u1, got %q", evt.IdentityID)
	}
}
