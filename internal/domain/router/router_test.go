package router

import (
	"context"
	"testing"

	"github.com/mcpguard/mcp-guard/internal/transport"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

type fakeTransport struct {
	name    string
	healthy bool
	closed  bool
}

func (f *fakeTransport) Send(context.Context, *mcp.Message) error          { return nil }
func (f *fakeTransport) Receive(context.Context) (*mcp.Message, error)     { return nil, nil }
func (f *fakeTransport) Close() error                                     { f.closed = true; return nil }
func (f *fakeTransport) IsHealthy() bool                                  { return f.healthy }

var _ transport.Transport = (*fakeTransport)(nil)

func TestGetTransportLongestPrefixWins(t *testing.T) {
	a := &fakeTransport{name: "a", healthy: true}
	ab := &fakeTransport{name: "a/b", healthy: true}

	r := New([]Route{
		{Prefix: "/a", Transport: a},
		{Prefix: "/a/b", Transport: ab},
	})

	got, ok := r.GetTransport("/a/b/c")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != transport.Transport(ab) {
		t.Fatalf("expected the /a/b route to win for /a/b/c, got %v", got)
	}
}

func TestGetTransportFallsBackToShorterPrefix(t *testing.T) {
	a := &fakeTransport{name: "a", healthy: true}
	ab := &fakeTransport{name: "a/b", healthy: true}

	r := New([]Route{
		{Prefix: "/a", Transport: a},
		{Prefix: "/a/b", Transport: ab},
	})

	got, ok := r.GetTransport("/a/z")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != transport.Transport(a) {
		t.Fatalf("expected the /a route to match /a/z, got %v", got)
	}
}

func TestGetTransportNoMatch(t *testing.T) {
	r := New([]Route{{Prefix: "/a", Transport: &fakeTransport{healthy: true}}})
	if _, ok := r.GetTransport("/b"); ok {
		t.Fatal("expected no match for an unrelated path")
	}
}

func TestGetTransportOrderIndependentConstruction(t *testing.T) {
	a := &fakeTransport{name: "a", healthy: true}
	ab := &fakeTransport{name: "a/b", healthy: true}
	abc := &fakeTransport{name: "a/b/c", healthy: true}

	// Deliberately constructed out of length order.
	r := New([]Route{
		{Prefix: "/a", Transport: a},
		{Prefix: "/a/b/c", Transport: abc},
		{Prefix: "/a/b", Transport: ab},
	})

	got, _ := r.GetTransport("/a/b/c/d")
	if got != transport.Transport(abc) {
		t.Fatalf("expected longest prefix /a/b/c to win, got %v", got)
	}
}

func TestRoutesEnumeratesLongestPrefixFirstWithHealth(t *testing.T) {
	a := &fakeTransport{healthy: true}
	ab := &fakeTransport{healthy: false}

	r := New([]Route{
		{Prefix: "/a", Transport: a},
		{Prefix: "/a/b", Transport: ab},
	})

	statuses := r.Routes()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(statuses))
	}
	if statuses[0].Prefix != "/a/b" || statuses[0].IsHealthy {
		t.Fatalf("expected first entry to be the unhealthy /a/b route, got %+v", statuses[0])
	}
	if statuses[1].Prefix != "/a" || !statuses[1].IsHealthy {
		t.Fatalf("expected second entry to be the healthy /a route, got %+v", statuses[1])
	}
}

func TestCloseClosesEveryDistinctTransportOnce(t *testing.T) {
	shared := &fakeTransport{healthy: true}
	solo := &fakeTransport{healthy: true}

	r := New([]Route{
		{Prefix: "/a", Transport: shared},
		{Prefix: "/b", Transport: shared},
		{Prefix: "/c", Transport: solo},
	})

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !shared.closed || !solo.closed {
		t.Fatal("expected both distinct transports to be closed")
	}
}
