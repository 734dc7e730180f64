// Package router implements path-prefix dispatch to one of several
// upstream Transports ("router mode" — a single gateway fanning out to
// multiple upstreams selected by request path).
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/mcpguard/mcp-guard/internal/transport"
)

// Route pairs a path prefix with the Transport that serves it. Immutable
// after the Router is constructed.
type Route struct {
	Prefix    string
	Transport transport.Transport
}

// Router holds an immutable, longest-prefix-first ordered set of Routes.
type Router struct {
	mu     sync.RWMutex
	routes []Route
}

// New builds a Router from routes, sorted by decreasing prefix length so
// the longest matching prefix always wins regardless of input order.
func New(routes []Route) *Router {
	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Router{routes: sorted}
}

// GetTransport returns the Transport of the first Route whose prefix is a
// prefix of path, or false if none matches. Because routes are sorted by
// decreasing prefix length, the longest match is always returned — for
// prefixes {"/a", "/a/b"}, path "/a/b/c" resolves to "/a/b".
func (r *Router) GetTransport(path string) (transport.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return route.Transport, true
		}
	}
	return nil, false
}

// RouteStatus is one entry in the enumeration the /routes endpoint
// reports: the configured prefix and the health of its Transport at the
// moment of the call.
type RouteStatus struct {
	Prefix    string
	IsHealthy bool
}

// Routes enumerates every configured prefix and its current transport
// health, in the same longest-prefix-first order GetTransport searches.
func (r *Router) Routes() []RouteStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteStatus, 0, len(r.routes))
	for _, route := range r.routes {
		healthy := route.Transport != nil && route.Transport.IsHealthy()
		out = append(out, RouteStatus{Prefix: route.Prefix, IsHealthy: healthy})
	}
	return out
}

// Close closes every distinct Transport the Router holds. A Transport
// shared by more than one Route (unusual but not forbidden) is closed
// once.
func (r *Router) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[transport.Transport]struct{}, len(r.routes))
	var firstErr error
	for _, route := range r.routes {
		if route.Transport == nil {
			continue
		}
		if _, ok := seen[route.Transport]; ok {
			continue
		}
		seen[route.Transport] = struct{}{}
		if err := route.Transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
