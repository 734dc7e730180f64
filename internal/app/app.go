// Package app wires every component into one running gateway: the
// composite authenticator, the rate limiter, the audit pipeline, and the
// single upstream transport or router, built and torn down in the fixed
// order startup/teardown requires so background tasks never outlive the
// components that feed them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpguard/mcp-guard/internal/config"
	"github.com/mcpguard/mcp-guard/internal/domain/audit"
	"github.com/mcpguard/mcp-guard/internal/domain/auth"
	"github.com/mcpguard/mcp-guard/internal/domain/authz"
	"github.com/mcpguard/mcp-guard/internal/domain/ratelimit"
	"github.com/mcpguard/mcp-guard/internal/domain/router"
	"github.com/mcpguard/mcp-guard/internal/tracing"
	"github.com/mcpguard/mcp-guard/internal/transport"
)

// auditDrainTimeout bounds how long Close waits for the audit pipeline's
// drain task to flush pending events before giving up.
const auditDrainTimeout = 5 * time.Second

// State holds every long-lived component of a running gateway. It is
// built once at startup by New and torn down once by Close; nothing in
// it is reconstructed for the life of the process.
type State struct {
	Config *config.Config
	Logger *slog.Logger

	Auth       *auth.Composite
	ClientCert *auth.ClientCertProvider // nil unless auth.mtls is configured
	Filter     *authz.Filter
	jwksCache  *auth.JWKSCache // nil unless auth.jwt.mode is "jwks"; owns a background refresh task

	RateLimiter *ratelimit.Limiter

	Audit *audit.Pipeline

	// Exactly one of Transport (single-upstream mode) or Router (router
	// mode) is non-nil, selected by whether router.servers was configured.
	Transport transport.Transport
	Router    *router.Router

	Registry *prometheus.Registry

	tracingShutdown tracing.Shutdown

	Version   string
	startTime time.Time
	ready     atomic.Bool
}

// New builds every component in the order spec'd for startup: auth
// providers, rate limiter, audit pipeline (and its drain task), then the
// transport or router. It publishes readiness only after every
// constructor has returned successfully.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st := &State{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		startTime: time.Now().UTC(),
		Registry:  prometheus.NewRegistry(),
	}

	composite, clientCert, jwksCache, err := buildAuthenticators(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: build auth providers: %w", err)
	}
	st.Auth = composite
	st.ClientCert = clientCert
	st.jwksCache = jwksCache
	st.Filter = authz.NewFilter(logger)

	st.RateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		Enabled:          cfg.RateLimit.Enabled,
		DefaultRPS:       cfg.RateLimit.RequestsPerSecond,
		DefaultBurst:     effectiveBurst(cfg.RateLimit),
		EntryTTL:         time.Duration(cfg.RateLimit.EntryTTLSecs) * time.Second,
		CleanupThreshold: cfg.RateLimit.CleanupThreshold,
	})

	sinks, err := buildAuditSinks(cfg.Audit, logger)
	if err != nil {
		return nil, fmt.Errorf("app: build audit sinks: %w", err)
	}
	st.Audit = audit.NewPipeline(audit.DefaultChannelCapacity, sinks, logger)

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "mcp-guard",
	})
	if err != nil {
		return nil, fmt.Errorf("app: setup tracing: %w", err)
	}
	st.tracingShutdown = shutdown

	if len(cfg.Router.Servers) > 0 {
		r, err := buildRouter(ctx, cfg.Router, logger)
		if err != nil {
			return nil, fmt.Errorf("app: build router: %w", err)
		}
		st.Router = r
	} else {
		t, err := buildTransport(ctx, cfg.Upstream, logger)
		if err != nil {
			return nil, fmt.Errorf("app: build upstream transport: %w", err)
		}
		st.Transport = t
	}

	st.ready.Store(true)
	return st, nil
}

// effectiveBurst derives the limiter's default burst from config: the
// explicit burst_size if set, otherwise the §4.3 fallback of
// max(1, round(requests_per_second)).
func effectiveBurst(cfg config.RateLimitConfig) int {
	if cfg.BurstSize > 0 {
		return cfg.BurstSize
	}
	burst := int(cfg.RequestsPerSecond + 0.5)
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Ready reports whether startup has completed and teardown has not yet
// begun.
func (s *State) Ready() bool { return s.ready.Load() }

// Uptime reports how long this State has been alive.
func (s *State) Uptime() time.Duration { return time.Since(s.startTime) }

// RouterMode reports whether this gateway is fanning out to multiple
// upstreams by path prefix, as opposed to a single configured upstream.
func (s *State) RouterMode() bool { return s.Router != nil }

// GetTransport resolves the Transport that should serve path: the single
// configured Transport outside router mode, or the longest-prefix match
// in router mode.
func (s *State) GetTransport(path string) (transport.Transport, bool) {
	if s.Router != nil {
		return s.Router.GetTransport(path)
	}
	if s.Transport != nil {
		return s.Transport, true
	}
	return nil, false
}

// Close tears down every component in the exact reverse of New's build
// order — transport/router, then tracing, then the audit pipeline's drain
// task, then the auth layer's background jwks refresher — so nothing is
// closed while a component built after it (and so, potentially, still
// depending on it) is still running. Readiness clears first so no new
// request is routed in while teardown proceeds. Each step's error is
// collected; Close always attempts every step regardless of an earlier
// failure.
func (s *State) Close(ctx context.Context) error {
	s.ready.Store(false)

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.Router != nil {
		record(s.Router.Close())
	}
	if s.Transport != nil {
		record(s.Transport.Close())
	}

	if s.tracingShutdown != nil {
		record(s.tracingShutdown(ctx))
	}

	record(s.Audit.Close(auditDrainTimeout))

	if s.jwksCache != nil {
		s.jwksCache.Close()
	}

	return firstErr
}
