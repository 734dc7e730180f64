package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mcpguard/mcp-guard/internal/config"
	"github.com/mcpguard/mcp-guard/internal/domain/audit"
	"github.com/mcpguard/mcp-guard/internal/domain/auth"
	"github.com/mcpguard/mcp-guard/internal/domain/router"
	"github.com/mcpguard/mcp-guard/internal/transport"
)

// buildAuthenticators constructs every configured auth provider and
// wraps them in a Composite, per §4.2's fixed priority ordering: api_key,
// then jwt, then oauth. The client-cert provider is returned separately
// since it authenticates request metadata rather than a bearer token and
// so isn't a Provider. The returned *auth.JWKSCache, if non-nil, owns a
// background refresh task the caller must Close at shutdown.
func buildAuthenticators(cfg *config.Config, logger *slog.Logger) (*auth.Composite, *auth.ClientCertProvider, *auth.JWKSCache, error) {
	var providers []auth.Provider
	var jwksCache *auth.JWKSCache

	if len(cfg.Auth.APIKeys) > 0 {
		entries := make([]auth.APIKeyEntry, len(cfg.Auth.APIKeys))
		for i, k := range cfg.Auth.APIKeys {
			entries[i] = auth.APIKeyEntry{
				ID:                k.ID,
				Name:              k.Name,
				KeyHash:           k.KeyHash,
				AllowedTools:      k.AllowedTools,
				RequestsPerSecond: k.RateLimit,
			}
		}
		providers = append(providers, auth.NewAPIKeyProvider(entries))
	}

	if cfg.Auth.JWT.Enabled() {
		jwtCfg := auth.JWTConfig{
			Issuer:           cfg.Auth.JWT.Issuer,
			Audience:         cfg.Auth.JWT.Audience,
			ScopeToolMapping: auth.ScopeToolMapping(cfg.Auth.JWT.ScopeToolMapping),
		}
		switch cfg.Auth.JWT.Mode {
		case "jwks":
			ttl := time.Duration(cfg.Auth.JWT.CacheTTLSecs) * time.Second
			jwksCache = auth.NewJWKSCache(cfg.Auth.JWT.JWKSURL, ttl, ttl, nil)
			jwtCfg.Mode = auth.JWTModeJWKS
			jwtCfg.JWKS = jwksCache
		default:
			jwtCfg.Mode = auth.JWTModeSimple
			jwtCfg.Secret = cfg.Auth.JWT.Secret
		}
		providers = append(providers, auth.NewJWTProvider(jwtCfg))
	}

	if cfg.Auth.OAuth.Enabled() {
		providers = append(providers, auth.NewOAuthProvider(auth.OAuthConfig{
			IntrospectionURL: cfg.Auth.OAuth.IntrospectionURL,
			UserinfoURL:      cfg.Auth.OAuth.UserinfoURL,
			CacheTTL:         time.Duration(cfg.Auth.OAuth.CacheTTLSecs) * time.Second,
			ScopeToolMapping: auth.ScopeToolMapping(cfg.Auth.OAuth.ScopeToolMapping),
		}))
	}

	var clientCert *auth.ClientCertProvider
	if cfg.Auth.MTLS.Enabled() {
		clientCert = auth.NewClientCertProvider(auth.ClientCertConfig{
			TrustedProxyIPs: cfg.Auth.MTLS.TrustedProxyIPs,
			CertHeader:      cfg.Auth.MTLS.CertHeader,
			VerifiedHeader:  cfg.Auth.MTLS.VerifiedHeader,
		})
	}

	return auth.NewComposite(providers...), clientCert, jwksCache, nil
}

// buildAuditSinks constructs the configured subset of up to three sinks
// per §4.7: a line-oriented file, stdout, and a batched remote HTTP sink.
func buildAuditSinks(cfg config.AuditConfig, logger *slog.Logger) ([]audit.Sink, error) {
	var sinks []audit.Sink
	if !cfg.Enabled {
		return sinks, nil
	}

	if cfg.FilePath != "" {
		sink, err := audit.NewFileSink(audit.FileSinkConfig{Dir: cfg.FilePath}, logger)
		if err != nil {
			return nil, fmt.Errorf("build file sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Stdout {
		sinks = append(sinks, audit.NewStdoutSink(os.Stdout))
	}

	if cfg.ExportURL != "" {
		sinks = append(sinks, audit.NewHTTPSink(audit.HTTPSinkConfig{
			URL:           cfg.ExportURL,
			BatchSize:     cfg.BatchSize,
			FlushInterval: time.Duration(cfg.FlushIntervalSecs) * time.Second,
		}, logger))
	}

	return sinks, nil
}

// buildTransport constructs the single configured upstream Transport for
// non-router mode.
func buildTransport(ctx context.Context, u config.UpstreamConfig, logger *slog.Logger) (transport.Transport, error) {
	switch u.Transport {
	case "stdio":
		return transport.StartStdioTransport(ctx, u.Command, u.Args, logger)
	case "http":
		return transport.NewHTTPTransport(u.URL, transport.DefaultHTTPTimeout)
	case "sse":
		messageURL := u.MessageURL
		if messageURL == "" {
			messageURL = u.URL
		}
		return transport.NewSSETransport(ctx, u.URL, messageURL, transport.DefaultSSEReconnectDelay)
	default:
		return nil, fmt.Errorf("unknown upstream transport %q", u.Transport)
	}
}

// buildRouter constructs a Transport for every configured router.servers
// entry and wraps them in a Router sorted by longest-prefix-first. If any
// upstream fails to build, the ones already built are closed before
// returning the error, so a partial router never leaks a subprocess or
// connection.
func buildRouter(ctx context.Context, cfg config.RouterConfig, logger *slog.Logger) (*router.Router, error) {
	routes := make([]router.Route, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		t, err := buildTransport(ctx, s.Upstream, logger)
		if err != nil {
			for _, built := range routes {
				_ = built.Transport.Close()
			}
			return nil, fmt.Errorf("build upstream for prefix %q: %w", s.Prefix, err)
		}
		routes = append(routes, router.Route{Prefix: s.Prefix, Transport: t})
	}
	return router.New(routes), nil
}
