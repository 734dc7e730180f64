package auth

import (
	"context"
	"net"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// ClientCertRequest carries the request metadata a reverse proxy attaches
// after terminating TLS and verifying the peer certificate itself.
// mcp-guard never terminates TLS; it trusts this metadata only when it
// originates from a configured proxy address.
type ClientCertRequest struct {
	PeerAddr       string
	VerifiedHeader string
	SubjectHeader  string
}

// ClientCertConfig configures a ClientCertProvider.
type ClientCertConfig struct {
	TrustedProxyIPs []string
	CertHeader      string
	VerifiedHeader  string
}

// ClientCertProvider authenticates requests whose peer address is a
// configured reverse-proxy IP and whose headers confirm the proxy
// performed TLS client-certificate verification. It does not implement
// Provider's Authenticate(token) shape since it derives identity from
// request metadata, not a bearer token; AuthenticateRequest is its entry
// point instead.
type ClientCertProvider struct {
	trusted map[string]struct{}
	cfg     ClientCertConfig
}

func NewClientCertProvider(cfg ClientCertConfig) *ClientCertProvider {
	trusted := make(map[string]struct{}, len(cfg.TrustedProxyIPs))
	for _, ip := range cfg.TrustedProxyIPs {
		trusted[ip] = struct{}{}
	}
	return &ClientCertProvider{trusted: trusted, cfg: cfg}
}

func (p *ClientCertProvider) Name() string { return "client_cert" }

// AuthenticateRequest authenticates req per the trusted-proxy-IP and
// verified-header contract. The verified header's value must be exactly
// "SUCCESS" (case-sensitive) — anything else, including absence, is
// treated as unverified.
func (p *ClientCertProvider) AuthenticateRequest(_ context.Context, req ClientCertRequest) (identity.Identity, *apperr.AuthError) {
	host, _, err := net.SplitHostPort(req.PeerAddr)
	if err != nil {
		host = req.PeerAddr
	}
	if _, ok := p.trusted[host]; !ok {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidClientCert, "request did not originate from a trusted proxy")
	}
	if req.VerifiedHeader != "SUCCESS" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidClientCert, "proxy did not verify peer certificate")
	}
	if req.SubjectHeader == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidClientCert, "missing certificate subject")
	}

	return identity.Identity{
		ID:       req.SubjectHeader,
		Provider: p.Name(),
		Claims:   map[string]any{"cert_subject": req.SubjectHeader},
	}, nil
}
