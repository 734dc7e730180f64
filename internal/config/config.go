// Package config provides configuration types and loading for mcp-guard.
//
// The schema is deliberately narrow — named, enumerated options rather
// than free-form structures — so that `validate` and `init` can reason
// about it completely without a running gateway.
package config

// Config is the top-level configuration for mcp-guard.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	Router    RouterConfig    `yaml:"router" mapstructure:"router"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`

	// DevMode relaxes validation rules that are deliberately strict in
	// production (e.g. allowing plain-http JWKS URLs) so a local gateway
	// can be brought up against a self-signed or plaintext test fixture.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host" validate:"required"`
	Port int    `yaml:"port" mapstructure:"port" validate:"required,min=1,max=65535"`
}

// UpstreamConfig configures the single upstream MCP server (ignored when
// Router.Servers is non-empty).
type UpstreamConfig struct {
	// Transport selects stdio, http, or sse.
	Transport string   `yaml:"transport" mapstructure:"transport" validate:"required,oneof=stdio http sse"`
	Command   string   `yaml:"command" mapstructure:"command" validate:"required_if=Transport stdio"`
	Args      []string `yaml:"args" mapstructure:"args"`
	URL       string   `yaml:"url" mapstructure:"url" validate:"required_if=Transport http,required_if=Transport sse"`
	// MessageURL is the companion POST endpoint for the sse transport; if
	// empty, URL is used for both the event stream and message posts.
	MessageURL string `yaml:"message_url" mapstructure:"message_url"`
}

// RouterServerConfig is one entry of router.servers: a path prefix mapped
// to its own upstream definition.
type RouterServerConfig struct {
	Prefix   string         `yaml:"prefix" mapstructure:"prefix" validate:"required"`
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream" validate:"required"`
}

// RouterConfig enables router mode: one gateway fanning out to multiple
// upstreams selected by path prefix. When Servers is empty, the gateway
// runs in single-upstream mode against Config.Upstream instead.
type RouterConfig struct {
	Servers []RouterServerConfig `yaml:"servers" mapstructure:"servers" validate:"omitempty,dive"`
}

// AuthConfig configures every credential provider mcp-guard accepts. Any
// combination may be enabled at once; the composite authenticator tries
// each configured provider in a fixed order until one succeeds.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
	JWT     JWTAuthConfig  `yaml:"jwt" mapstructure:"jwt"`
	OAuth   OAuthConfig    `yaml:"oauth" mapstructure:"oauth"`
	MTLS    MTLSConfig     `yaml:"mtls" mapstructure:"mtls"`
}

// APIKeyConfig is one configured API key entry. KeyHash is never the raw
// key — see the keygen/hash-key CLI commands for producing it.
type APIKeyConfig struct {
	ID           string   `yaml:"id" mapstructure:"id" validate:"required"`
	Name         string   `yaml:"name" mapstructure:"name"`
	KeyHash      string   `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`
	AllowedTools []string `yaml:"allowed_tools" mapstructure:"allowed_tools"`
	// RateLimit overrides rate_limit.requests_per_second for this identity.
	RateLimit *float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// JWTAuthConfig configures bearer-JWT authentication, either with a
// shared HMAC secret (Mode "simple") or a JWKS endpoint (Mode "jwks").
type JWTAuthConfig struct {
	Mode             string            `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=simple jwks"`
	Secret           string            `yaml:"secret" mapstructure:"secret" validate:"required_if=Mode simple"`
	JWKSURL          string            `yaml:"jwks_url" mapstructure:"jwks_url" validate:"required_if=Mode jwks"`
	Issuer           string            `yaml:"issuer" mapstructure:"issuer"`
	Audience         string            `yaml:"audience" mapstructure:"audience"`
	ScopeToolMapping map[string][]string `yaml:"scope_tool_mapping" mapstructure:"scope_tool_mapping"`
	CacheTTLSecs     int               `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// Enabled reports whether any JWT configuration was supplied.
func (c JWTAuthConfig) Enabled() bool { return c.Mode != "" }

// OAuthConfig configures RFC 7662 token introspection with an optional
// userinfo fallback.
type OAuthConfig struct {
	IntrospectionURL string              `yaml:"introspection_url" mapstructure:"introspection_url"`
	UserinfoURL      string              `yaml:"userinfo_url" mapstructure:"userinfo_url"`
	CacheTTLSecs     int                 `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	ScopeToolMapping map[string][]string `yaml:"scope_tool_mapping" mapstructure:"scope_tool_mapping"`
}

// Enabled reports whether any OAuth endpoint was configured.
func (c OAuthConfig) Enabled() bool { return c.IntrospectionURL != "" || c.UserinfoURL != "" }

// MTLSConfig configures client-certificate authentication delegated to a
// reverse proxy that terminates TLS and forwards verification headers.
type MTLSConfig struct {
	TrustedProxyIPs []string `yaml:"trusted_proxy_ips" mapstructure:"trusted_proxy_ips"`
	CertHeader      string   `yaml:"cert_header" mapstructure:"cert_header"`
	VerifiedHeader  string   `yaml:"verified_header" mapstructure:"verified_header"`
}

// Enabled reports whether client-cert trust was configured.
func (c MTLSConfig) Enabled() bool { return len(c.TrustedProxyIPs) > 0 }

// RateLimitConfig configures the per-identity token-bucket limiter.
type RateLimitConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"required_if=Enabled true,omitempty,gt=0"`
	BurstSize        int     `yaml:"burst_size" mapstructure:"burst_size" validate:"omitempty,gt=0"`
	EntryTTLSecs     int     `yaml:"entry_ttl_secs" mapstructure:"entry_ttl_secs" validate:"omitempty,gt=0"`
	CleanupThreshold int     `yaml:"cleanup_threshold" mapstructure:"cleanup_threshold" validate:"omitempty,gt=0"`
}

// AuditConfig configures the audit pipeline's sinks.
type AuditConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	FilePath          string `yaml:"file_path" mapstructure:"file_path"`
	Stdout            bool   `yaml:"stdout" mapstructure:"stdout"`
	ExportURL         string `yaml:"export_url" mapstructure:"export_url"`
	BatchSize         int    `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,gt=0"`
	FlushIntervalSecs int    `yaml:"flush_interval_secs" mapstructure:"flush_interval_secs" validate:"omitempty,gt=0"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1"`
}

// SetDefaults fills in zero-valued optional fields with their documented
// defaults. Called after Viper unmarshal, before Validate.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.RateLimit.EntryTTLSecs == 0 {
		c.RateLimit.EntryTTLSecs = 3600
	}
	if c.RateLimit.CleanupThreshold == 0 {
		c.RateLimit.CleanupThreshold = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 50
	}
	if c.Audit.FlushIntervalSecs == 0 {
		c.Audit.FlushIntervalSecs = 5
	}
	if c.Auth.JWT.CacheTTLSecs == 0 {
		c.Auth.JWT.CacheTTLSecs = 300
	}
	if c.Auth.OAuth.CacheTTLSecs == 0 {
		c.Auth.OAuth.CacheTTLSecs = 300
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
}
