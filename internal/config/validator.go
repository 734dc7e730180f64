package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mcpguard/mcp-guard/internal/transport"
)

// Validate runs struct-tag validation followed by the cross-field and
// cross-package rules that struct tags can't express: JWKS https-only
// outside dev mode, and SSRF/command-injection validation on every
// configured upstream.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateJWKSScheme(); err != nil {
		return err
	}
	if err := c.validateUpstreams(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateJWKSScheme() error {
	if c.Auth.JWT.Mode != "jwks" || c.DevMode {
		return nil
	}
	if !strings.HasPrefix(c.Auth.JWT.JWKSURL, "https://") {
		return errors.New("auth.jwt.jwks_url must use https outside dev mode")
	}
	return nil
}

// validateUpstreams runs the SSRF and command-injection guards against
// every configured upstream — the single Config.Upstream entry, and every
// router.servers entry when router mode is in use.
func (c *Config) validateUpstreams() error {
	upstreams := []UpstreamConfig{c.Upstream}
	for _, s := range c.Router.Servers {
		upstreams = append(upstreams, s.Upstream)
	}

	for i, u := range upstreams {
		if err := validateOneUpstream(u); err != nil {
			if i == 0 && len(c.Router.Servers) == 0 {
				return fmt.Errorf("upstream: %w", err)
			}
			return fmt.Errorf("router.servers: %w", err)
		}
	}
	return nil
}

func validateOneUpstream(u UpstreamConfig) error {
	switch u.Transport {
	case "stdio":
		return transport.ValidateCommand(u.Command)
	case "http":
		return transport.ValidateUpstreamURL(u.URL)
	case "sse":
		if err := transport.ValidateUpstreamURL(u.URL); err != nil {
			return err
		}
		if u.MessageURL != "" {
			return transport.ValidateUpstreamURL(u.MessageURL)
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q", u.Transport)
	}
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required for this configuration", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
