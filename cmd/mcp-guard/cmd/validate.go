package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpguard/mcp-guard/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration (-c/--config, or the standard search path) and
run every validation rule without starting the gateway: port range,
JWKS scheme, upstream SSRF/injection checks, rate-limit and sample-rate
bounds.

Example:
  mcp-guard validate -c mcp-guard.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return configErr(err)
		}
		path := config.ConfigFileUsed()
		if path == "" {
			path = "(environment only)"
		}
		fmt.Printf("%s: valid\n", path)
		fmt.Printf("  upstream: %s\n", describeUpstream(cfg))
		fmt.Printf("  auth providers: %s\n", describeAuthProviders(cfg))
		fmt.Printf("  rate limit: %s\n", describeRateLimit(cfg))
		return nil
	},
}

func describeUpstream(cfg *config.Config) string {
	if len(cfg.Router.Servers) > 0 {
		return fmt.Sprintf("router mode, %d upstream(s)", len(cfg.Router.Servers))
	}
	return fmt.Sprintf("%s (single upstream)", cfg.Upstream.Transport)
}

func describeAuthProviders(cfg *config.Config) string {
	var kinds []string
	if len(cfg.Auth.APIKeys) > 0 {
		kinds = append(kinds, fmt.Sprintf("api_key(%d)", len(cfg.Auth.APIKeys)))
	}
	if cfg.Auth.JWT.Enabled() {
		kinds = append(kinds, "jwt:"+cfg.Auth.JWT.Mode)
	}
	if cfg.Auth.OAuth.Enabled() {
		kinds = append(kinds, "oauth")
	}
	if cfg.Auth.MTLS.Enabled() {
		kinds = append(kinds, "mtls")
	}
	if len(kinds) == 0 {
		return "none configured"
	}
	out := kinds[0]
	for _, k := range kinds[1:] {
		out += ", " + k
	}
	return out
}

func describeRateLimit(cfg *config.Config) string {
	if !cfg.RateLimit.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%.1f req/s, burst %d", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
