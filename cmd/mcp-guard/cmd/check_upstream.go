package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpguard/mcp-guard/internal/config"
	"github.com/mcpguard/mcp-guard/internal/transport"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

var checkUpstreamTimeout time.Duration

var checkUpstreamCmd = &cobra.Command{
	Use:   "check-upstream",
	Short: "Probe the configured upstream without serving traffic",
	Long: `Connect to the configured upstream (or every upstream in router mode),
send a tools/list request, and report whether each one answers before
--timeout elapses. Exits 2 if any upstream fails to answer.

Example:
  mcp-guard check-upstream -c mcp-guard.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return configErr(err)
		}

		logger := slog.Default()
		upstreams := cfg.Router.Servers
		if len(upstreams) == 0 {
			upstreams = []config.RouterServerConfig{{Prefix: "/", Upstream: cfg.Upstream}}
		}

		var failed bool
		for _, u := range upstreams {
			if err := probeUpstream(logger, u.Upstream, checkUpstreamTimeout); err != nil {
				fmt.Printf("%s: FAIL (%v)\n", u.Prefix, err)
				failed = true
				continue
			}
			fmt.Printf("%s: OK\n", u.Prefix)
		}

		if failed {
			return runtimeErr(fmt.Errorf("one or more upstreams did not respond"))
		}
		return nil
	},
}

func probeUpstream(logger *slog.Logger, u config.UpstreamConfig, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var t transport.Transport
	var err error
	switch u.Transport {
	case "stdio":
		t, err = transport.StartStdioTransport(ctx, u.Command, u.Args, logger)
	case "http":
		t, err = transport.NewHTTPTransport(u.URL, timeout)
	case "sse":
		messageURL := u.MessageURL
		if messageURL == "" {
			messageURL = u.URL
		}
		t, err = transport.NewSSETransport(ctx, u.URL, messageURL, timeout)
	default:
		return fmt.Errorf("unknown transport %q", u.Transport)
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer t.Close()

	probe := &mcp.Message{JSONRPC: mcp.ProtocolVersion, ID: json.RawMessage(`"check-upstream"`), Method: "tools/list"}
	if err := t.Send(ctx, probe); err != nil {
		return fmt.Errorf("send probe: %w", err)
	}
	for {
		resp, err := t.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if resp.IsResponse() {
			return nil
		}
	}
}

func init() {
	checkUpstreamCmd.Flags().DurationVar(&checkUpstreamTimeout, "timeout", 5*time.Second, "how long to wait for the upstream to answer")
	rootCmd.AddCommand(checkUpstreamCmd)
}
