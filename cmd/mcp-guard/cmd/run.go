package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpguard/mcp-guard/internal/adapter/inbound/httpapi"
	"github.com/mcpguard/mcp-guard/internal/app"
	"github.com/mcpguard/mcp-guard/internal/config"
)

// shutdownGrace bounds how long run waits for in-flight requests to
// drain and State.Close to tear down background tasks after SIGINT/SIGTERM.
const shutdownGrace = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway",
	Long: `Load the configuration, build every component (auth providers, rate
limiter, audit pipeline, upstream transport or router), and serve the
HTTP surface until SIGINT or SIGTERM.

Example:
  mcp-guard run -c mcp-guard.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return configErr(err)
		}
		return runGateway(cfg)
	},
}

func runGateway(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)
	if path := config.ConfigFileUsed(); path != "" {
		logger.Info("loaded config", "file", path)
	}

	state, err := app.New(ctx, cfg, logger, Version)
	if err != nil {
		return runtimeErr(fmt.Errorf("start gateway: %w", err))
	}

	srv := &stdhttp.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewServer(state),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", srv.Addr, "router_mode", state.RouterMode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			_ = state.Close(context.Background())
			return runtimeErr(fmt.Errorf("serve: %w", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server did not shut down cleanly", "error", err)
	}
	if err := state.Close(shutdownCtx); err != nil {
		logger.Warn("gateway teardown reported an error", "error", err)
	}
	return nil
}

// newLogger builds the process logger: text to stderr (stdout is
// reserved for the MCP stream when the upstream is a stdio subprocess),
// debug level under dev_mode.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.AddCommand(runCmd)
}
