// Package cmd provides the CLI commands for mcp-guard.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpguard/mcp-guard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-guard",
	Short: "mcp-guard - a security gateway for MCP servers",
	Long: `mcp-guard sits in front of one or more Model Context Protocol servers
and enforces authentication, authorization, rate limiting, and audit
logging on every JSON-RPC call, without requiring changes to the
upstream server.

Quick start:
  1. mcp-guard init              write a starter mcp-guard.yaml
  2. mcp-guard validate          check it before you trust it
  3. mcp-guard run               start the gateway

Configuration is loaded from mcp-guard.{yaml,yml,toml} in the current
directory, $HOME/.mcp-guard/, or /etc/mcp-guard/. Environment variables
override config values with the MCP_GUARD_ prefix, e.g.
MCP_GUARD_SERVER_PORT=9090.

Commands:
  init            Write a starter configuration file
  validate        Validate a configuration file
  keygen          Mint a new API key and its config entry
  hash-key        Hash an existing API key for config
  check-upstream  Probe the configured upstream without serving traffic
  run             Run the gateway
  version         Print version information`,
}

// exitCoder lets a command attach a specific process exit code to an
// error without dictating its control flow.
type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

// configErr marks err as a configuration/validation failure (exit 1).
func configErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 1, err: err}
}

// runtimeErr marks err as a runtime start failure (exit 2).
func runtimeErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 2, err: err}
}

// Execute runs the root command and exits the process with whatever
// code the failing command attached, defaulting to 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec exitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./mcp-guard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
