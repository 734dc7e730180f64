package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcpguard/mcp-guard/internal/config"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestSubcommandsAreRegistered(t *testing.T) {
	want := []string{"init", "validate", "keygen", "hash-key", "check-upstream", "run", "version"}
	got := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("command %q not registered with rootCmd", name)
		}
	}
}

func TestExitErrorCarriesCode(t *testing.T) {
	err := configErr(errors.New("bad config"))
	var ec exitCoder
	if !errors.As(err, &ec) {
		t.Fatal("configErr should satisfy exitCoder")
	}
	if ec.ExitCode() != 1 {
		t.Errorf("configErr exit code = %d, want 1", ec.ExitCode())
	}

	err = runtimeErr(errors.New("bad start"))
	if !errors.As(err, &ec) {
		t.Fatal("runtimeErr should satisfy exitCoder")
	}
	if ec.ExitCode() != 2 {
		t.Errorf("runtimeErr exit code = %d, want 2", ec.ExitCode())
	}
}

func TestHashKeyDefaultsToSHA256(t *testing.T) {
	hashKeyFormat = hashKeyCmd.Flags().Lookup("format").DefValue
	out := captureStdout(t, func() {
		if err := hashKeyCmd.RunE(hashKeyCmd, []string{"my-secret"}); err != nil {
			t.Fatalf("hash-key: %v", err)
		}
	})
	if !strings.HasPrefix(strings.TrimSpace(out), "sha256:") {
		t.Errorf("output = %q, want sha256: prefix", out)
	}
}

func TestHashKeyArgon2idFormat(t *testing.T) {
	hashKeyFormat = "argon2id"
	defer func() { hashKeyFormat = "sha256" }()
	out := captureStdout(t, func() {
		if err := hashKeyCmd.RunE(hashKeyCmd, []string{"my-secret"}); err != nil {
			t.Fatalf("hash-key: %v", err)
		}
	})
	if !strings.HasPrefix(strings.TrimSpace(out), "$argon2id$") {
		t.Errorf("output = %q, want $argon2id$ prefix", out)
	}
}

func TestHashKeyUnknownFormatErrors(t *testing.T) {
	hashKeyFormat = "rot13"
	defer func() { hashKeyFormat = "sha256" }()
	if err := hashKeyCmd.RunE(hashKeyCmd, []string{"my-secret"}); err == nil {
		t.Fatal("expected an error for an unknown hash format")
	}
}

func TestKeygenRequiresUserID(t *testing.T) {
	keygenUserID = ""
	err := keygenCmd.RunE(keygenCmd, nil)
	if err == nil {
		t.Fatal("keygen without --user-id should fail")
	}
	var ec exitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != 1 {
		t.Errorf("expected a configuration-failure exit code, got %v", err)
	}
}

func TestKeygenPrintsRawKeyAndConfigEntry(t *testing.T) {
	keygenUserID = "svc-test"
	keygenFormat = "argon2id"
	defer func() { keygenUserID = ""; keygenFormat = "argon2id" }()

	out := captureStdout(t, func() {
		if err := keygenCmd.RunE(keygenCmd, nil); err != nil {
			t.Fatalf("keygen: %v", err)
		}
	})
	if !strings.Contains(out, "svc-test") {
		t.Errorf("output missing user id: %q", out)
	}
	if !strings.Contains(out, "key_hash:") {
		t.Errorf("output missing key_hash entry: %q", out)
	}
}

func TestInitWritesYamlByDefault(t *testing.T) {
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(oldWd) }()

	initFormat = "yaml"
	initForce = false
	if err := initCmd.RunE(initCmd, nil); err != nil {
		t.Fatalf("init: %v", err)
	}

	path := filepath.Join(dir, "mcp-guard.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func TestInitRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(oldWd) }()

	initFormat = "yaml"
	initForce = false
	if err := initCmd.RunE(initCmd, nil); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := initCmd.RunE(initCmd, nil); err == nil {
		t.Fatal("expected second init without --force to fail")
	}

	initForce = true
	defer func() { initForce = false }()
	if err := initCmd.RunE(initCmd, nil); err != nil {
		t.Fatalf("init --force should overwrite: %v", err)
	}
}

func TestDescribeUpstreamSingleVsRouter(t *testing.T) {
	cfg := &config.Config{Upstream: config.UpstreamConfig{Transport: "stdio"}}
	if got := describeUpstream(cfg); got != "stdio (single upstream)" {
		t.Errorf("describeUpstream = %q", got)
	}

	cfg.Router.Servers = []config.RouterServerConfig{{Prefix: "/a"}, {Prefix: "/b"}}
	if got := describeUpstream(cfg); got != "router mode, 2 upstream(s)" {
		t.Errorf("describeUpstream = %q", got)
	}
}

func TestDescribeAuthProvidersListsEach(t *testing.T) {
	cfg := &config.Config{}
	if got := describeAuthProviders(cfg); got != "none configured" {
		t.Errorf("describeAuthProviders = %q", got)
	}

	cfg.Auth.APIKeys = []config.APIKeyConfig{{ID: "k1"}}
	cfg.Auth.JWT.Mode = "simple"
	cfg.Auth.MTLS.TrustedProxyIPs = []string{"10.0.0.1"}
	got := describeAuthProviders(cfg)
	for _, want := range []string{"api_key(1)", "jwt:simple", "mtls"} {
		if !strings.Contains(got, want) {
			t.Errorf("describeAuthProviders = %q, missing %q", got, want)
		}
	}
}

func TestDescribeRateLimit(t *testing.T) {
	cfg := &config.Config{}
	if got := describeRateLimit(cfg); got != "disabled" {
		t.Errorf("describeRateLimit = %q, want disabled", got)
	}
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 5
	cfg.RateLimit.BurstSize = 10
	if got := describeRateLimit(cfg); got != "5.0 req/s, burst 10" {
		t.Errorf("describeRateLimit = %q", got)
	}
}

func TestProbeUpstreamRejectsUnknownTransport(t *testing.T) {
	err := probeUpstream(nil, config.UpstreamConfig{Transport: "carrier-pigeon"}, time.Second)
	if err == nil {
		t.Fatal("expected an error for an unknown transport kind")
	}
}

func TestNewLoggerHonorsDevMode(t *testing.T) {
	logger := newLogger(&config.Config{DevMode: true})
	if !logger.Enabled(context.Background(), -4) {
		t.Error("expected dev_mode to enable debug-level logging")
	}
}
