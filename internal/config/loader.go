package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variable support. If configFile is empty, it searches standard
// locations for mcp-guard.yaml/.yml/.toml.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("mcp-guard")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MCP_GUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an mcp-guard config file
// with an explicit extension, so Viper never matches the binary itself
// (same base name, no extension) in the working directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcp-guard"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "mcp-guard"))
		}
	} else {
		paths = append(paths, "/etc/mcp-guard")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml", ".toml"} {
			path := filepath.Join(dir, "mcp-guard"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")

	_ = viper.BindEnv("upstream.transport")
	_ = viper.BindEnv("upstream.command")
	_ = viper.BindEnv("upstream.url")

	_ = viper.BindEnv("auth.jwt.mode")
	_ = viper.BindEnv("auth.jwt.secret")
	_ = viper.BindEnv("auth.jwt.jwks_url")
	_ = viper.BindEnv("auth.oauth.introspection_url")
	_ = viper.BindEnv("auth.oauth.userinfo_url")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.requests_per_second")
	_ = viper.BindEnv("rate_limit.burst_size")

	_ = viper.BindEnv("audit.enabled")
	_ = viper.BindEnv("audit.file_path")
	_ = viper.BindEnv("audit.export_url")

	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("tracing.otlp_endpoint")

	_ = viper.BindEnv("dev_mode")
}

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadRaw reads and defaults the configuration without validating it, for
// callers that need to inspect or rewrite it first.
func LoadRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded config file, or "" if none
// was found (pure environment-variable mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
