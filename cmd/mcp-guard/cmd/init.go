package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	initFormat string
	initForce  bool
)

const yamlTemplate = `# mcp-guard configuration. See mcp-guard validate -c <path> before deploying.

server:
  host: 127.0.0.1
  port: 8443

upstream:
  transport: stdio
  command: /usr/local/bin/my-mcp-server
  args: []

auth:
  api_keys:
    - id: example
      key_hash: "sha256:0000000000000000000000000000000000000000000000000000000000000"
      allowed_tools: []

rate_limit:
  enabled: true
  requests_per_second: 10
  burst_size: 20

audit:
  enabled: true
  stdout: true

tracing:
  enabled: false
`

const tomlTemplate = `# mcp-guard configuration. See mcp-guard validate -c <path> before deploying.

[server]
host = "127.0.0.1"
port = 8443

[upstream]
transport = "stdio"
command = "/usr/local/bin/my-mcp-server"
args = []

[[auth.api_keys]]
id = "example"
key_hash = "sha256:0000000000000000000000000000000000000000000000000000000000000"
allowed_tools = []

[rate_limit]
enabled = true
requests_per_second = 10
burst_size = 20

[audit]
enabled = true
stdout = true

[tracing]
enabled = false
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write mcp-guard.<format> in the current directory with a minimal,
working configuration: a stdio upstream and one placeholder API key.
Replace the key_hash with the output of "mcp-guard keygen" before use.

Example:
  mcp-guard init
  mcp-guard init --format toml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ext := initFormat
		var tmpl string
		switch ext {
		case "", "yaml":
			ext = "yaml"
			tmpl = yamlTemplate
		case "toml":
			tmpl = tomlTemplate
		default:
			return configErr(fmt.Errorf("unknown --format %q (want yaml or toml)", initFormat))
		}

		path := "mcp-guard." + ext
		if _, err := os.Stat(path); err == nil && !initForce {
			return configErr(fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}

		if err := os.WriteFile(path, []byte(tmpl), 0o600); err != nil {
			return configErr(fmt.Errorf("write %s: %w", path, err))
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initFormat, "format", "yaml", "config format: yaml or toml")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
