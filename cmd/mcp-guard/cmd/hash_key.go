package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpguard/mcp-guard/internal/domain/auth"
)

var hashKeyFormat string

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Hash an API key for use in config",
	Long: `Hash an API key for use in auth.api_keys[].key_hash.

Two formats are supported:

  sha256     sha256:<hex>                (default, fast, legacy-compatible)
  argon2id   $argon2id$v=19$...          (slower, preferred for new keys)

Example:
  mcp-guard hash-key "my-secret-api-key"
  mcp-guard hash-key --format argon2id "my-secret-api-key"

Security note: the key will appear in shell history. Consider clearing
history after use, or pass it via an environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		switch hashKeyFormat {
		case "", "sha256":
			fmt.Printf("sha256:%s\n", auth.HashKey(key))
		case "argon2id":
			hash, err := auth.HashKeyArgon2id(key)
			if err != nil {
				return configErr(fmt.Errorf("hash key: %w", err))
			}
			fmt.Println(hash)
		default:
			return configErr(fmt.Errorf("unknown --format %q (want sha256 or argon2id)", hashKeyFormat))
		}
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().StringVar(&hashKeyFormat, "format", "sha256", "hash format: sha256 or argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
