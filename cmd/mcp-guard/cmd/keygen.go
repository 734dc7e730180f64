package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpguard/mcp-guard/internal/domain/auth"
)

var (
	keygenUserID string
	keygenFormat string
)

// keygenRawKeyBytes is the entropy of a minted API key, base64url-encoded
// without padding into a ~43 character token.
const keygenRawKeyBytes = 32

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Mint a new API key and its config entry",
	Long: `Generate a new random API key and print both the raw key (give this
to the caller, it is shown once) and the auth.api_keys[] entry to paste
into config (the hash only, never the raw key).

Example:
  mcp-guard keygen --user-id svc-billing
  mcp-guard keygen --user-id svc-billing --format sha256`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenUserID == "" {
			return configErr(fmt.Errorf("--user-id is required"))
		}

		raw := make([]byte, keygenRawKeyBytes)
		if _, err := rand.Read(raw); err != nil {
			return configErr(fmt.Errorf("generate key material: %w", err))
		}
		rawKey := base64.RawURLEncoding.EncodeToString(raw)

		var hash string
		switch keygenFormat {
		case "", "argon2id":
			h, err := auth.HashKeyArgon2id(rawKey)
			if err != nil {
				return configErr(fmt.Errorf("hash key: %w", err))
			}
			hash = h
		case "sha256":
			hash = "sha256:" + auth.HashKey(rawKey)
		default:
			return configErr(fmt.Errorf("unknown --format %q (want argon2id or sha256)", keygenFormat))
		}

		fmt.Printf("API key (shown once, give this to %s):\n\n  %s\n\n", keygenUserID, rawKey)
		fmt.Printf("Config entry (paste into auth.api_keys):\n\n")
		fmt.Printf("  - id: %s\n", keygenUserID)
		fmt.Printf("    key_hash: %q\n", hash)
		fmt.Printf("    allowed_tools: []\n")
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenUserID, "user-id", "", "identity id for the minted key (required)")
	keygenCmd.Flags().StringVar(&keygenFormat, "format", "argon2id", "hash format: argon2id or sha256")
	rootCmd.AddCommand(keygenCmd)
}
