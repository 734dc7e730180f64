package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// ErrUnknownHashType is returned when a stored hash has an unrecognized
// format.
var ErrUnknownHashType = errors.New("auth: unknown api key hash type")

// APIKeyEntry is one configured static API key: `auth.api_keys[]` in the
// configuration model. KeyHash is never the raw key.
type APIKeyEntry struct {
	ID                string
	Name              string
	KeyHash           string
	AllowedTools      []string
	RequestsPerSecond *float64
}

// APIKeyProvider authenticates against a fixed list of hashed keys loaded
// from configuration. It never stores plaintext keys.
type APIKeyProvider struct {
	entries []APIKeyEntry
}

// NewAPIKeyProvider builds a provider over entries. The slice is copied;
// callers may discard their own copy afterward.
func NewAPIKeyProvider(entries []APIKeyEntry) *APIKeyProvider {
	cp := make([]APIKeyEntry, len(entries))
	copy(cp, entries)
	return &APIKeyProvider{entries: cp}
}

func (p *APIKeyProvider) Name() string { return "api_key" }

// Authenticate hashes token and compares it, in constant time, against
// every configured entry — no early exit — so the time a wrong key takes
// to reject does not depend on which entry (if any) it nearly matched.
func (p *APIKeyProvider) Authenticate(_ context.Context, token string) (identity.Identity, *apperr.AuthError) {
	if token == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthMissingCredentials, "")
	}

	var matched *APIKeyEntry
	for i := range p.entries {
		ok, err := VerifyKey(token, p.entries[i].KeyHash)
		if err != nil {
			continue
		}
		if ok && matched == nil {
			matched = &p.entries[i]
		}
	}

	if matched == nil {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthInvalidAPIKey, "")
	}

	return identity.Identity{
		ID:                matched.ID,
		Name:              matched.Name,
		Allow:             identity.AllowSetFromConfig(matched.AllowedTools),
		RequestsPerSecond: matched.RequestsPerSecond,
		Provider:          p.Name(),
	}, nil
}

// HashKey returns the SHA-256 hex hash of rawKey. Kept for the legacy
// format and for the `hash-key` CLI command; HashKeyArgon2id is preferred
// for newly minted keys.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// argon2idParams are the OWASP-minimum parameters for interactive login
// hashing: 47 MiB memory, 1 iteration, 1 degree of parallelism.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id PHC-format hash of rawKey, including
// a random salt: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>.
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the format of a stored hash.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey checks rawKey against storedHash, dispatching on the hash's
// detected format. Both branches compare in constant time.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)
	case "sha256":
		expected := strings.TrimPrefix(storedHash, "sha256:")
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery: the library panics on a malformed hash with invalid
// parameters (t=0, p=0), which would otherwise crash the request path.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
