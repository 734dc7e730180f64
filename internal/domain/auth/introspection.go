package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/internal/domain/identity"
)

// introspectionResponse is the RFC 7662 token introspection response
// shape, restricted to the fields mcp-guard consumes.
type introspectionResponse struct {
	Active    bool   `json:"active"`
	Sub       string `json:"sub"`
	Scope     string `json:"scope"`
	ExpiresAt int64  `json:"exp"`
}

type userinfoResponse struct {
	Sub string `json:"sub"`
}

// OAuthConfig configures an OAuthProvider.
type OAuthConfig struct {
	IntrospectionURL string
	UserinfoURL      string
	CacheTTL         time.Duration
	ScopeToolMapping ScopeToolMapping
	HTTPClient       *http.Client
}

// introspectionCacheEntry is a cached successful introspection result,
// keyed by a hash of the raw token (never the token itself) so a memory
// dump doesn't hand an attacker live bearer tokens.
type introspectionCacheEntry struct {
	identity  identity.Identity
	expiresAt time.Time
}

// OAuthProvider authenticates tokens by presenting them to a remote
// introspection endpoint, falling back to a userinfo endpoint on failure.
// Results are cached by a bounded map keyed by token hash.
type OAuthProvider struct {
	cfg        OAuthConfig
	httpClient *http.Client

	mu       sync.Mutex
	cache    map[string]introspectionCacheEntry
	maxCache int
	order    []string
}

func NewOAuthProvider(cfg OAuthConfig) *OAuthProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuthProvider{
		cfg:        cfg,
		httpClient: client,
		cache:      make(map[string]introspectionCacheEntry),
		maxCache:   4096,
	}
}

func (p *OAuthProvider) Name() string { return "oauth" }

func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (p *OAuthProvider) Authenticate(ctx context.Context, token string) (identity.Identity, *apperr.AuthError) {
	if token == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthMissingCredentials, "")
	}

	key := tokenCacheKey(token)
	p.mu.Lock()
	entry, ok := p.cache[key]
	if ok {
		for i, k := range p.order {
			if k == key {
				copy(p.order[i:], p.order[i+1:])
				p.order[len(p.order)-1] = key
				break
			}
		}
	}
	p.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.identity, nil
	}

	id, authErr := p.introspect(ctx, token)
	if authErr != nil && p.cfg.UserinfoURL != "" {
		id, authErr = p.userinfo(ctx, token)
	}
	if authErr != nil {
		return identity.Identity{}, authErr
	}

	ttl := p.cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	p.mu.Lock()
	p.storeLocked(key, introspectionCacheEntry{identity: id, expiresAt: time.Now().Add(ttl)})
	p.mu.Unlock()

	return id, nil
}

// storeLocked inserts an entry, evicting the least recently used one if
// the bounded cache is full (Authenticate moves a key to the back of
// p.order on every lookup that finds it). Caller must hold p.mu.
func (p *OAuthProvider) storeLocked(key string, entry introspectionCacheEntry) {
	if _, exists := p.cache[key]; !exists {
		if len(p.order) >= p.maxCache {
			oldest := p.order[0]
			p.order = p.order[1:]
			delete(p.cache, oldest)
		}
		p.order = append(p.order, key)
	}
	p.cache[key] = entry
}

func (p *OAuthProvider) introspect(ctx context.Context, token string) (identity.Identity, *apperr.AuthError) {
	if p.cfg.IntrospectionURL == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthOAuth, "introspection not configured")
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return identity.Identity{}, apperr.WrapAuthError(apperr.AuthOAuth, "build introspection request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return identity.Identity{}, apperr.WrapAuthError(apperr.AuthOAuth, "introspection request failed", err)
	}
	defer resp.Body.Close()

	var body introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return identity.Identity{}, apperr.WrapAuthError(apperr.AuthOAuth, "decode introspection response", err)
	}
	if !body.Active {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthOAuth, "token inactive")
	}
	if body.ExpiresAt > 0 && time.Now().Unix() > body.ExpiresAt {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthTokenExpired, "")
	}

	scopes := parseScopes(body.Scope)
	allowed := p.cfg.ScopeToolMapping.ResolveTools(scopes)

	return identity.Identity{
		ID:       body.Sub,
		Allow:    identity.AllowSetFromConfig(allowed),
		Claims:   map[string]any{"sub": body.Sub, "scope": body.Scope},
		Provider: p.Name(),
	}, nil
}

func (p *OAuthProvider) userinfo(ctx context.Context, token string) (identity.Identity, *apperr.AuthError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserinfoURL, nil)
	if err != nil {
		return identity.Identity{}, apperr.WrapAuthError(apperr.AuthOAuth, "build userinfo request", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return identity.Identity{}, apperr.WrapAuthError(apperr.AuthOAuth, "userinfo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthOAuth, "userinfo rejected token")
	}

	var body userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return identity.Identity{}, apperr.WrapAuthError(apperr.AuthOAuth, "decode userinfo response", err)
	}
	if body.Sub == "" {
		return identity.Identity{}, apperr.NewAuthError(apperr.AuthOAuth, "userinfo missing subject")
	}

	return identity.Identity{
		ID:       body.Sub,
		Provider: p.Name(),
	}, nil
}
