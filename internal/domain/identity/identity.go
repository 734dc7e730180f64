// Package identity holds the authenticated-subject value type shared by
// every auth provider, the rate limiter, the tool filter, and the audit
// pipeline.
package identity

// Unrestricted marks an allow-set as granting every tool. It is a sentinel
// value inside an AllowSet, not a distinguished Go type, so config
// (`allowed_tools: ["*"]`) and scope-map unions can produce it uniformly.
const Unrestricted = "*"

// AllowSet is the set of tool names an Identity may call.
//
// A nil AllowSet means unrestricted (every tool allowed) — this is the
// zero value, so an Identity built without an explicit allow-set is
// unrestricted by default. A non-nil, empty AllowSet means deny-all. A
// non-nil AllowSet containing Unrestricted also means unrestricted.
type AllowSet map[string]struct{}

// NewAllowSet builds an AllowSet from a list of tool names. An empty,
// non-nil slice produces a deny-all set; nil and empty are distinguished by
// the caller choosing whether to pass a slice at all (see NewAllowSet vs.
// leaving Identity.Allow nil).
func NewAllowSet(tools []string) AllowSet {
	set := make(AllowSet, len(tools))
	for _, t := range tools {
		set[t] = struct{}{}
	}
	return set
}

// Unrestricted reports whether this set permits every tool: either it is
// nil or it contains the "*" sentinel.
func (a AllowSet) Unrestricted() bool {
	if a == nil {
		return true
	}
	_, ok := a[Unrestricted]
	return ok
}

// Allows reports whether tool may be called under this set.
func (a AllowSet) Allows(tool string) bool {
	if a.Unrestricted() {
		return true
	}
	_, ok := a[tool]
	return ok
}

// AllowSetFromConfig builds an AllowSet the way config-sourced tool lists
// should: a nil slice (the key omitted entirely) produces an unrestricted
// nil AllowSet, while a non-nil slice — including an explicit empty one —
// produces a deny-all-unless-listed set.
func AllowSetFromConfig(tools []string) AllowSet {
	if tools == nil {
		return nil
	}
	return NewAllowSet(tools)
}

// Identity is the authenticated subject attached to a request once an auth
// provider succeeds. It is an immutable value: built once per request,
// read by the rate limiter, the tool filter, and the audit pipeline, and
// discarded with the request.
type Identity struct {
	// ID is stable per principal: the rate-limit bucket key and the audit
	// subject. Two requests from the same caller must produce the same ID.
	ID string

	// Name is an optional human-readable label, used only for logs/audit.
	Name string

	// Allow is the set of tools this Identity may invoke. Nil means
	// unrestricted.
	Allow AllowSet

	// RequestsPerSecond, if non-nil, overrides the rate limiter's default
	// rps for this Identity's bucket.
	RequestsPerSecond *float64

	// Claims carries provider-supplied data forward for downstream
	// consumers (audit, authorization CEL predicates): JWT subject/issuer,
	// OAuth scopes, certificate SAN, and so on. Never used for routing
	// decisions beyond what Allow and RequestsPerSecond already capture.
	Claims map[string]any

	// Provider is the name of the auth provider that authenticated this
	// request, used for metrics and audit (e.g. "api_key", "jwt", "oauth",
	// "client_cert").
	Provider string
}

// CanCall reports whether this Identity's allow-set permits tool.
func (id Identity) CanCall(tool string) bool {
	return id.Allow.Allows(tool)
}
