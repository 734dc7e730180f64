package auth

import "sort"

// ScopeToolMapping maps a single OAuth/JWT scope to the tool names it
// grants.
type ScopeToolMapping map[string][]string

// ResolveTools turns a set of scopes into an identity.AllowSetFromConfig
// input per §4.2's scope→tool mapping rule: an empty/nil mapping means
// unrestricted (nil slice, so AllowSetFromConfig yields an unrestricted
// AllowSet); otherwise the union of every matched scope's tools is
// returned, deduplicated and sorted; if any matched set contains "*", the
// result is nil (unrestricted) regardless of what else was mapped.
func (m ScopeToolMapping) ResolveTools(scopes []string) []string {
	if len(m) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, scope := range scopes {
		tools, ok := m[scope]
		if !ok {
			continue
		}
		for _, t := range tools {
			if t == "*" {
				return nil
			}
			seen[t] = struct{}{}
		}
	}

	if len(seen) == 0 {
		// Scopes were presented but none mapped to anything: deny-all,
		// not unrestricted, so this path returns a non-nil empty slice.
		return []string{}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
