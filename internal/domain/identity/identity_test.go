package identity

import "testing"

func TestAllowSetNilIsUnrestricted(t *testing.T) {
	var a AllowSet
	if !a.Unrestricted() {
		t.Fatal("nil allow-set must be unrestricted")
	}
	if !a.Allows("anything") {
		t.Fatal("nil allow-set must allow any tool")
	}
}

func TestAllowSetEmptyDeniesAll(t *testing.T) {
	a := NewAllowSet(nil)
	if a.Unrestricted() {
		t.Fatal("empty non-nil allow-set must not be unrestricted")
	}
	if a.Allows("read") {
		t.Fatal("empty allow-set must deny every tool")
	}
}

func TestAllowSetWildcard(t *testing.T) {
	a := NewAllowSet([]string{"read", "*"})
	if !a.Unrestricted() {
		t.Fatal("allow-set containing \"*\" must be unrestricted")
	}
	if !a.Allows("anything-at-all") {
		t.Fatal("wildcard allow-set must allow any tool")
	}
}

func TestAllowSetExplicitMembership(t *testing.T) {
	a := NewAllowSet([]string{"read"})
	if !a.Allows("read") {
		t.Fatal("expected read to be allowed")
	}
	if a.Allows("write") {
		t.Fatal("expected write to be denied")
	}
}

func TestIdentityCanCallDelegatesToAllowSet(t *testing.T) {
	id := Identity{ID: "u1", Allow: NewAllowSet([]string{"read"})}
	if !id.CanCall("read") || id.CanCall("write") {
		t.Fatal("Identity.CanCall must delegate to its allow-set")
	}

	unrestricted := Identity{ID: "u2"}
	if !unrestricted.CanCall("anything") {
		t.Fatal("Identity with nil allow-set must permit every tool")
	}
}
