package skill

import "fmt"

// TrustTier classifies how much ambient trust a skill's origin carries. The
// tier selects the sandbox configuration applied at execution time and
// whether the OS-level subprocess wrapper is engaged.
type TrustTier string

const (
	// TierUntrusted is the strictest tier: the bytecode sandbox runs with
	// the smallest budgets and is itself wrapped in an OS-level sandboxed
	// subprocess. This is the default for any skill that has not been
	// explicitly promoted.
	TierUntrusted TrustTier = "untrusted"

	// TierVerified runs the bytecode sandbox in-process with relaxed
	// budgets and the full instruction-set surface.
	TierVerified TrustTier = "verified"

	// TierLocal is full host trust: prompt-only skills authored locally
	// that never enter the bytecode sandbox.
	TierLocal TrustTier = "local"
)

// DefaultTrustTier is applied when a manifest declares no tier. A skill is
// never upgraded to a more trusted tier implicitly.
const DefaultTrustTier = TierUntrusted

// Valid reports whether the tier is one of the three known tiers.
func (t TrustTier) Valid() bool {
	switch t {
	case TierUntrusted, TierVerified, TierLocal:
		return true
	}

	return false
}

// ParseTrustTier converts a string into a TrustTier. An empty string maps to
// the default (most restrictive) tier.
func ParseTrustTier(s string) (TrustTier, error) {
	if s == "" {
		return DefaultTrustTier, nil
	}

	t := TrustTier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown trust tier: %q", s)
	}

	return t, nil
}
