package sandbox

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/skillet/internal/skill"
)

// TierConfig fixes the sandbox parameters for one trust tier. Configs are
// built once at startup and passed by value into each invocation; tiers
// never share a mutable configuration object.
type TierConfig struct {
	// Tier is the trust tier this configuration belongs to.
	Tier skill.TrustTier

	// Fuel is the deterministic instruction budget. It decrements per
	// executed instruction, independent of wall-clock time, which is
	// what bounds an adversarial infinite loop.
	Fuel uint64

	// MemoryBytes is the hard linear-memory ceiling. Growth requests
	// beyond it are refused, not silently capped.
	MemoryBytes int64

	// Timeout is the wall-clock bound, enforced independently of fuel
	// so host-side blocking calls are still caught.
	Timeout time.Duration

	// EnableSIMD controls whether vectorized instruction extensions are
	// available to the guest. Disabled for the strictest tier to shrink
	// the attack surface.
	EnableSIMD bool

	// StrictEnforcement terminates the whole invocation on a denied
	// capability use instead of returning an error code to the guest.
	StrictEnforcement bool
}

// Tier budget constants. The verified tier gets roomier budgets and the
// full instruction-set surface; untrusted gets the strictest budgets.
const (
	verifiedFuel    uint64 = 500_000_000
	verifiedMemory  int64  = 64 << 20
	verifiedTimeout        = 30 * time.Second

	untrustedFuel    uint64 = 100_000_000
	untrustedMemory  int64  = 16 << 20
	untrustedTimeout        = 10 * time.Second
)

// tierConfigs is the immutable per-tier configuration table, constructed
// once at package init.
var tierConfigs = map[skill.TrustTier]TierConfig{
	skill.TierVerified: {
		Tier:        skill.TierVerified,
		Fuel:        verifiedFuel,
		MemoryBytes: verifiedMemory,
		Timeout:     verifiedTimeout,
		EnableSIMD:  true,
	},
	skill.TierUntrusted: {
		Tier:              skill.TierUntrusted,
		Fuel:              untrustedFuel,
		MemoryBytes:       untrustedMemory,
		Timeout:           untrustedTimeout,
		EnableSIMD:        false,
		StrictEnforcement: true,
	},
}

// ConfigForTier returns the sandbox configuration for a tier. The local
// tier has no sandbox configuration: local skills never enter the engine,
// and asking for their config is a programming error surfaced by the
// second return value.
func ConfigForTier(tier skill.TrustTier) (TierConfig, bool) {
	cfg, ok := tierConfigs[tier]

	return cfg, ok
}

// Narrow applies a manifest's resource-limit overrides to a tier config.
// Overrides may only shrink budgets; an override larger than the tier
// budget is ignored so a manifest can never widen its own limits.
func (c TierConfig) Narrow(limits fn.Option[skill.ResourceLimits]) TierConfig {
	limitsVal := limits.UnwrapOr(skill.ResourceLimits{})

	if limitsVal.Fuel > 0 && limitsVal.Fuel < c.Fuel {
		c.Fuel = limitsVal.Fuel
	}
	if limitsVal.MemoryBytes > 0 && limitsVal.MemoryBytes < c.MemoryBytes {
		c.MemoryBytes = limitsVal.MemoryBytes
	}
	if limitsVal.Timeout > 0 && limitsVal.Timeout < c.Timeout {
		c.Timeout = limitsVal.Timeout
	}

	return c
}
