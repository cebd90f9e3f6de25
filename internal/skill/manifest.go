// Package skill defines the domain types shared by the skill installation
// and execution pipeline: the closed capability enumeration, trust tiers,
// resource limits, and the parsed manifest form consumed by the resolver,
// composer, and sandbox layers.
//
// Manifest parsing itself happens upstream; everything in this package is
// the already-validated, immutable result of that parse.
package skill

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Dependency is a declared dependency on another skill, constrained to a
// semver range such as "^1.0" or ">=2.1 <3.0".
type Dependency struct {
	// Name is the depended-upon skill.
	Name string `json:"name"`

	// Range is the declared semver version range.
	Range string `json:"range"`
}

// ResourceLimits bounds a single sandboxed invocation. Zero values mean "no
// override"; the effective limit is always the tier budget narrowed by any
// declared override, never widened.
type ResourceLimits struct {
	// Fuel is the instruction-execution budget, decremented per executed
	// instruction independent of wall-clock time.
	Fuel uint64

	// MemoryBytes is the hard memory ceiling. Growth beyond the ceiling
	// is refused, not silently capped.
	MemoryBytes int64

	// Timeout is the wall-clock bound, enforced independently of the
	// fuel budget.
	Timeout time.Duration
}

// SkillManifest is the fully parsed, already-validated manifest of a skill.
// It is immutable once loaded and owned by the store that persists it.
type SkillManifest struct {
	// Name uniquely identifies the skill within a universe.
	Name string

	// Version is the skill's semantic version, e.g. "1.2.0".
	Version string

	// Description is the human-readable summary from the manifest.
	Description string

	// Capabilities are the capabilities the skill declares for itself.
	Capabilities []Capability

	// CapabilityConfig carries per-capability configuration, e.g. the
	// allowed path prefixes for read-file or allowed hosts for http-get.
	CapabilityConfig map[Capability]string

	// Dependencies are the skills this skill requires, with ranges.
	Dependencies []Dependency

	// ConflictsWith names skills that must not be co-installed with this
	// one. The declaration is honored bidirectionally.
	ConflictsWith []string

	// Parents names the skills this skill inherits capabilities from, in
	// declaration order. Later parents win configuration conflicts.
	Parents []string

	// Tier is the declared trust tier.
	Tier TrustTier

	// Limits optionally narrows the tier's resource budgets.
	Limits fn.Option[ResourceLimits]

	// ModulePath is the path to the compiled wasm module for executable
	// skills. Empty for prompt-only skills.
	ModulePath string

	// Prompt is the prompt text for prompt-only (local tier) skills.
	Prompt string
}

// OwnCapabilities returns the skill's declared capabilities as a fresh set.
func (m *SkillManifest) OwnCapabilities() CapabilitySet {
	return NewCapabilitySet(m.Capabilities...)
}

// Executable reports whether the skill carries a compiled module rather
// than prompt text only.
func (m *SkillManifest) Executable() bool {
	return m.ModulePath != ""
}

// Universe is the set of known manifests, keyed by skill name. Resolution
// operates over a universe snapshot and never mutates it.
type Universe = map[string]*SkillManifest
