package skill

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// manifestJSON is the on-disk form of a manifest. Kept separate from the
// domain type so the wire layout can carry the resource-limit override as a
// plain optional object.
type manifestJSON struct {
	Name             string                `json:"name"`
	Version          string                `json:"version"`
	Description      string                `json:"description,omitempty"`
	Capabilities     []Capability          `json:"capabilities,omitempty"`
	CapabilityConfig map[Capability]string `json:"capability_config,omitempty"`
	Dependencies     []Dependency          `json:"dependencies,omitempty"`
	ConflictsWith    []string              `json:"conflicts_with,omitempty"`
	Parents          []string              `json:"inherits,omitempty"`
	Tier             TrustTier             `json:"tier,omitempty"`
	Limits           *limitsJSON           `json:"resource_limits,omitempty"`
	ModulePath       string                `json:"module,omitempty"`
	Prompt           string                `json:"prompt,omitempty"`
}

// limitsJSON is the wire form of ResourceLimits, with the timeout in
// milliseconds.
type limitsJSON struct {
	Fuel        uint64 `json:"fuel,omitempty"`
	MemoryBytes int64  `json:"memory_bytes,omitempty"`
	TimeoutMS   int64  `json:"timeout_ms,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m SkillManifest) MarshalJSON() ([]byte, error) {
	wire := manifestJSON{
		Name:             m.Name,
		Version:          m.Version,
		Description:      m.Description,
		Capabilities:     m.Capabilities,
		CapabilityConfig: m.CapabilityConfig,
		Dependencies:     m.Dependencies,
		ConflictsWith:    m.ConflictsWith,
		Parents:          m.Parents,
		Tier:             m.Tier,
		ModulePath:       m.ModulePath,
		Prompt:           m.Prompt,
	}

	m.Limits.WhenSome(func(l ResourceLimits) {
		wire.Limits = &limitsJSON{
			Fuel:        l.Fuel,
			MemoryBytes: l.MemoryBytes,
			TimeoutMS:   l.Timeout.Milliseconds(),
		}
	})

	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler. An absent tier defaults to
// untrusted; unknown tiers and capabilities are rejected here rather than
// deeper in the pipeline.
func (m *SkillManifest) UnmarshalJSON(data []byte) error {
	var wire manifestJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	tier := wire.Tier
	if tier == "" {
		tier = DefaultTrustTier
	}

	*m = SkillManifest{
		Name:             wire.Name,
		Version:          wire.Version,
		Description:      wire.Description,
		Capabilities:     wire.Capabilities,
		CapabilityConfig: wire.CapabilityConfig,
		Dependencies:     wire.Dependencies,
		ConflictsWith:    wire.ConflictsWith,
		Parents:          wire.Parents,
		Tier:             tier,
		ModulePath:       wire.ModulePath,
		Prompt:           wire.Prompt,
	}

	if wire.Limits != nil {
		m.Limits = fn.Some(ResourceLimits{
			Fuel:        wire.Limits.Fuel,
			MemoryBytes: wire.Limits.MemoryBytes,
			Timeout: time.Duration(wire.Limits.TimeoutMS) *
				time.Millisecond,
		})
	}

	return m.Validate()
}

// Validate checks the manifest's structural invariants: identity present,
// a parseable semver version, and only members of the closed tier and
// capability sets.
func (m *SkillManifest) Validate() error {
	if m.Name == "" {
		return errors.New("manifest is missing a name")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest %s is missing a version", m.Name)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("manifest %s has invalid version %q: %w",
			m.Name, m.Version, err)
	}

	if !m.Tier.Valid() {
		return fmt.Errorf("manifest %s has unknown tier %q", m.Name,
			m.Tier)
	}

	for _, c := range m.Capabilities {
		if !c.Valid() {
			return fmt.Errorf("manifest %s declares unknown "+
				"capability %q", m.Name, c)
		}
	}
	for c := range m.CapabilityConfig {
		if !c.Valid() {
			return fmt.Errorf("manifest %s configures unknown "+
				"capability %q", m.Name, c)
		}
	}

	for _, dep := range m.Dependencies {
		if dep.Name == "" {
			return fmt.Errorf("manifest %s has a dependency "+
				"without a name", m.Name)
		}
		if _, err := semver.NewConstraint(dep.Range); err != nil {
			return fmt.Errorf("manifest %s has invalid range %q "+
				"for dependency %s: %w", m.Name, dep.Range,
				dep.Name, err)
		}
	}

	if m.ModulePath == "" && m.Prompt == "" {
		return fmt.Errorf("manifest %s carries neither a module nor "+
			"a prompt", m.Name)
	}

	return nil
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*SkillManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m SkillManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w",
			path, err)
	}

	return &m, nil
}
