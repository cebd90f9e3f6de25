// Package permission turns an approved capability set into an enforceable
// runtime object. Construction fails closed: a missing or empty grant is an
// error, never an implicit "allow nothing" state, so an upstream bug cannot
// leave a skill runnable with accidental trust. Every check that gates a
// real host operation emits an audit entry, allowed or denied.
package permission

import (
	"time"

	"github.com/roasbeef/skillet/internal/skill"
)

// Revocation records the withdrawal of a single capability from a live
// grant.
type Revocation struct {
	// Capability is the withdrawn capability.
	Capability skill.Capability

	// RevokedAt is when the withdrawal happened.
	RevokedAt time.Time
}

// Grant is the capability set a human explicitly approved for one installed
// skill, plus the log of later revocations. A grant is created at
// install-time approval, narrowed only by explicit revocation, and never
// silently widened.
type Grant struct {
	// Skill identifies the installed skill, as name@version.
	Skill string

	// Capabilities is the approved set.
	Capabilities skill.CapabilitySet

	// Config carries the approved per-capability configuration, e.g.
	// path prefixes for read-file.
	Config map[skill.Capability]string

	// ApprovedAt is when the grant was approved.
	ApprovedAt time.Time

	// Revocations is the append-only withdrawal log.
	Revocations []Revocation
}

// Effective returns the currently effective capability set: the approved
// set minus everything revoked so far.
func (g *Grant) Effective() skill.CapabilitySet {
	revoked := skill.NewCapabilitySet()
	for _, rev := range g.Revocations {
		revoked.Add(rev.Capability)
	}

	return g.Capabilities.Diff(revoked)
}
