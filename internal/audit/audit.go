// Package audit provides the append-only audit trail for skill execution.
// Entries are self-contained and written once per capability check and once
// per invocation; normal operation never updates or deletes them. Payload
// hashes are recorded instead of raw content so the trail stays useful
// without leaking skill inputs or outputs.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/roasbeef/skillet/internal/skill"
)

// EntryKind distinguishes the two granularities of audit entries.
type EntryKind string

const (
	// KindCapabilityCheck is one permission check gating a host
	// operation, allowed or denied.
	KindCapabilityCheck EntryKind = "capability-check"

	// KindInvocation is the summary entry written once per skill
	// invocation, success or failure.
	KindInvocation EntryKind = "invocation"
)

// Decision is the outcome of a capability check.
type Decision string

const (
	// DecisionAllowed marks a check that passed.
	DecisionAllowed Decision = "allowed"

	// DecisionDenied marks a check that was refused.
	DecisionDenied Decision = "denied"
)

// Entry is a single audit record. Append-only: created once, never
// mutated.
type Entry struct {
	// ID is assigned by the persistent store; zero until recorded.
	ID int64

	// InvocationID ties the entry to one skill invocation.
	InvocationID string

	// Skill identifies the skill, as name@version.
	Skill string

	// Tier is the trust tier the invocation ran under.
	Tier skill.TrustTier

	// Kind is the entry granularity.
	Kind EntryKind

	// Capability is the capability exercised by a check entry.
	Capability skill.Capability

	// Decision is the check outcome for check entries.
	Decision Decision

	// Exercised is the capability set actually exercised during the
	// invocation, for invocation entries.
	Exercised []skill.Capability

	// InputHash and OutputHash are SHA-256 hex digests of the invocation
	// payloads. Raw content is never recorded.
	InputHash  string
	OutputHash string

	// FuelConsumed, MemoryPeakBytes, and Duration are the resource
	// consumption figures for invocation entries.
	FuelConsumed    uint64
	MemoryPeakBytes int64
	Duration        time.Duration

	// Success reports whether the invocation completed.
	Success bool

	// Error carries the error detail for failed entries.
	Error string

	// Timestamp is when the entry was created.
	Timestamp time.Time
}

// Recorder accepts audit entries. Implementations must be safe for
// concurrent writers; each entry is self-contained by construction.
type Recorder interface {
	// Record appends one entry to the trail.
	Record(ctx context.Context, entry *Entry) error
}

// HashPayload returns the SHA-256 hex digest of a payload, or the empty
// string for an empty payload.
func HashPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}

	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}
