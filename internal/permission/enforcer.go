package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/skill"
)

var (
	// ErrNilGrant is returned when an enforcer is constructed without a
	// grant at all.
	ErrNilGrant = errors.New("permission grant is missing")

	// ErrEmptyGrant is returned when the grant approves no capabilities.
	// An empty grant cannot silently mean "allow nothing": it is a bug
	// upstream and must surface.
	ErrEmptyGrant = errors.New("permission grant is empty")

	// ErrAlreadyRevoked is returned when revoking a capability that is
	// no longer in the live set.
	ErrAlreadyRevoked = errors.New("capability not in live grant")
)

// DeniedError reports a capability check that failed.
type DeniedError struct {
	// Capability is the capability that was denied.
	Capability skill.Capability
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("capability denied: %s", e.Capability)
}

// Enforcer holds the live, enforceable view of one skill's grant. The live
// set may be read concurrently by many invocations; revocation is a
// single-writer operation that completes before any subsequent check
// observes it. Invocations that already passed a check are not retroactively
// aborted for that capability.
type Enforcer struct {
	mu sync.RWMutex

	skillID string

	// live is the effective capability set; shrinks on revocation,
	// never grows.
	live skill.CapabilitySet

	config map[skill.Capability]string

	revocations []Revocation

	sink audit.Recorder
}

// NewEnforcer constructs an enforcer from an approved grant. Fails closed:
// nil and empty grants are construction errors.
func NewEnforcer(grant *Grant, sink audit.Recorder) (*Enforcer, error) {
	if grant == nil {
		return nil, ErrNilGrant
	}

	live := grant.Effective()
	if len(live) == 0 {
		return nil, fmt.Errorf("%w: skill %s", ErrEmptyGrant,
			grant.Skill)
	}

	config := make(map[skill.Capability]string, len(grant.Config))
	for cap, cfg := range grant.Config {
		config[cap] = cfg
	}

	return &Enforcer{
		skillID:     grant.Skill,
		live:        live,
		config:      config,
		revocations: append([]Revocation{}, grant.Revocations...),
		sink:        sink,
	}, nil
}

// Revoke withdraws a single capability from the live grant. Other
// capabilities are untouched; a running skill continues with the narrower
// surface on its next privileged call.
func (e *Enforcer) Revoke(cap skill.Capability) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.live.Contains(cap) {
		return fmt.Errorf("%w: %s", ErrAlreadyRevoked, cap)
	}

	e.live.Remove(cap)
	e.revocations = append(e.revocations, Revocation{
		Capability: cap,
		RevokedAt:  time.Now(),
	})

	return nil
}

// Revocations returns a copy of the revocation log.
func (e *Enforcer) Revocations() []Revocation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]Revocation{}, e.revocations...)
}

// allows is the O(1) membership check shared by all sessions.
func (e *Enforcer) allows(cap skill.Capability) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.live.Contains(cap)
}

// configFor returns the approved configuration for a capability, if any.
func (e *Enforcer) configFor(cap skill.Capability) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.config[cap]
}

// Session binds the enforcer to one invocation so that audit entries carry
// the invocation identity. Sessions share the enforcer's live set: a
// revocation is visible to every open session on its next check.
type Session struct {
	enforcer *Enforcer

	invocationID string
	tier         skill.TrustTier

	mu        sync.Mutex
	exercised skill.CapabilitySet
}

// Session creates a per-invocation view of the enforcer.
func (e *Enforcer) Session(invocationID string,
	tier skill.TrustTier) *Session {

	return &Session{
		enforcer:     e,
		invocationID: invocationID,
		tier:         tier,
		exercised:    skill.NewCapabilitySet(),
	}
}

// Check gates one privileged host operation. Allowed and denied outcomes
// both produce an audit entry; a denial returns DeniedError and must never
// be downgraded to a silent no-op by callers.
func (s *Session) Check(ctx context.Context, cap skill.Capability) error {
	allowed := s.enforcer.allows(cap)

	decision := audit.DecisionDenied
	if allowed {
		decision = audit.DecisionAllowed

		s.mu.Lock()
		s.exercised.Add(cap)
		s.mu.Unlock()
	}

	if s.enforcer.sink != nil {
		entry := &audit.Entry{
			InvocationID: s.invocationID,
			Skill:        s.enforcer.skillID,
			Tier:         s.tier,
			Kind:         audit.KindCapabilityCheck,
			Capability:   cap,
			Decision:     decision,
			Success:      allowed,
			Timestamp:    time.Now(),
		}
		if !allowed {
			entry.Error = fmt.Sprintf(
				"capability denied: %s", cap,
			)
		}

		if err := s.enforcer.sink.Record(ctx, entry); err != nil {
			log.WarnS(ctx, "Failed to record audit entry", err,
				"invocation_id", s.invocationID,
				"capability", cap)
		}
	}

	if !allowed {
		return &DeniedError{Capability: cap}
	}

	return nil
}

// Deny records an explicit denial for a capability whose membership check
// passed but whose configured scope was violated, e.g. a write outside the
// granted writable paths. The denial is audited like any other.
func (s *Session) Deny(ctx context.Context, cap skill.Capability,
	reason string) error {

	if s.enforcer.sink != nil {
		entry := &audit.Entry{
			InvocationID: s.invocationID,
			Skill:        s.enforcer.skillID,
			Tier:         s.tier,
			Kind:         audit.KindCapabilityCheck,
			Capability:   cap,
			Decision:     audit.DecisionDenied,
			Success:      false,
			Error:        reason,
			Timestamp:    time.Now(),
		}

		if err := s.enforcer.sink.Record(ctx, entry); err != nil {
			log.WarnS(ctx, "Failed to record audit entry", err,
				"invocation_id", s.invocationID,
				"capability", cap)
		}
	}

	return &DeniedError{Capability: cap}
}

// ConfigFor returns the approved configuration value for a capability.
func (s *Session) ConfigFor(cap skill.Capability) string {
	return s.enforcer.configFor(cap)
}

// Exercised returns the capabilities this invocation actually exercised,
// for the invocation summary audit entry.
func (s *Session) Exercised() []skill.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()

	return skill.SortedCapabilities(s.exercised)
}
