package resolve

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSkill is returned when a name in the dependency closure
	// has no manifest in the universe.
	ErrUnknownSkill = errors.New("unknown skill")
)

// CycleError reports a dependency cycle. Path names every node on the
// offending cycle, in traversal order, with the entry node repeated at the
// end.
type CycleError struct {
	// Path is the full cycle, e.g. [a, b, c, a].
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s",
		strings.Join(e.Path, " -> "))
}

// VersionConflictError reports two skills whose declared ranges for a shared
// dependency cannot both be satisfied.
type VersionConflictError struct {
	// SkillA and SkillB are the two dependents.
	SkillA string
	SkillB string

	// Dependency is the shared dependency name.
	Dependency string

	// RangeA and RangeB are the declared ranges, as written.
	RangeA string
	RangeB string
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q: %s requires %s, "+
		"%s requires %s", e.Dependency, e.SkillA, e.RangeA,
		e.SkillB, e.RangeB)
}

// ExclusionError reports a mutual-exclusion violation. The declaration is
// honored bidirectionally: if A declares a conflict with B, the pair is
// rejected even when B never declared the reverse.
type ExclusionError struct {
	// SkillA is the skill that declared the conflict.
	SkillA string

	// SkillB is the excluded skill.
	SkillB string
}

// Error implements the error interface.
func (e *ExclusionError) Error() string {
	return fmt.Sprintf("skills %s and %s are mutually exclusive",
		e.SkillA, e.SkillB)
}
