package compose

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSkill is returned when a skill or parent named in the
	// inheritance chain has no manifest in the universe.
	ErrUnknownSkill = errors.New("unknown skill")
)

// CycleError reports an inheritance cycle. Path names the nodes along the
// offending chain with the re-entered node repeated at the end.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("inheritance cycle detected: %s",
		strings.Join(e.Path, " -> "))
}

// DepthError reports an inheritance chain deeper than MaxInheritanceDepth,
// measured from the skill itself at depth 0. The error is terminal even
// when the deep ancestor would have granted nothing new.
type DepthError struct {
	// Skill is the skill whose resolution failed.
	Skill string

	// Ancestor is the ancestor that exceeded the bound.
	Ancestor string

	// Depth is the offending depth.
	Depth int
}

// Error implements the error interface.
func (e *DepthError) Error() string {
	return fmt.Sprintf("inheritance depth %d exceeds limit %d: "+
		"%s -> ... -> %s", e.Depth, MaxInheritanceDepth, e.Skill,
		e.Ancestor)
}

// AncestorConflictError reports a conflicts_with declaration violated
// somewhere along the resolved ancestor chain.
type AncestorConflictError struct {
	// SkillA declared the conflict.
	SkillA string

	// SkillB is the excluded skill present in the chain.
	SkillB string
}

// Error implements the error interface.
func (e *AncestorConflictError) Error() string {
	return fmt.Sprintf("inheritance chain contains mutually exclusive "+
		"skills %s and %s", e.SkillA, e.SkillB)
}
