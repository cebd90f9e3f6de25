// Package resolve builds install plans from skill manifests. It walks the
// declared dependency graph, orders installs so that dependencies precede
// dependents, and rejects cycles, version conflicts on shared dependencies,
// and mutual-exclusion violations before anything is installed.
package resolve

import (
	"fmt"
	"sort"

	"github.com/roasbeef/skillet/internal/skill"
)

// InstallPlan is a valid install order for a dependency closure. Order
// never places a name before one of its dependencies. Conflicts is empty on
// success; resolution is all-or-nothing, so a plan with conflicts is never
// returned to callers.
type InstallPlan struct {
	// Order lists skill names, dependencies before dependents.
	Order []string

	// Conflicts lists detected conflicts. Always empty for a plan
	// returned without error.
	Conflicts []error
}

// visitState tracks DFS progress for cycle detection. A node that is
// on-stack when revisited closes a cycle; a finished node revisited through
// another path is the normal shared-dependency case.
type visitState int

const (
	stateUnvisited visitState = iota
	stateOnStack
	stateDone
)

// Resolve builds an install plan for root against the given universe of
// manifests. The returned order contains root and its full transitive
// dependency closure. Any cycle, version conflict, or mutual exclusion is
// terminal: no partial plan is returned.
func Resolve(root string, universe skill.Universe) (*InstallPlan, error) {
	return ResolveSet([]string{root}, universe)
}

// ResolveSet builds a single install plan covering several roots at once,
// e.g. a batch install request. The combined closure is checked as a whole,
// so conflicts between otherwise-independent roots are still terminal.
func ResolveSet(roots []string, universe skill.Universe) (*InstallPlan,
	error) {

	r := &resolver{
		universe: universe,
		states:   make(map[string]visitState),
	}

	for _, root := range roots {
		if err := r.visit(root); err != nil {
			return nil, err
		}
	}

	if err := r.checkVersionConflicts(); err != nil {
		return nil, err
	}

	if err := r.checkExclusions(); err != nil {
		return nil, err
	}

	return &InstallPlan{Order: r.order}, nil
}

// resolver holds the traversal state for a single Resolve call.
type resolver struct {
	universe skill.Universe

	states map[string]visitState

	// stack is the current DFS path, used to name every node on a
	// detected cycle.
	stack []string

	// order accumulates the post-order traversal, which places each
	// node after all of its dependencies.
	order []string
}

// visit performs the depth-first traversal from name, appending name to the
// order once every dependency has been placed.
func (r *resolver) visit(name string) error {
	switch r.states[name] {
	case stateDone:
		return nil

	case stateOnStack:
		return &CycleError{Path: r.cyclePath(name)}
	}

	manifest, ok := r.universe[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSkill, name)
	}

	r.states[name] = stateOnStack
	r.stack = append(r.stack, name)

	for _, dep := range manifest.Dependencies {
		if err := r.visit(dep.Name); err != nil {
			return err
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	r.states[name] = stateDone
	r.order = append(r.order, name)

	return nil
}

// cyclePath extracts the portion of the DFS stack forming the cycle that
// closes at name, repeating the entry node at the end.
func (r *resolver) cyclePath(name string) []string {
	start := 0
	for i, n := range r.stack {
		if n == name {
			start = i
			break
		}
	}

	path := append([]string{}, r.stack[start:]...)

	return append(path, name)
}

// checkVersionConflicts verifies that for every dependency shared by two
// skills in the closure, the declared ranges admit a common representative
// version. The intersection test is the conservative ladder approximation
// in versions.go.
func (r *resolver) checkVersionConflicts() error {
	// Gather declared ranges per dependency across the closure.
	type declaration struct {
		dependent string
		depRange  string
	}
	declared := make(map[string][]declaration)

	for _, name := range r.order {
		for _, dep := range r.universe[name].Dependencies {
			declared[dep.Name] = append(
				declared[dep.Name], declaration{
					dependent: name,
					depRange:  dep.Range,
				},
			)
		}
	}

	// Deterministic iteration keeps the first-reported conflict stable.
	depNames := make([]string, 0, len(declared))
	for dep := range declared {
		depNames = append(depNames, dep)
	}
	sort.Strings(depNames)

	for _, dep := range depNames {
		decls := declared[dep]
		for i := 0; i < len(decls); i++ {
			for j := i + 1; j < len(decls); j++ {
				a, b := decls[i], decls[j]
				if rangesIntersect(a.depRange, b.depRange) {
					continue
				}

				return &VersionConflictError{
					SkillA:     a.dependent,
					SkillB:     b.dependent,
					Dependency: dep,
					RangeA:     a.depRange,
					RangeB:     b.depRange,
				}
			}
		}
	}

	return nil
}

// checkExclusions enforces conflicts_with declarations bidirectionally
// across the whole closure.
func (r *resolver) checkExclusions() error {
	inPlan := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		inPlan[name] = true
	}

	for _, name := range r.order {
		for _, excluded := range r.universe[name].ConflictsWith {
			if inPlan[excluded] {
				return &ExclusionError{
					SkillA: name,
					SkillB: excluded,
				}
			}
		}
	}

	return nil
}
