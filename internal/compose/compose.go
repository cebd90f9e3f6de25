// Package compose resolves a skill's effective capability set across its
// inheritance graph. Composition is additive-only: a child's combined set is
// always the union of its own declared capabilities and every ancestor's,
// never a subtraction. Depth is bounded, diamonds are legal, and cycles are
// terminal.
package compose

import (
	"fmt"
	"sort"

	"github.com/roasbeef/skillet/internal/skill"
)

// MaxInheritanceDepth is the maximum ancestor depth, measured from the
// skill itself at depth 0. Exceeding it is a terminal error, never a silent
// truncation.
const MaxInheritanceDepth = 3

// Resolution is the outcome of inheritance resolution for one skill: the
// own/inherited/combined capability breakdown plus the merged capability
// configuration.
type Resolution struct {
	// Skill is the skill the resolution was computed for.
	Skill string

	// Own is the skill's own declared capability set.
	Own skill.CapabilitySet

	// Inherited maps each ancestor to that ancestor's own declared set.
	Inherited map[string]skill.CapabilitySet

	// Combined is the union of Own and every ancestor's set.
	Combined skill.CapabilitySet

	// Config is the merged per-capability configuration. When two
	// ancestors configure the same capability, the ancestor visited last
	// in declaration order wins; the skill's own configuration wins over
	// any ancestor's.
	Config map[skill.Capability]string

	// VisitOrder records ancestors in the order they were visited, which
	// is also the configuration tie-break order.
	VisitOrder []string
}

// Ancestors returns the ancestor names in sorted order for stable display.
func (r *Resolution) Ancestors() []string {
	names := make([]string, 0, len(r.Inherited))
	for name := range r.Inherited {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Breakdown renders the own/inherited/combined capability split for
// operator tooling. Read path only; no side effects.
func (r *Resolution) Breakdown() string {
	out := fmt.Sprintf("skill %s\n  own: %v\n", r.Skill,
		skill.SortedCapabilities(r.Own))

	for _, ancestor := range r.Ancestors() {
		out += fmt.Sprintf("  inherited from %s: %v\n", ancestor,
			skill.SortedCapabilities(r.Inherited[ancestor]))
	}

	out += fmt.Sprintf("  combined: %v\n",
		skill.SortedCapabilities(r.Combined))

	return out
}

// ResolveInheritance walks the parent chain of the named skill and produces
// its resolution. The visited set tracks the current recursion stack only,
// so two parents sharing a grandparent (a diamond) resolve cleanly while a
// genuine cycle is terminal.
func ResolveInheritance(name string,
	universe skill.Universe) (*Resolution, error) {

	manifest, ok := universe[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSkill, name)
	}

	res := &Resolution{
		Skill:     name,
		Own:       manifest.OwnCapabilities(),
		Inherited: make(map[string]skill.CapabilitySet),
		Combined:  manifest.OwnCapabilities(),
		Config:    make(map[skill.Capability]string),
	}

	c := &composer{
		universe: universe,
		onStack:  map[string]bool{name: true},
		res:      res,
	}

	for _, parent := range manifest.Parents {
		if err := c.visit(parent, 1); err != nil {
			return nil, err
		}
	}

	// The skill's own configuration always wins over inherited values.
	for cap, cfg := range manifest.CapabilityConfig {
		res.Config[cap] = cfg
	}

	if err := checkAncestorConflicts(res, universe); err != nil {
		return nil, err
	}

	return res, nil
}

// composer holds traversal state for one ResolveInheritance call.
type composer struct {
	universe skill.Universe

	// onStack marks nodes on the current recursion stack. Entries are
	// removed when a node's subtree finishes, so only true back-edges
	// are reported as cycles.
	onStack map[string]bool

	// stack mirrors onStack in order, for cycle path reporting.
	stack []string

	res *Resolution
}

// visit accumulates capabilities from ancestor and its own parents. Depth
// counts from the resolved skill at 0.
func (c *composer) visit(ancestor string, depth int) error {
	if depth > MaxInheritanceDepth {
		return &DepthError{
			Skill:    c.res.Skill,
			Ancestor: ancestor,
			Depth:    depth,
		}
	}

	if c.onStack[ancestor] {
		return &CycleError{
			Path: append(append([]string{c.res.Skill}, c.stack...),
				ancestor),
		}
	}

	manifest, ok := c.universe[ancestor]
	if !ok {
		return fmt.Errorf("%w: parent %q", ErrUnknownSkill, ancestor)
	}

	c.onStack[ancestor] = true
	c.stack = append(c.stack, ancestor)
	defer func() {
		delete(c.onStack, ancestor)
		c.stack = c.stack[:len(c.stack)-1]
	}()

	// Grandparents first, so that a parent's own configuration overrides
	// whatever its ancestors contributed.
	for _, parent := range manifest.Parents {
		if err := c.visit(parent, depth+1); err != nil {
			return err
		}
	}

	own := manifest.OwnCapabilities()
	c.res.Inherited[ancestor] = own
	c.res.Combined = c.res.Combined.Union(own)
	c.res.VisitOrder = append(c.res.VisitOrder, ancestor)

	// Later-visited ancestors overwrite earlier configuration for the
	// same capability.
	for cap, cfg := range manifest.CapabilityConfig {
		c.res.Config[cap] = cfg
	}

	return nil
}

// checkAncestorConflicts enforces conflicts_with transitively across the
// whole resolved chain, not just direct parents.
func checkAncestorConflicts(res *Resolution,
	universe skill.Universe) error {

	chain := append([]string{res.Skill}, res.VisitOrder...)
	inChain := make(map[string]bool, len(chain))
	for _, name := range chain {
		inChain[name] = true
	}

	for _, name := range chain {
		for _, excluded := range universe[name].ConflictsWith {
			if inChain[excluded] {
				return &AncestorConflictError{
					SkillA: name,
					SkillB: excluded,
				}
			}
		}
	}

	return nil
}
