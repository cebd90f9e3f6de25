package skill

import (
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Capability is a single named privileged operation a skill may be granted.
// The set of capabilities is closed: anything outside this enumeration is
// rejected at the boundary rather than passed through.
type Capability string

const (
	// CapReadFile grants read access to files within granted paths.
	CapReadFile Capability = "read-file"

	// CapWriteFile grants write access to files within granted paths.
	CapWriteFile Capability = "write-file"

	// CapHTTPGet grants outbound HTTP GET requests.
	CapHTTPGet Capability = "http-get"

	// CapHTTPPost grants outbound HTTP POST requests.
	CapHTTPPost Capability = "http-post"

	// CapExecCommand grants execution of host commands.
	CapExecCommand Capability = "exec-command"

	// CapReadEnv grants read access to environment variables.
	CapReadEnv Capability = "read-env"

	// CapRecallMemory grants read-only access to the agent memory store.
	CapRecallMemory Capability = "recall-memory"

	// CapGetSecret grants retrieval of named secrets.
	CapGetSecret Capability = "get-secret"
)

// AllCapabilities lists every member of the closed capability enumeration.
var AllCapabilities = []Capability{
	CapReadFile, CapWriteFile, CapHTTPGet, CapHTTPPost,
	CapExecCommand, CapReadEnv, CapRecallMemory, CapGetSecret,
}

// Valid reports whether the capability is a member of the closed set.
func (c Capability) Valid() bool {
	switch c {
	case CapReadFile, CapWriteFile, CapHTTPGet, CapHTTPPost,
		CapExecCommand, CapReadEnv, CapRecallMemory, CapGetSecret:

		return true
	}

	return false
}

// ParseCapability converts a string into a Capability, rejecting anything
// outside the closed set.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability: %q", s)
	}

	return c, nil
}

// CapabilitySet is a deduplicated set of capabilities. Composition always
// produces a new set; existing sets are never mutated in place.
type CapabilitySet = fn.Set[Capability]

// NewCapabilitySet creates a capability set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	return fn.NewSet(caps...)
}

// SortedCapabilities returns the members of a capability set in a stable,
// lexicographic order for display and audit records.
func SortedCapabilities(set CapabilitySet) []Capability {
	caps := set.ToSlice()
	sort.Slice(caps, func(i, j int) bool {
		return caps[i] < caps[j]
	})

	return caps
}
