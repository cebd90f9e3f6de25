// Package subproc runs untrusted skill invocations in a separate OS
// process so that a wasm engine escape still lands inside an OS-level
// sandbox. The parent re-executes its own binary with a hidden child
// command and speaks a line-oriented JSON protocol over the child's
// stdin/stdout; the child applies platform restrictions to itself before
// any skill bytes are touched.
package subproc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roasbeef/skillet/internal/skill"
)

// ChildCommand is the hidden subcommand the parent re-executes itself
// with. It is not part of the user-facing CLI surface.
const ChildCommand = "sandbox-child"

// ErrNoOSSandbox is returned on platforms without an OS-level sandbox
// backend. Untrusted skills are refused outright rather than run with
// wasm-only isolation.
var ErrNoOSSandbox = errors.New(
	"no OS sandbox backend available on this platform",
)

// ResourceLimits is the wire form of the execution budgets handed to the
// child. The child narrows its tier budgets with these; it can never
// widen them.
type ResourceLimits struct {
	Fuel        uint64 `json:"fuel"`
	MemoryBytes int64  `json:"memory_bytes"`
	TimeoutMS   int64  `json:"timeout_ms"`
}

// Request is the parent-to-child execution request. The filesystem and
// network fields double as the OS sandbox policy: the child's restrictions
// are derived from them before execution starts.
type Request struct {
	// InvocationID ties the child's audit entries back to the parent's
	// invocation record.
	InvocationID string `json:"invocation_id"`

	// Skill identifies the skill as name@version.
	Skill string `json:"skill"`

	// Tier is the trust tier, as its string form.
	Tier string `json:"tier"`

	// WasmPath is the path of the compiled module to execute. Bytes are
	// not shipped over the pipe; the path is granted read access in the
	// child's sandbox instead.
	WasmPath string `json:"wasm_path"`

	// Input is the invocation payload.
	Input []byte `json:"input,omitempty"`

	// Capabilities is the approved capability set, as strings.
	Capabilities []string `json:"capabilities"`

	// CapabilityConfig carries per-capability configuration.
	CapabilityConfig map[string]string `json:"capability_config,omitempty"`

	// ReadablePaths and WritablePaths are the filesystem prefixes the
	// invocation may touch. Empty means no filesystem access of that
	// kind.
	ReadablePaths []string `json:"readable_paths"`
	WritablePaths []string `json:"writable_paths"`

	// AllowNetwork reports whether outbound network access is granted.
	AllowNetwork bool `json:"allow_network"`

	// ResourceLimits are the already-narrowed execution budgets.
	ResourceLimits ResourceLimits `json:"resource_limits"`
}

// Validate checks the request is complete enough to execute. Fails closed:
// a request without capabilities or a tier cannot run at all.
func (r *Request) Validate() error {
	if r.WasmPath == "" {
		return errors.New("request is missing wasm_path")
	}
	if r.InvocationID == "" {
		return errors.New("request is missing invocation_id")
	}
	if len(r.Capabilities) == 0 {
		return errors.New("request grants no capabilities")
	}

	if _, err := skill.ParseTrustTier(r.Tier); err != nil {
		return fmt.Errorf("invalid tier in request: %w", err)
	}
	for _, c := range r.Capabilities {
		if _, err := skill.ParseCapability(c); err != nil {
			return fmt.Errorf("invalid capability in "+
				"request: %w", err)
		}
	}

	return nil
}

// AuditEntry is the wire form of a capability-check audit record produced
// inside the child. The parent replays these into its own audit store so
// the trail stays complete across the process boundary.
type AuditEntry struct {
	Kind            string `json:"kind"`
	Capability      string `json:"capability"`
	Decision        string `json:"decision"`
	Error           string `json:"error,omitempty"`
	TimestampUnixNS int64  `json:"timestamp_unix_ns"`
}

// Response is the child-to-parent result. DurationMS is overwritten by the
// parent with its own wall-clock measurement, so a compromised child
// cannot under-report how long it ran.
type Response struct {
	Output          []byte       `json:"output,omitempty"`
	Success         bool         `json:"success"`
	FuelConsumed    uint64       `json:"fuel_consumed"`
	MemoryPeakBytes int64        `json:"memory_peak_bytes"`
	DurationMS      int64        `json:"duration_ms"`
	Error           string       `json:"error,omitempty"`
	AuditEntries    []AuditEntry `json:"audit_entries,omitempty"`
}

// WriteRequest encodes a request onto the child's stdin.
func WriteRequest(w io.Writer, req *Request) error {
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode sandbox request: %w", err)
	}

	return nil
}

// ReadRequest decodes the single request from the child's stdin.
func ReadRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode sandbox "+
			"request: %w", err)
	}

	return &req, nil
}

// WriteResponse encodes a response onto the child's stdout.
func WriteResponse(w io.Writer, resp *Response) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode sandbox response: %w", err)
	}

	return nil
}

// ReadResponse decodes the single response from the child's stdout.
func ReadResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode sandbox "+
			"response: %w", err)
	}

	return &resp, nil
}

// NeedsOSSandbox reports whether a tier requires process-level isolation
// on top of the wasm sandbox.
func NeedsOSSandbox(tier skill.TrustTier) bool {
	return tier == skill.TierUntrusted
}

// IsChildInvocation reports whether the given os.Args describe a re-exec
// as the hidden sandbox child. Every binary that can act as a sandbox
// parent must dispatch on this before any of its own argument parsing,
// since the parent re-executes whatever binary it happens to be.
func IsChildInvocation(args []string) bool {
	return len(args) > 1 && args[1] == ChildCommand
}
