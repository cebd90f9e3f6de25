package subproc

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skill"
)

// RunChild is the entry point of the hidden child command. It reads the
// single request from stdin, locks the process down, executes the skill,
// and writes the single response to stdout. A protocol or setup failure
// still produces a well-formed failure response so the parent never has to
// parse a half-written pipe.
func RunChild(ctx context.Context, in io.Reader, out io.Writer) error {
	req, err := ReadRequest(in)
	if err != nil {
		return WriteResponse(out, &Response{Error: err.Error()})
	}
	if err := req.Validate(); err != nil {
		return WriteResponse(out, &Response{Error: err.Error()})
	}

	// Lock the process down before the module bytes are even opened.
	// From here on the child can only see the granted paths.
	if err := selfRestrict(req); err != nil {
		return WriteResponse(out, &Response{
			Error: fmt.Sprintf("failed to apply OS sandbox: %v",
				err),
		})
	}

	return WriteResponse(out, executeChild(ctx, req))
}

// executeChild runs the engine side of the child after OS restrictions are
// in place. Split from RunChild so it can be exercised without restricting
// the calling process.
func executeChild(ctx context.Context, req *Request) *Response {
	tier, err := skill.ParseTrustTier(req.Tier)
	if err != nil {
		return &Response{Error: err.Error()}
	}

	caps := make([]skill.Capability, 0, len(req.Capabilities))
	for _, raw := range req.Capabilities {
		c, err := skill.ParseCapability(raw)
		if err != nil {
			return &Response{Error: err.Error()}
		}
		caps = append(caps, c)
	}

	config := make(map[skill.Capability]string)
	for raw, value := range req.CapabilityConfig {
		c, err := skill.ParseCapability(raw)
		if err != nil {
			return &Response{Error: err.Error()}
		}
		config[c] = value
	}

	// The path grants on the wire are authoritative for this invocation.
	if len(req.ReadablePaths) > 0 {
		config[skill.CapReadFile] = strings.Join(
			req.ReadablePaths, ",",
		)
	}
	if len(req.WritablePaths) > 0 {
		config[skill.CapWriteFile] = strings.Join(
			req.WritablePaths, ",",
		)
	}

	sink := audit.NewMemoryLog()
	enforcer, err := permission.NewEnforcer(&permission.Grant{
		Skill:        req.Skill,
		Capabilities: skill.NewCapabilitySet(caps...),
		Config:       config,
		ApprovedAt:   time.Now(),
	}, sink)
	if err != nil {
		return &Response{Error: err.Error()}
	}

	module, err := os.ReadFile(req.WasmPath)
	if err != nil {
		return &Response{
			Error: fmt.Sprintf("failed to read module: %v", err),
		}
	}

	cfg, ok := sandbox.ConfigForTier(tier)
	if !ok {
		return &Response{
			Error: fmt.Sprintf("tier %v has no sandbox "+
				"configuration", tier),
		}
	}
	cfg = cfg.Narrow(fn.Some(skill.ResourceLimits{
		Fuel:        req.ResourceLimits.Fuel,
		MemoryBytes: req.ResourceLimits.MemoryBytes,
		Timeout: time.Duration(req.ResourceLimits.TimeoutMS) *
			time.Millisecond,
	}))

	// Network-backed host services are only wired when the grant allows
	// them; without the wire the guest gets a host error even if it
	// somehow passes the capability check.
	services := sandbox.HostServices{}
	if req.AllowNetwork {
		services = sandbox.DefaultHostServices()
	}

	engine := sandbox.NewEngine(services)
	res := engine.Execute(ctx, sandbox.ExecRequest{
		InvocationID: req.InvocationID,
		Module:       module,
		Input:        req.Input,
		Config:       cfg,
		Session:      enforcer.Session(req.InvocationID, tier),
	})

	resp := &Response{
		Output:          res.Output,
		Success:         res.State == sandbox.StateCompleted,
		FuelConsumed:    res.FuelConsumed,
		MemoryPeakBytes: res.MemoryPeakBytes,
		DurationMS:      res.Duration.Milliseconds(),
		AuditEntries:    wireAuditEntries(sink.Entries()),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	return resp
}

// wireAuditEntries converts the child's in-memory audit trail to its wire
// form for replay into the parent's persistent store.
func wireAuditEntries(entries []*audit.Entry) []AuditEntry {
	out := make([]AuditEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, AuditEntry{
			Kind:            string(entry.Kind),
			Capability:      string(entry.Capability),
			Decision:        string(entry.Decision),
			Error:           entry.Error,
			TimestampUnixNS: entry.Timestamp.UnixNano(),
		})
	}

	return out
}
