package skills

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/roasbeef/skillet/internal/subproc"
)

// ErrNotExecutable is returned when Execute is called on a prompt-only
// skill that has no compiled module.
var ErrNotExecutable = errors.New("skill has no compiled module")

// InvocationResult is the outcome of one skill invocation, across all
// execution paths.
type InvocationResult struct {
	// InvocationID is the identity of the invocation in the audit trail.
	InvocationID string

	// Output is the skill's output payload.
	Output []byte

	// FuelConsumed, MemoryPeakBytes, and Duration are the resource
	// consumption figures. Zero for prompt-only skills.
	FuelConsumed    uint64
	MemoryPeakBytes int64
	Duration        time.Duration

	// Exercised lists the capabilities actually used.
	Exercised []skill.Capability

	// Err is the terminal error, nil on success.
	Err error
}

// Execute runs an installed skill by name. Dispatch follows the trust
// tier: local skills resolve to their prompt text without any sandbox,
// verified skills run in the in-process wasm engine, and untrusted skills
// run in a separate OS-sandboxed process. Every path ends with an
// invocation summary in the audit trail.
func (s *Service) Execute(ctx context.Context, name, version string,
	input []byte) (*InvocationResult, error) {

	installed, err := s.store.GetInstalled(ctx, name, version)
	if err != nil {
		return nil, err
	}
	manifest, err := installed.Manifest()
	if err != nil {
		return nil, err
	}

	invocationID := uuid.NewString()

	log.InfoS(ctx, "Executing skill",
		"invocation_id", invocationID,
		"skill", installed.Ref(), "tier", installed.Tier)

	var result *InvocationResult
	switch {
	case installed.Tier == skill.TierLocal:
		result = s.executeLocal(invocationID, manifest)

	// Process isolation is decided by one gate, not repeated tier
	// comparisons.
	case subproc.NeedsOSSandbox(installed.Tier):
		result, err = s.executeSandboxed(ctx, invocationID, installed,
			manifest, input)

	case installed.Tier == skill.TierVerified:
		result, err = s.executeWasm(ctx, invocationID, installed,
			manifest, input)

	default:
		return nil, fmt.Errorf("unknown trust tier %q",
			installed.Tier)
	}
	if err != nil {
		// Failing to even launch is still a terminal outcome for
		// this invocation; it must leave a trail entry like any
		// other.
		s.recordInvocation(ctx, invocationID, installed, input,
			&InvocationResult{
				InvocationID: invocationID,
				Err:          err,
			})

		return nil, err
	}

	s.recordInvocation(ctx, invocationID, installed, input, result)

	return result, nil
}

// executeLocal resolves a prompt-only skill. No module, no sandbox, no
// capabilities: the output is the prompt text itself.
func (s *Service) executeLocal(invocationID string,
	manifest *skill.SkillManifest) *InvocationResult {

	return &InvocationResult{
		InvocationID: invocationID,
		Output:       []byte(manifest.Prompt),
	}
}

// executeWasm runs a verified-tier skill in the in-process engine, gated
// by the shared live enforcer.
func (s *Service) executeWasm(ctx context.Context, invocationID string,
	installed *db.InstalledSkill, manifest *skill.SkillManifest,
	input []byte) (*InvocationResult, error) {

	if !manifest.Executable() {
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable,
			installed.Ref())
	}

	enforcer, err := s.enforcerFor(ctx, installed)
	if err != nil {
		return nil, err
	}
	session := enforcer.Session(invocationID, installed.Tier)

	cfg, ok := sandbox.ConfigForTier(installed.Tier)
	if !ok {
		return nil, fmt.Errorf("tier %q has no sandbox "+
			"configuration", installed.Tier)
	}
	cfg = cfg.Narrow(manifest.Limits)

	module, err := os.ReadFile(manifest.ModulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read module for %s: %w",
			installed.Ref(), err)
	}

	res := s.engine.Execute(ctx, sandbox.ExecRequest{
		InvocationID: invocationID,
		Module:       module,
		Input:        input,
		Config:       cfg,
		Session:      session,
	})

	return &InvocationResult{
		InvocationID:    invocationID,
		Output:          res.Output,
		FuelConsumed:    res.FuelConsumed,
		MemoryPeakBytes: res.MemoryPeakBytes,
		Duration:        res.Duration,
		Exercised:       session.Exercised(),
		Err:             res.Err,
	}, nil
}

// executeSandboxed runs an untrusted-tier skill in a separate process
// behind the OS sandbox, then replays the child's audit entries into the
// persistent trail.
func (s *Service) executeSandboxed(ctx context.Context, invocationID string,
	installed *db.InstalledSkill, manifest *skill.SkillManifest,
	input []byte) (*InvocationResult, error) {

	if !manifest.Executable() {
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable,
			installed.Ref())
	}

	grant, err := s.store.LoadGrant(ctx, installed)
	if err != nil {
		return nil, err
	}
	effective := grant.Effective()
	if len(effective) == 0 {
		return nil, fmt.Errorf("%s has no effective capabilities",
			installed.Ref())
	}

	cfg, ok := sandbox.ConfigForTier(installed.Tier)
	if !ok {
		return nil, fmt.Errorf("tier %q has no sandbox "+
			"configuration", installed.Tier)
	}
	cfg = cfg.Narrow(manifest.Limits)

	caps := skill.SortedCapabilities(effective)
	capNames := make([]string, len(caps))
	for i, c := range caps {
		capNames[i] = string(c)
	}
	capConfig := make(map[string]string, len(grant.Config))
	for c, value := range grant.Config {
		capConfig[string(c)] = value
	}

	req := &subproc.Request{
		InvocationID:     invocationID,
		Skill:            installed.Ref(),
		Tier:             string(installed.Tier),
		WasmPath:         manifest.ModulePath,
		Input:            input,
		Capabilities:     capNames,
		CapabilityConfig: capConfig,
		ReadablePaths: splitPaths(
			grant.Config[skill.CapReadFile],
		),
		WritablePaths: splitPaths(
			grant.Config[skill.CapWriteFile],
		),
		AllowNetwork: effective.Contains(skill.CapHTTPGet) ||
			effective.Contains(skill.CapHTTPPost),
		ResourceLimits: subproc.ResourceLimits{
			Fuel:        cfg.Fuel,
			MemoryBytes: cfg.MemoryBytes,
			TimeoutMS:   cfg.Timeout.Milliseconds(),
		},
	}

	resp, err := s.runSandboxed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s in OS sandbox: %w",
			installed.Ref(), err)
	}

	s.replayChildAudit(ctx, invocationID, installed, resp.AuditEntries)

	result := &InvocationResult{
		InvocationID:    invocationID,
		Output:          resp.Output,
		FuelConsumed:    resp.FuelConsumed,
		MemoryPeakBytes: resp.MemoryPeakBytes,
		Duration: time.Duration(resp.DurationMS) *
			time.Millisecond,
		Exercised: exercisedFromAudit(resp.AuditEntries),
	}
	if resp.Error != "" {
		result.Err = errors.New(resp.Error)
	}

	return result, nil
}

// splitPaths expands a comma-separated path config value.
func splitPaths(configured string) []string {
	if configured == "" {
		return nil
	}

	var paths []string
	for _, p := range strings.Split(configured, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}

	return paths
}

// replayChildAudit writes the child's capability-check entries into the
// persistent trail so the boundary crossing leaves no gap.
func (s *Service) replayChildAudit(ctx context.Context, invocationID string,
	installed *db.InstalledSkill, entries []subproc.AuditEntry) {

	for _, wire := range entries {
		entry := &audit.Entry{
			InvocationID: invocationID,
			Skill:        installed.Ref(),
			Tier:         installed.Tier,
			Kind:         audit.EntryKind(wire.Kind),
			Capability:   skill.Capability(wire.Capability),
			Decision:     audit.Decision(wire.Decision),
			Success: wire.Decision ==
				string(audit.DecisionAllowed),
			Error:     wire.Error,
			Timestamp: time.Unix(0, wire.TimestampUnixNS),
		}

		if err := s.recorder.Record(ctx, entry); err != nil {
			log.WarnS(ctx, "Failed to replay child audit entry",
				err, "invocation_id", invocationID)
		}
	}
}

// exercisedFromAudit reconstructs the exercised capability set from the
// child's allowed check entries.
func exercisedFromAudit(entries []subproc.AuditEntry) []skill.Capability {
	set := skill.NewCapabilitySet()
	for _, wire := range entries {
		if wire.Decision != string(audit.DecisionAllowed) {
			continue
		}
		if wire.Kind != string(audit.KindCapabilityCheck) {
			continue
		}

		set.Add(skill.Capability(wire.Capability))
	}

	return skill.SortedCapabilities(set)
}

// recordInvocation writes the per-invocation summary entry. Payload hashes
// stand in for raw content.
func (s *Service) recordInvocation(ctx context.Context, invocationID string,
	installed *db.InstalledSkill, input []byte,
	result *InvocationResult) {

	entry := &audit.Entry{
		InvocationID:    invocationID,
		Skill:           installed.Ref(),
		Tier:            installed.Tier,
		Kind:            audit.KindInvocation,
		Exercised:       result.Exercised,
		InputHash:       audit.HashPayload(input),
		OutputHash:      audit.HashPayload(result.Output),
		FuelConsumed:    result.FuelConsumed,
		MemoryPeakBytes: result.MemoryPeakBytes,
		Duration:        result.Duration,
		Success:         result.Err == nil,
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}

	if err := s.recorder.Record(ctx, entry); err != nil {
		log.ErrorS(ctx, "Failed to record invocation summary", err,
			"invocation_id", invocationID)
	}
}
