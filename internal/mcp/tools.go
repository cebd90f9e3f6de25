package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/skill"
)

// RunSkillArgs are the arguments for the run_skill tool.
type RunSkillArgs struct {
	// Name is the skill to run.
	Name string `json:"name" jsonschema:"Name of the installed skill"`

	// Version optionally pins a version; the latest installed version
	// runs otherwise.
	Version string `json:"version,omitempty" jsonschema:"Skill version, latest if omitted"`

	// Input is the invocation payload.
	Input string `json:"input,omitempty" jsonschema:"Input payload passed to the skill"`
}

// RunSkillResult is the result of the run_skill tool.
type RunSkillResult struct {
	InvocationID    string   `json:"invocation_id"`
	Output          string   `json:"output"`
	Success         bool     `json:"success"`
	Error           string   `json:"error,omitempty"`
	FuelConsumed    uint64   `json:"fuel_consumed"`
	MemoryPeakBytes int64    `json:"memory_peak_bytes"`
	DurationMS      int64    `json:"duration_ms"`
	Exercised       []string `json:"exercised,omitempty"`
}

func (s *Server) handleRunSkill(ctx context.Context,
	req *mcp.CallToolRequest,
	args RunSkillArgs) (*mcp.CallToolResult, RunSkillResult, error) {

	result, err := s.svc.Execute(
		ctx, args.Name, args.Version, []byte(args.Input),
	)
	if err != nil {
		return nil, RunSkillResult{}, err
	}

	out := RunSkillResult{
		InvocationID:    result.InvocationID,
		Output:          string(result.Output),
		Success:         result.Err == nil,
		FuelConsumed:    result.FuelConsumed,
		MemoryPeakBytes: result.MemoryPeakBytes,
		DurationMS:      result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	for _, c := range result.Exercised {
		out.Exercised = append(out.Exercised, string(c))
	}

	return nil, out, nil
}

// InspectSkillArgs are the arguments for the inspect_skill tool.
type InspectSkillArgs struct {
	Name    string `json:"name" jsonschema:"Name of the installed skill"`
	Version string `json:"version,omitempty" jsonschema:"Skill version, latest if omitted"`
}

// InspectSkillResult is the result of the inspect_skill tool.
type InspectSkillResult struct {
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Description string              `json:"description,omitempty"`
	Tier        string              `json:"tier"`
	Own         []string            `json:"own_capabilities"`
	Inherited   map[string][]string `json:"inherited_capabilities,omitempty"`
	Effective   []string            `json:"effective_capabilities"`
	Revoked     []string            `json:"revoked_capabilities,omitempty"`
}

func (s *Server) handleInspectSkill(ctx context.Context,
	req *mcp.CallToolRequest,
	args InspectSkillArgs) (*mcp.CallToolResult, InspectSkillResult,
	error) {

	report, err := s.svc.Inspect(ctx, args.Name, args.Version)
	if err != nil {
		return nil, InspectSkillResult{}, err
	}

	out := InspectSkillResult{
		Name:        report.Installed.Name,
		Version:     report.Installed.Version,
		Description: report.Installed.Description,
		Tier:        string(report.Installed.Tier),
		Own:         capStrings(skill.SortedCapabilities(report.Resolution.Own)),
		Effective:   capStrings(report.Effective),
	}

	if len(report.Resolution.Inherited) > 0 {
		out.Inherited = make(map[string][]string)
		for ancestor, set := range report.Resolution.Inherited {
			out.Inherited[ancestor] = capStrings(
				skill.SortedCapabilities(set),
			)
		}
	}
	for _, revocation := range report.Revocations {
		out.Revoked = append(
			out.Revoked, string(revocation.Capability),
		)
	}

	return nil, out, nil
}

// ListSkillsArgs are the arguments for the list_skills tool.
type ListSkillsArgs struct{}

// SkillSummary is one installed skill in a listing.
type SkillSummary struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Tier        string `json:"tier"`
	InstalledAt string `json:"installed_at"`
}

// ListSkillsResult is the result of the list_skills tool.
type ListSkillsResult struct {
	Skills []SkillSummary `json:"skills"`
}

func (s *Server) handleListSkills(ctx context.Context,
	req *mcp.CallToolRequest,
	args ListSkillsArgs) (*mcp.CallToolResult, ListSkillsResult, error) {

	installed, err := s.svc.List(ctx)
	if err != nil {
		return nil, ListSkillsResult{}, err
	}

	var out ListSkillsResult
	for _, row := range installed {
		out.Skills = append(out.Skills, SkillSummary{
			Name:        row.Name,
			Version:     row.Version,
			Description: row.Description,
			Tier:        string(row.Tier),
			InstalledAt: row.InstalledAt.Format(time.RFC3339),
		})
	}

	return nil, out, nil
}

// SearchSkillsArgs are the arguments for the search_skills tool.
type SearchSkillsArgs struct {
	Query string `json:"query" jsonschema:"FTS5 query over skill names and descriptions"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results,default=20"`
}

func (s *Server) handleSearchSkills(ctx context.Context,
	req *mcp.CallToolRequest,
	args SearchSkillsArgs) (*mcp.CallToolResult, ListSkillsResult,
	error) {

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	results, err := s.svc.Search(ctx, args.Query, limit)
	if err != nil {
		return nil, ListSkillsResult{}, err
	}

	var out ListSkillsResult
	for _, row := range results {
		out.Skills = append(out.Skills, SkillSummary{
			Name:        row.Name,
			Version:     row.Version,
			Description: row.Description,
			Tier:        string(row.Tier),
			InstalledAt: row.InstalledAt.Format(time.RFC3339),
		})
	}

	return nil, out, nil
}

// RevokeCapabilityArgs are the arguments for the revoke_capability tool.
type RevokeCapabilityArgs struct {
	Name       string `json:"name" jsonschema:"Name of the installed skill"`
	Version    string `json:"version,omitempty" jsonschema:"Skill version, latest if omitted"`
	Capability string `json:"capability" jsonschema:"Capability to revoke, e.g. http-get"`
}

// RevokeCapabilityResult is the result of the revoke_capability tool.
type RevokeCapabilityResult struct {
	Skill      string `json:"skill"`
	Capability string `json:"capability"`
	Revoked    bool   `json:"revoked"`
}

func (s *Server) handleRevokeCapability(ctx context.Context,
	req *mcp.CallToolRequest,
	args RevokeCapabilityArgs) (*mcp.CallToolResult,
	RevokeCapabilityResult, error) {

	cap, err := skill.ParseCapability(args.Capability)
	if err != nil {
		return nil, RevokeCapabilityResult{}, err
	}

	err = s.svc.Revoke(ctx, args.Name, args.Version, cap)
	if err != nil {
		return nil, RevokeCapabilityResult{}, err
	}

	return nil, RevokeCapabilityResult{
		Skill:      args.Name,
		Capability: args.Capability,
		Revoked:    true,
	}, nil
}

// AuditTrailArgs are the arguments for the audit_trail tool.
type AuditTrailArgs struct {
	InvocationID string `json:"invocation_id,omitempty" jsonschema:"Filter to one invocation"`
	Skill        string `json:"skill,omitempty" jsonschema:"Filter to one skill as name@version"`
	DeniedOnly   bool   `json:"denied_only,omitempty" jsonschema:"Only denied capability checks"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of entries,default=100"`
}

// AuditEntryResult is one audit entry in a trail result.
type AuditEntryResult struct {
	ID           int64  `json:"id"`
	InvocationID string `json:"invocation_id"`
	Skill        string `json:"skill"`
	Tier         string `json:"tier"`
	Kind         string `json:"kind"`
	Capability   string `json:"capability,omitempty"`
	Decision     string `json:"decision,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	FuelConsumed uint64 `json:"fuel_consumed,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// AuditTrailResult is the result of the audit_trail tool.
type AuditTrailResult struct {
	Entries []AuditEntryResult `json:"entries"`
}

func (s *Server) handleAuditTrail(ctx context.Context,
	req *mcp.CallToolRequest,
	args AuditTrailArgs) (*mcp.CallToolResult, AuditTrailResult, error) {

	limit := args.Limit
	if limit <= 0 {
		limit = 100
	}

	entries, err := s.svc.AuditTrail(ctx, db.AuditFilter{
		InvocationID: args.InvocationID,
		Skill:        args.Skill,
		DeniedOnly:   args.DeniedOnly,
		Limit:        limit,
	})
	if err != nil {
		return nil, AuditTrailResult{}, err
	}

	var out AuditTrailResult
	for _, entry := range entries {
		out.Entries = append(out.Entries, AuditEntryResult{
			ID:           entry.ID,
			InvocationID: entry.InvocationID,
			Skill:        entry.Skill,
			Tier:         string(entry.Tier),
			Kind:         string(entry.Kind),
			Capability:   string(entry.Capability),
			Decision:     string(entry.Decision),
			Success:      entry.Success,
			Error:        entry.Error,
			FuelConsumed: entry.FuelConsumed,
			DurationMS:   entry.Duration.Milliseconds(),
			Timestamp: entry.Timestamp.Format(
				time.RFC3339,
			),
		})
	}

	return nil, out, nil
}

// capStrings converts a capability slice to strings for JSON output.
func capStrings(caps []skill.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}

	return out
}
