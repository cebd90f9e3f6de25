package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/roasbeef/skillet/internal/skills"
	"github.com/stretchr/testify/require"
)

// testServer creates an MCP server over a fresh migrated database.
func testServer(t *testing.T) *Server {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "skillet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewServer(skills.NewService(store, sandbox.HostServices{}))
}

// TestNewServer verifies that the MCP server can be created without
// panicking. This tests that all tool schemas are valid.
func TestNewServer(t *testing.T) {
	server := testServer(t)
	require.NotNil(t, server)
}

// TestListAndInspectHandlers exercises the read-path handlers directly
// against an installed skill.
func TestListAndInspectHandlers(t *testing.T) {
	ctx := context.Background()
	server := testServer(t)

	m := &skill.SkillManifest{
		Name:         "greeter",
		Version:      "1.0.0",
		Description:  "greets the user",
		Capabilities: []skill.Capability{skill.CapRecallMemory},
		Tier:         skill.TierLocal,
		Prompt:       "Say hello.",
	}
	_, err := server.svc.Install(ctx, m, skills.AutoApprove)
	require.NoError(t, err)

	_, listed, err := server.handleListSkills(ctx, nil, ListSkillsArgs{})
	require.NoError(t, err)
	require.Len(t, listed.Skills, 1)
	require.Equal(t, "greeter", listed.Skills[0].Name)

	_, inspected, err := server.handleInspectSkill(
		ctx, nil, InspectSkillArgs{Name: "greeter"},
	)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", inspected.Version)
	require.Equal(t, []string{"recall-memory"}, inspected.Effective)

	// run_skill on a prompt-only skill returns the prompt.
	_, run, err := server.handleRunSkill(
		ctx, nil, RunSkillArgs{Name: "greeter"},
	)
	require.NoError(t, err)
	require.True(t, run.Success)
	require.Equal(t, "Say hello.", run.Output)

	// And the invocation is visible in the audit trail.
	_, trail, err := server.handleAuditTrail(ctx, nil, AuditTrailArgs{
		InvocationID: run.InvocationID,
	})
	require.NoError(t, err)
	require.Len(t, trail.Entries, 1)
}

// TestRevokeCapabilityHandler revokes through the tool surface and checks
// the narrowed grant.
func TestRevokeCapabilityHandler(t *testing.T) {
	ctx := context.Background()
	server := testServer(t)

	m := &skill.SkillManifest{
		Name:    "fetcher",
		Version: "1.0.0",
		Capabilities: []skill.Capability{
			skill.CapHTTPGet, skill.CapRecallMemory,
		},
		Tier:   skill.TierLocal,
		Prompt: "Fetch things.",
	}
	_, err := server.svc.Install(ctx, m, skills.AutoApprove)
	require.NoError(t, err)

	_, revoked, err := server.handleRevokeCapability(
		ctx, nil, RevokeCapabilityArgs{
			Name:       "fetcher",
			Capability: "http-get",
		},
	)
	require.NoError(t, err)
	require.True(t, revoked.Revoked)

	_, inspected, err := server.handleInspectSkill(
		ctx, nil, InspectSkillArgs{Name: "fetcher"},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"recall-memory"}, inspected.Effective)
	require.Equal(t, []string{"http-get"}, inspected.Revoked)

	// Unknown capability names are rejected at the boundary.
	_, _, err = server.handleRevokeCapability(
		ctx, nil, RevokeCapabilityArgs{
			Name:       "fetcher",
			Capability: "format-disk",
		},
	)
	require.Error(t, err)
}
