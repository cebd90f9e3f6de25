package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/stretchr/testify/require"
)

// testStore opens a fresh migrated database in a temp directory.
func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "skillet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testManifest(name, version string) *skill.SkillManifest {
	return &skill.SkillManifest{
		Name:         name,
		Version:      version,
		Description:  "summarizes web pages",
		Capabilities: []skill.Capability{skill.CapHTTPGet},
		Tier:         skill.TierUntrusted,
		ModulePath:   "/srv/skills/" + name + ".wasm",
	}
}

// TestInstallAndLoadGrant round-trips a skill with its grant and checks
// revocations shrink the effective set without touching grant rows.
func TestInstallAndLoadGrant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)

	manifest := testManifest("web-summarizer", "1.2.0")
	grant := &permission.Grant{
		Skill: "web-summarizer@1.2.0",
		Capabilities: skill.NewCapabilitySet(
			skill.CapHTTPGet, skill.CapReadFile,
		),
		Config: map[skill.Capability]string{
			skill.CapReadFile: "/srv/data",
		},
		ApprovedAt: time.Now(),
	}

	_, err := store.InstallSkill(ctx, manifest, grant)
	require.NoError(t, err)

	installed, err := store.GetInstalled(ctx, "web-summarizer", "1.2.0")
	require.NoError(t, err)
	require.Equal(t, "web-summarizer@1.2.0", installed.Ref())
	require.Equal(t, skill.TierUntrusted, installed.Tier)

	decoded, err := installed.Manifest()
	require.NoError(t, err)
	require.Equal(t, manifest.Name, decoded.Name)
	require.Equal(t, manifest.Capabilities, decoded.Capabilities)

	loaded, err := store.LoadGrant(ctx, installed)
	require.NoError(t, err)
	require.True(t, loaded.Effective().Contains(skill.CapHTTPGet))
	require.True(t, loaded.Effective().Contains(skill.CapReadFile))
	require.Equal(t, "/srv/data", loaded.Config[skill.CapReadFile])

	// Revoke one capability; the effective set shrinks, the grant row
	// stays.
	require.NoError(t, store.RevokeCapability(
		ctx, installed, skill.CapReadFile,
	))

	loaded, err = store.LoadGrant(ctx, installed)
	require.NoError(t, err)
	require.True(t, loaded.Effective().Contains(skill.CapHTTPGet))
	require.False(t, loaded.Effective().Contains(skill.CapReadFile))
	require.Len(t, loaded.Revocations, 1)
}

// TestInstallDuplicateVersion verifies the (name, version) uniqueness
// constraint surfaces as a constraint violation.
func TestInstallDuplicateVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)

	_, err := store.InstallSkill(ctx, testManifest("dup", "1.0.0"), nil)
	require.NoError(t, err)

	_, err = store.InstallSkill(ctx, testManifest("dup", "1.0.0"), nil)
	require.Error(t, err)
}

// TestGetLatestSkill checks that an empty version selects the newest
// install.
func TestGetLatestSkill(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)

	_, err := store.InstallSkill(ctx, testManifest("multi", "1.0.0"), nil)
	require.NoError(t, err)
	_, err = store.InstallSkill(ctx, testManifest("multi", "1.1.0"), nil)
	require.NoError(t, err)

	installed, err := store.GetInstalled(ctx, "multi", "")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", installed.Version)

	_, err = store.GetInstalled(ctx, "absent", "")
	require.ErrorIs(t, err, ErrSkillNotFound)
}

// TestRemoveSkill verifies removal cascades to grants but not the audit
// trail.
func TestRemoveSkill(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)

	grant := &permission.Grant{
		Skill:        "gone@1.0.0",
		Capabilities: skill.NewCapabilitySet(skill.CapHTTPGet),
		ApprovedAt:   time.Now(),
	}
	id, err := store.InstallSkill(ctx, testManifest("gone", "1.0.0"), grant)
	require.NoError(t, err)

	sink := NewAuditStore(store)
	require.NoError(t, sink.Record(ctx, &audit.Entry{
		InvocationID: "inv-1",
		Skill:        "gone@1.0.0",
		Tier:         skill.TierUntrusted,
		Kind:         audit.KindInvocation,
		Success:      true,
	}))

	require.NoError(t, store.RemoveSkill(ctx, "gone", "1.0.0"))
	require.ErrorIs(t,
		store.RemoveSkill(ctx, "gone", "1.0.0"), ErrSkillNotFound)

	grants, err := store.Queries().ListGrants(ctx, id)
	require.NoError(t, err)
	require.Empty(t, grants)

	trail, err := sink.Trail(ctx, AuditFilter{Skill: "gone@1.0.0"})
	require.NoError(t, err)
	require.Len(t, trail, 1)
}

// TestAuditTrailFilters round-trips entries through the persistent
// recorder and exercises each filter dimension.
func TestAuditTrailFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)
	sink := NewAuditStore(store)

	entries := []*audit.Entry{
		{
			InvocationID: "inv-1",
			Skill:        "a@1.0.0",
			Tier:         skill.TierUntrusted,
			Kind:         audit.KindCapabilityCheck,
			Capability:   skill.CapHTTPGet,
			Decision:     audit.DecisionAllowed,
			Success:      true,
		},
		{
			InvocationID: "inv-1",
			Skill:        "a@1.0.0",
			Tier:         skill.TierUntrusted,
			Kind:         audit.KindCapabilityCheck,
			Capability:   skill.CapWriteFile,
			Decision:     audit.DecisionDenied,
			Error:        "capability denied: write-file",
		},
		{
			InvocationID: "inv-1",
			Skill:        "a@1.0.0",
			Tier:         skill.TierUntrusted,
			Kind:         audit.KindInvocation,
			Exercised:    []skill.Capability{skill.CapHTTPGet},
			FuelConsumed: 12345,
			Duration:     80 * time.Millisecond,
			Success:      true,
		},
		{
			InvocationID: "inv-2",
			Skill:        "b@2.0.0",
			Tier:         skill.TierVerified,
			Kind:         audit.KindInvocation,
			Success:      false,
			Error:        "fuel budget exhausted",
		},
	}
	for _, entry := range entries {
		require.NoError(t, sink.Record(ctx, entry))
		require.NotZero(t, entry.ID)
	}

	byInvocation, err := sink.Trail(ctx, AuditFilter{
		InvocationID: "inv-1",
	})
	require.NoError(t, err)
	require.Len(t, byInvocation, 3)

	denied, err := sink.Trail(ctx, AuditFilter{DeniedOnly: true})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	require.Equal(t, skill.CapWriteFile, denied[0].Capability)

	summaries, err := sink.Trail(ctx, AuditFilter{
		Kind: audit.KindInvocation,
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t,
		[]skill.Capability{skill.CapHTTPGet}, summaries[0].Exercised)
	require.Equal(t, uint64(12345), summaries[0].FuelConsumed)
	require.Equal(t, 80*time.Millisecond, summaries[0].Duration)
}

// TestSearchSkills exercises the FTS index over names and descriptions.
func TestSearchSkills(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testStore(t)

	web := testManifest("web-summarizer", "1.0.0")
	web.Description = "summarizes web pages into bullet points"
	_, err := store.InstallSkill(ctx, web, nil)
	require.NoError(t, err)

	csv := testManifest("csv-digest", "1.0.0")
	csv.Description = "aggregates csv files"
	_, err = store.InstallSkill(ctx, csv, nil)
	require.NoError(t, err)

	results, err := store.SearchSkills(ctx, "summarizes", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "web-summarizer", results[0].Name)

	none, err := store.SearchSkills(ctx, "spreadsheet", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}
