package skills

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/compose"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/roasbeef/skillet/internal/subproc"
	"github.com/stretchr/testify/require"
)

// trivialModule is a hand-assembled wasm binary exporting run() -> i32
// that immediately returns 0.
var trivialModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x00, 0x0b,
}

func testService(t *testing.T) *Service {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "skillet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewService(store, sandbox.HostServices{})
}

func writeModule(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "skill.wasm")
	require.NoError(t, os.WriteFile(path, trivialModule, 0o600))

	return path
}

// TestInstallComposesInheritedCapabilities verifies the approved grant
// covers the combined surface, not just the skill's own declarations.
func TestInstallComposesInheritedCapabilities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	parent := &skill.SkillManifest{
		Name:         "web-base",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapHTTPGet},
		CapabilityConfig: map[skill.Capability]string{
			skill.CapHTTPGet: "example.com",
		},
		Tier:       skill.TierUntrusted,
		ModulePath: writeModule(t),
	}
	_, err := svc.Install(ctx, parent, AutoApprove)
	require.NoError(t, err)

	child := &skill.SkillManifest{
		Name:         "web-summarizer",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapRecallMemory},
		Parents:      []string{"web-base"},
		Tier:         skill.TierUntrusted,
		ModulePath:   writeModule(t),
	}

	var seen *compose.Resolution
	report, err := svc.Install(ctx, child,
		func(_ context.Context, _ *skill.SkillManifest,
			res *compose.Resolution) (bool, error) {

			seen = res
			return true, nil
		})
	require.NoError(t, err)

	// The approver saw the combined surface.
	require.True(t, seen.Combined.Contains(skill.CapHTTPGet))
	require.True(t, seen.Combined.Contains(skill.CapRecallMemory))
	require.Equal(t, "example.com", seen.Config[skill.CapHTTPGet])
	require.Equal(t, []string{"web-summarizer"}, report.Plan.Order)

	// The persisted grant matches it.
	inspect, err := svc.Inspect(ctx, "web-summarizer", "")
	require.NoError(t, err)
	require.Equal(t, []skill.Capability{
		skill.CapHTTPGet, skill.CapRecallMemory,
	}, inspect.Effective)
}

// TestInstallDeclined verifies a declined approval installs nothing.
func TestInstallDeclined(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:         "nope",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapGetSecret},
		Tier:         skill.TierUntrusted,
		ModulePath:   writeModule(t),
	}

	_, err := svc.Install(ctx, m,
		func(context.Context, *skill.SkillManifest,
			*compose.Resolution) (bool, error) {

			return false, nil
		})
	require.ErrorIs(t, err, ErrInstallDeclined)

	_, err = svc.Inspect(ctx, "nope", "")
	require.ErrorIs(t, err, db.ErrSkillNotFound)
}

// TestExecuteLocalPrompt verifies prompt-only skills resolve to their
// prompt without entering any sandbox.
func TestExecuteLocalPrompt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:    "greeter",
		Version: "1.0.0",
		Tier:    skill.TierLocal,
		Prompt:  "Greet the user warmly.",
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	result, err := svc.Execute(ctx, "greeter", "", nil)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Equal(t, []byte("Greet the user warmly."), result.Output)
	require.Zero(t, result.FuelConsumed)

	// The invocation still left a summary in the trail.
	trail, err := svc.AuditTrail(ctx, db.AuditFilter{
		InvocationID: result.InvocationID,
	})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, audit.KindInvocation, trail[0].Kind)
	require.True(t, trail[0].Success)
}

// TestExecuteVerifiedInProcess runs a verified-tier skill through the real
// wasm engine.
func TestExecuteVerifiedInProcess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:         "trivial",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapRecallMemory},
		Tier:         skill.TierVerified,
		ModulePath:   writeModule(t),
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	result, err := svc.Execute(ctx, "trivial", "1.0.0", []byte("in"))
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Greater(t, result.FuelConsumed, uint64(0))

	trail, err := svc.AuditTrail(ctx, db.AuditFilter{
		InvocationID: result.InvocationID,
		Kind:         audit.KindInvocation,
	})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, audit.HashPayload([]byte("in")),
		trail[0].InputHash)
}

// TestExecuteUntrustedGoesThroughChild verifies the untrusted path builds
// a complete child request from the grant and replays the child's audit
// entries into the persistent trail.
func TestExecuteUntrustedGoesThroughChild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	modulePath := writeModule(t)
	m := &skill.SkillManifest{
		Name:    "fetcher",
		Version: "2.0.0",
		Capabilities: []skill.Capability{
			skill.CapHTTPGet, skill.CapReadFile,
		},
		CapabilityConfig: map[skill.Capability]string{
			skill.CapReadFile: "/srv/data,/srv/cache",
		},
		Tier:       skill.TierUntrusted,
		ModulePath: modulePath,
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	var captured *subproc.Request
	svc.runSandboxed = func(_ context.Context,
		req *subproc.Request) (*subproc.Response, error) {

		captured = req
		return &subproc.Response{
			Output:       []byte("fetched"),
			Success:      true,
			FuelConsumed: 777,
			DurationMS:   12,
			AuditEntries: []subproc.AuditEntry{{
				Kind: string(
					audit.KindCapabilityCheck,
				),
				Capability: string(skill.CapHTTPGet),
				Decision: string(
					audit.DecisionAllowed,
				),
				TimestampUnixNS: time.Now().UnixNano(),
			}},
		}, nil
	}

	result, err := svc.Execute(ctx, "fetcher", "", []byte("query"))
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Equal(t, []byte("fetched"), result.Output)
	require.Equal(t,
		[]skill.Capability{skill.CapHTTPGet}, result.Exercised)

	// The child request carried the grant-derived sandbox policy.
	require.NotNil(t, captured)
	require.Equal(t, modulePath, captured.WasmPath)
	require.True(t, captured.AllowNetwork)
	require.Equal(t,
		[]string{"/srv/data", "/srv/cache"}, captured.ReadablePaths)
	require.Empty(t, captured.WritablePaths)
	require.Equal(t, string(skill.TierUntrusted), captured.Tier)
	require.NotZero(t, captured.ResourceLimits.Fuel)

	// Child audit entries plus the summary landed in the trail.
	trail, err := svc.AuditTrail(ctx, db.AuditFilter{
		InvocationID: result.InvocationID,
	})
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, audit.KindCapabilityCheck, trail[0].Kind)
	require.Equal(t, audit.KindInvocation, trail[1].Kind)
}

// TestExecuteLaunchFailureAudited verifies that an invocation that never
// reaches the sandbox still lands in the trail as a failed summary.
func TestExecuteLaunchFailureAudited(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	modulePath := writeModule(t)
	m := &skill.SkillManifest{
		Name:         "broken",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapRecallMemory},
		Tier:         skill.TierVerified,
		ModulePath:   modulePath,
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	// The module vanishes between install and execution.
	require.NoError(t, os.Remove(modulePath))

	_, err = svc.Execute(ctx, "broken", "", nil)
	require.Error(t, err)

	trail, err := svc.AuditTrail(ctx, db.AuditFilter{
		Skill: "broken@1.0.0",
		Kind:  audit.KindInvocation,
	})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.False(t, trail[0].Success)
	require.Contains(t, trail[0].Error, "failed to read module")
}

// TestExecuteChildSpawnFailureAudited covers the untrusted path: a child
// process that cannot even be launched still yields a failed invocation
// summary.
func TestExecuteChildSpawnFailureAudited(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:         "doomed",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapRecallMemory},
		Tier:         skill.TierUntrusted,
		ModulePath:   writeModule(t),
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	svc.runSandboxed = func(context.Context,
		*subproc.Request) (*subproc.Response, error) {

		return nil, errors.New("no such binary")
	}

	_, err = svc.Execute(ctx, "doomed", "", []byte("x"))
	require.Error(t, err)

	trail, err := svc.AuditTrail(ctx, db.AuditFilter{
		Skill: "doomed@1.0.0",
		Kind:  audit.KindInvocation,
	})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.False(t, trail[0].Success)
	require.Contains(t, trail[0].Error, "OS sandbox")
}

// TestRevokeReachesLiveEnforcer verifies a revocation lands both in the
// store and in the enforcer shared by in-flight invocations.
func TestRevokeReachesLiveEnforcer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:    "revocable",
		Version: "1.0.0",
		Capabilities: []skill.Capability{
			skill.CapHTTPGet, skill.CapRecallMemory,
		},
		Tier:       skill.TierVerified,
		ModulePath: writeModule(t),
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	// Force the live enforcer into existence, as a running invocation
	// would.
	installed, err := svc.store.GetInstalled(ctx, "revocable", "")
	require.NoError(t, err)
	enforcer, err := svc.enforcerFor(ctx, installed)
	require.NoError(t, err)

	session := enforcer.Session("inv-live", skill.TierVerified)
	require.NoError(t, session.Check(ctx, skill.CapHTTPGet))

	require.NoError(t, svc.Revoke(
		ctx, "revocable", "1.0.0", skill.CapHTTPGet,
	))

	// The already-open session sees the narrower surface.
	require.Error(t, session.Check(ctx, skill.CapHTTPGet))
	require.NoError(t, session.Check(ctx, skill.CapRecallMemory))

	// And the persisted grant shrank too.
	inspect, err := svc.Inspect(ctx, "revocable", "")
	require.NoError(t, err)
	require.Equal(t,
		[]skill.Capability{skill.CapRecallMemory}, inspect.Effective)
	require.Len(t, inspect.Revocations, 1)
}

// TestPlanInstallConflict surfaces resolver errors without touching the
// store.
func TestPlanInstallConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:    "orphan",
		Version: "1.0.0",
		Dependencies: []skill.Dependency{
			{Name: "missing-dep", Range: "^1.0"},
		},
		Tier:       skill.TierUntrusted,
		ModulePath: writeModule(t),
	}

	_, err := svc.PlanInstall(ctx, m)
	require.Error(t, err)
}

// TestSetTrustChangesDispatch promotes an untrusted skill to verified and
// checks that both the row and the stored manifest agree afterwards.
func TestSetTrustChangesDispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := testService(t)

	m := &skill.SkillManifest{
		Name:         "promotable",
		Version:      "1.0.0",
		Capabilities: []skill.Capability{skill.CapRecallMemory},
		Tier:         skill.TierUntrusted,
		ModulePath:   writeModule(t),
	}
	_, err := svc.Install(ctx, m, AutoApprove)
	require.NoError(t, err)

	err = svc.SetTrust(ctx, "promotable", "", skill.TierVerified)
	require.NoError(t, err)

	installed, err := svc.store.GetInstalled(ctx, "promotable", "")
	require.NoError(t, err)
	require.Equal(t, skill.TierVerified, installed.Tier)

	stored, err := installed.Manifest()
	require.NoError(t, err)
	require.Equal(t, skill.TierVerified, stored.Tier)

	// The tier enum stays closed at this boundary too.
	err = svc.SetTrust(ctx, "promotable", "", "galactic")
	require.Error(t, err)
}
