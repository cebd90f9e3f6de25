package subproc

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roasbeef/skillet/internal/skill"
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

func validRequest(t *testing.T) *Request {
	t.Helper()

	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "skill.wasm")
	require.NoError(t, os.WriteFile(wasmPath, trivialModule, 0o600))

	return &Request{
		InvocationID: "inv-1",
		Skill:        "demo@1.0.0",
		Tier:         "untrusted",
		WasmPath:     wasmPath,
		Capabilities: []string{"recall-memory"},
		ResourceLimits: ResourceLimits{
			Fuel:        1_000_000,
			MemoryBytes: 1 << 20,
			TimeoutMS:   2_000,
		},
	}
}

// TestRequestValidate checks the fail-closed request validation.
func TestRequestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validRequest(t).Validate())

	missing := validRequest(t)
	missing.WasmPath = ""
	require.Error(t, missing.Validate())

	noCaps := validRequest(t)
	noCaps.Capabilities = nil
	require.Error(t, noCaps.Validate())

	badCap := validRequest(t)
	badCap.Capabilities = []string{"rm-rf"}
	require.Error(t, badCap.Validate())

	badTier := validRequest(t)
	badTier.Tier = "root"
	require.Error(t, badTier.Validate())
}

// TestWireFieldNames pins the protocol field names both sides must agree
// on.
func TestWireFieldNames(t *testing.T) {
	t.Parallel()

	reqJSON, err := json.Marshal(validRequest(t))
	require.NoError(t, err)
	for _, field := range []string{
		`"wasm_path"`, `"readable_paths"`, `"writable_paths"`,
		`"allow_network"`, `"resource_limits"`,
	} {
		require.Contains(t, string(reqJSON), field)
	}

	respJSON, err := json.Marshal(&Response{Success: true})
	require.NoError(t, err)
	for _, field := range []string{
		`"success"`, `"fuel_consumed"`, `"memory_peak_bytes"`,
		`"duration_ms"`,
	} {
		require.Contains(t, string(respJSON), field)
	}
}

// TestExecuteChild runs the child-side execution path directly, without
// restricting the test process.
func TestExecuteChild(t *testing.T) {
	t.Parallel()

	resp := executeChild(context.Background(), validRequest(t))

	require.Empty(t, resp.Error)
	require.True(t, resp.Success)
	require.Greater(t, resp.FuelConsumed, uint64(0))
}

// TestExecuteChildMissingModule verifies a missing module file surfaces
// as a failure response, not a crash.
func TestExecuteChildMissingModule(t *testing.T) {
	t.Parallel()

	req := validRequest(t)
	req.WasmPath = filepath.Join(t.TempDir(), "absent.wasm")

	resp := executeChild(context.Background(), req)

	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "failed to read module")
}

// TestResponseRoundTrip checks the stdout protocol framing.
func TestResponseRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	want := &Response{
		Output:       []byte("ok"),
		Success:      true,
		FuelConsumed: 42,
	}
	require.NoError(t, WriteResponse(&buf, want))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestNeedsOSSandbox pins which tiers require process isolation.
func TestNeedsOSSandbox(t *testing.T) {
	t.Parallel()

	require.True(t, NeedsOSSandbox(skill.TierUntrusted))
	require.False(t, NeedsOSSandbox(skill.TierVerified))
	require.False(t, NeedsOSSandbox(skill.TierLocal))
}

// TestIsChildInvocation pins the argv shape the parent re-execs with, so
// every parent-capable binary dispatches to the child path the same way.
func TestIsChildInvocation(t *testing.T) {
	t.Parallel()

	require.True(t, IsChildInvocation(
		[]string{"/usr/local/bin/skilletd", ChildCommand},
	))
	require.True(t, IsChildInvocation(
		[]string{"skillet", ChildCommand, "extra"},
	))
	require.False(t, IsChildInvocation([]string{"skilletd"}))
	require.False(t, IsChildInvocation(
		[]string{"skilletd", "--db", "x.db"},
	))
	require.False(t, IsChildInvocation(nil))
}

// TestSandboxProfile checks the deny-by-default shape of the macOS
// profile.
func TestSandboxProfile(t *testing.T) {
	t.Parallel()

	req := validRequest(t)
	req.ReadablePaths = []string{"/srv/data"}
	req.WritablePaths = []string{`/tmp/out "dir"`}

	profile := sandboxProfile("/usr/local/bin/skillet", req)

	require.True(t, len(profile) > 0)
	require.Contains(t, profile, "(deny default)")
	require.Contains(t, profile,
		`(allow file-read* (subpath "/srv/data"))`)
	require.Contains(t, profile,
		`(allow file-write* (subpath "/tmp/out \"dir\""))`)
	require.NotContains(t, profile, "network-outbound")

	req.AllowNetwork = true
	require.Contains(t, sandboxProfile("/bin/skillet", req),
		"(allow network-outbound)")
}
