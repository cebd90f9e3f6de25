package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/stretchr/testify/require"
)

// The test modules below are hand-assembled wasm binaries, kept tiny so the
// encodings stay reviewable.

// moduleReturnZero exports run() -> i32 that immediately returns 0.
var moduleReturnZero = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> i32
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// export "run"
	0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
	// code: i32.const 0; end
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x00, 0x0b,
}

// moduleInfiniteLoop exports run() -> i32 that loops forever.
var moduleInfiniteLoop = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> i32
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// export "run"
	0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
	// code: loop; br 0; end; i32.const 0; end
	0x0a, 0x0b, 0x01, 0x09, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b,
	0x41, 0x00, 0x0b,
}

// moduleWriteOutput imports skillet.output_write, exports a memory with the
// string "hi" at offset 0, and writes it as output before returning 0.
var moduleWriteOutput = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: () -> i32, (i32, i32) -> i32
	0x01, 0x0b, 0x02, 0x60, 0x00, 0x01, 0x7f,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// import skillet.output_write (type 1)
	0x02, 0x18, 0x01, 0x07, 0x73, 0x6b, 0x69, 0x6c, 0x6c, 0x65,
	0x74, 0x0c, 0x6f, 0x75, 0x74, 0x70, 0x75, 0x74, 0x5f, 0x77,
	0x72, 0x69, 0x74, 0x65, 0x00, 0x01,
	// function: run (type 0)
	0x03, 0x02, 0x01, 0x00,
	// memory: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// exports: "run" (func 1), "memory"
	0x07, 0x10, 0x02, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x01,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	// code: output_write(0, 2); drop; i32.const 0; end
	0x0a, 0x0d, 0x01, 0x0b, 0x00, 0x41, 0x00, 0x41, 0x02,
	0x10, 0x00, 0x1a, 0x41, 0x00, 0x0b,
	// data: "hi" at offset 0
	0x0b, 0x08, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x02, 0x68, 0x69,
}

// moduleHTTPGet imports skillet.http_get and calls it once with empty
// arguments, ignoring the result.
var moduleHTTPGet = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: () -> i32, (i32 x4) -> i32
	0x01, 0x0d, 0x02, 0x60, 0x00, 0x01, 0x7f,
	0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
	// import skillet.http_get (type 1)
	0x02, 0x14, 0x01, 0x07, 0x73, 0x6b, 0x69, 0x6c, 0x6c, 0x65,
	0x74, 0x08, 0x68, 0x74, 0x74, 0x70, 0x5f, 0x67, 0x65, 0x74,
	0x00, 0x01,
	// function: run (type 0)
	0x03, 0x02, 0x01, 0x00,
	// memory: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// exports: "run" (func 1), "memory"
	0x07, 0x10, 0x02, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x01,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	// code: http_get(0,0,0,0); drop; i32.const 0; end
	0x0a, 0x11, 0x01, 0x0f, 0x00, 0x41, 0x00, 0x41, 0x00,
	0x41, 0x00, 0x41, 0x00, 0x10, 0x00, 0x1a, 0x41, 0x00, 0x0b,
}

// moduleOOBLoad exports a one-page memory and loads four bytes starting at
// offset 65533, reaching past the end of its own memory.
var moduleOOBLoad = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> i32
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// memory: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export "run"
	0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
	// code: i32.const 65533; i32.load; end
	0x0a, 0x0b, 0x01, 0x09, 0x00, 0x41, 0xfd, 0xff, 0x03,
	0x28, 0x02, 0x00, 0x0b,
}

// moduleBigMemory declares a minimum memory of 4 pages, for ceiling tests.
var moduleBigMemory = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> i32
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// memory: min 4 pages
	0x05, 0x03, 0x01, 0x00, 0x04,
	// export "run"
	0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
	// code: i32.const 0; end
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x00, 0x0b,
}

// testSession builds an enforcer session over the given capabilities.
func testSession(t *testing.T, sink audit.Recorder,
	tier skill.TrustTier,
	caps ...skill.Capability) *permission.Session {

	t.Helper()

	grant := &permission.Grant{
		Skill:        "demo@1.0.0",
		Capabilities: skill.NewCapabilitySet(caps...),
		ApprovedAt:   time.Now(),
	}

	enforcer, err := permission.NewEnforcer(grant, sink)
	require.NoError(t, err)

	return enforcer.Session("inv-test", tier)
}

// untrustedConfig returns the untrusted tier config, optionally narrowed.
func untrustedConfig(t *testing.T) TierConfig {
	t.Helper()

	cfg, ok := ConfigForTier(skill.TierUntrusted)
	require.True(t, ok)

	return cfg
}

// TestExecuteCompletes runs the trivial module to completion and checks
// resource accounting is populated.
func TestExecuteCompletes(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})
	session := testSession(
		t, audit.NewMemoryLog(), skill.TierUntrusted,
		skill.CapRecallMemory,
	)

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleReturnZero,
		Config:       untrustedConfig(t),
		Session:      session,
	})

	require.NoError(t, res.Err)
	require.Equal(t, StateCompleted, res.State)
	require.Greater(t, res.FuelConsumed, uint64(0))
	require.Greater(t, res.Duration, time.Duration(0))
}

// TestExecuteGuestOutput verifies the output_write host call plumbs guest
// output back to the result.
func TestExecuteGuestOutput(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})
	session := testSession(
		t, audit.NewMemoryLog(), skill.TierUntrusted,
		skill.CapRecallMemory,
	)

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleWriteOutput,
		Config:       untrustedConfig(t),
		Session:      session,
	})

	require.NoError(t, res.Err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, []byte("hi"), res.Output)
	require.Greater(t, res.MemoryPeakBytes, int64(0))
}

// TestFuelExhaustionTerminates verifies that a near-zero instruction budget
// terminates an infinite loop with the fuel error, within a bounded
// wall-clock margin, rather than hanging.
func TestFuelExhaustionTerminates(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})
	session := testSession(
		t, audit.NewMemoryLog(), skill.TierUntrusted,
		skill.CapRecallMemory,
	)

	cfg := untrustedConfig(t)
	cfg.Fuel = 1_000

	start := time.Now()
	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleInfiniteLoop,
		Config:       cfg,
		Session:      session,
	})

	require.ErrorIs(t, res.Err, ErrFuelExhausted)
	require.Equal(t, StateResourceExceeded, res.State)
	require.Less(t, time.Since(start), 5*time.Second)
}

// TestTimeoutTerminates verifies the wall-clock bound fires independently
// of fuel.
func TestTimeoutTerminates(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})
	session := testSession(
		t, audit.NewMemoryLog(), skill.TierUntrusted,
		skill.CapRecallMemory,
	)

	cfg := untrustedConfig(t)
	cfg.Timeout = 200 * time.Millisecond

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleInfiniteLoop,
		Config:       cfg,
		Session:      session,
	})

	require.ErrorIs(t, res.Err, ErrTimeout)
	require.Equal(t, StateTimedOut, res.State)
}

// TestMemoryCeilingRefusesModule verifies that a module demanding more
// memory than the ceiling is refused outright rather than capped.
func TestMemoryCeilingRefusesModule(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})
	session := testSession(
		t, audit.NewMemoryLog(), skill.TierUntrusted,
		skill.CapRecallMemory,
	)

	cfg := untrustedConfig(t)
	// One wasm page: the module's four-page minimum cannot fit.
	cfg.MemoryBytes = 64 << 10

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleBigMemory,
		Config:       cfg,
		Session:      session,
	})

	require.ErrorIs(t, res.Err, ErrMemoryExceeded)
	require.Equal(t, StateResourceExceeded, res.State)
}

// TestGuestMemoryFaultIsFailure verifies that a guest's own out-of-bounds
// access is reported as a plain failure, not as hitting the host's memory
// ceiling.
func TestGuestMemoryFaultIsFailure(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})
	session := testSession(
		t, audit.NewMemoryLog(), skill.TierUntrusted,
		skill.CapRecallMemory,
	)

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleOOBLoad,
		Config:       untrustedConfig(t),
		Session:      session,
	})

	require.Error(t, res.Err)
	require.NotErrorIs(t, res.Err, ErrMemoryExceeded)
	require.Equal(t, StateFailed, res.State)
}

// TestStrictDenialTerminatesInvocation verifies the untrusted tier's
// strict enforcement: an attempted use of an ungranted capability
// terminates the whole invocation with the permission error and writes a
// denial audit entry.
func TestStrictDenialTerminatesInvocation(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemoryLog()
	engine := NewEngine(HostServices{})
	session := testSession(
		t, sink, skill.TierUntrusted, skill.CapReadFile,
	)

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleHTTPGet,
		Config:       untrustedConfig(t),
		Session:      session,
	})

	require.Equal(t, StateFailed, res.State)

	var denied *permission.DeniedError
	require.ErrorAs(t, res.Err, &denied)
	require.Equal(t, skill.CapHTTPGet, denied.Capability)

	entries := sink.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	require.Equal(t, audit.DecisionDenied, last.Decision)
	require.Equal(t, skill.CapHTTPGet, last.Capability)
}

// TestRelaxedDenialReturnsErrorCode verifies that outside strict
// enforcement a denial surfaces to the guest as an error code and the
// invocation continues.
func TestRelaxedDenialReturnsErrorCode(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemoryLog()
	engine := NewEngine(HostServices{})
	session := testSession(
		t, sink, skill.TierVerified, skill.CapReadFile,
	)

	cfg, ok := ConfigForTier(skill.TierVerified)
	require.True(t, ok)
	require.False(t, cfg.StrictEnforcement)

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleHTTPGet,
		Config:       cfg,
		Session:      session,
	})

	// The guest ignores the error code and returns success; the denial
	// still shows up in the audit trail.
	require.NoError(t, res.Err)
	require.Equal(t, StateCompleted, res.State)

	var sawDenial bool
	for _, entry := range sink.Entries() {
		if entry.Decision == audit.DecisionDenied &&
			entry.Capability == skill.CapHTTPGet {

			sawDenial = true
		}
	}
	require.True(t, sawDenial)
}

// TestExecuteRequiresSession verifies the engine refuses to run without a
// permission session rather than running unchecked.
func TestExecuteRequiresSession(t *testing.T) {
	t.Parallel()

	engine := NewEngine(HostServices{})

	res := engine.Execute(context.Background(), ExecRequest{
		InvocationID: "inv-test",
		Module:       moduleReturnZero,
		Config:       untrustedConfig(t),
	})

	require.Error(t, res.Err)
	require.Equal(t, StateFailed, res.State)
}

// TestPathAllowed exercises the granted-path prefix check.
func TestPathAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configured string
		requested  string
		allowed    bool
	}{
		{"empty config denies", "", "/tmp/x", false},
		{"exact prefix", "/srv/data", "/srv/data/file", true},
		{"exact path", "/srv/data", "/srv/data", true},
		{"outside prefix", "/srv/data", "/etc/passwd", false},
		{"sneaky sibling", "/srv/data", "/srv/database/x", false},
		{"dot dot escape", "/srv/data", "/srv/data/../../etc", false},
		{"second prefix", "/a,/b", "/b/file", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(
				t, test.allowed,
				pathAllowed(test.configured, test.requested),
			)
		})
	}
}
