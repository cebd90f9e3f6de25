//go:build linux

package subproc

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/landlock-lsm/go-landlock/landlock"
)

// childCommand builds the child process invocation. On Linux the child
// restricts itself with Landlock after startup, so no wrapper binary is
// needed here.
func childCommand(ctx context.Context, exe string,
	_ *Request) (*exec.Cmd, error) {

	return exec.CommandContext(ctx, exe, ChildCommand), nil
}

// selfRestrict confines the current process with Landlock before any skill
// bytes are read. The strict ruleset is tried first; if the running kernel
// cannot honor it in full, the best-effort ruleset is applied instead and
// the degradation is logged loudly rather than hidden.
func selfRestrict(req *Request) error {
	ctx := context.Background()

	rules := []landlock.Rule{
		// The module itself must stay readable post-restriction.
		landlock.ROFiles(req.WasmPath),
	}
	if len(req.ReadablePaths) > 0 {
		rules = append(rules, landlock.RODirs(req.ReadablePaths...))
	}
	if len(req.WritablePaths) > 0 {
		rules = append(rules, landlock.RWDirs(req.WritablePaths...))
	}

	if err := landlock.V5.RestrictPaths(rules...); err != nil {
		log.WarnS(ctx, "Strict landlock unsupported, continuing "+
			"with degraded security", err,
			"invocation_id", req.InvocationID)

		err := landlock.V5.BestEffort().RestrictPaths(rules...)
		if err != nil {
			return fmt.Errorf("failed to apply landlock "+
				"ruleset: %w", err)
		}
	}

	if !req.AllowNetwork {
		// No rules means no TCP bind or connect at all. Network
		// restriction only exists from Landlock ABI v4, hence
		// best-effort.
		err := landlock.V5.BestEffort().RestrictNet()
		if err != nil {
			return fmt.Errorf("failed to restrict network: %w",
				err)
		}
	}

	return nil
}
