//go:build darwin

package subproc

import (
	"context"
	"os/exec"
)

// childCommand wraps the child in sandbox-exec with a deny-by-default
// profile derived from the request's path and network grants. The profile
// is applied at exec time, before any child code runs.
func childCommand(ctx context.Context, exe string,
	req *Request) (*exec.Cmd, error) {

	profile := sandboxProfile(exe, req)

	return exec.CommandContext(
		ctx, "/usr/bin/sandbox-exec", "-p", profile,
		exe, ChildCommand,
	), nil
}

// selfRestrict is a no-op on macOS: the sandbox-exec wrapper already
// confined this process before it started.
func selfRestrict(_ *Request) error {
	return nil
}
