//go:build !linux && !darwin

package subproc

import (
	"context"
	"os/exec"
)

// childCommand refuses on platforms without an OS sandbox backend.
// Untrusted skills are not run with wasm-only isolation.
func childCommand(_ context.Context, _ string,
	_ *Request) (*exec.Cmd, error) {

	return nil, ErrNoOSSandbox
}

// selfRestrict refuses for the same reason.
func selfRestrict(_ *Request) error {
	return ErrNoOSSandbox
}
