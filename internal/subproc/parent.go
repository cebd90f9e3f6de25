package subproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"
)

// childGracePeriod is how much longer than the guest's own timeout the
// parent waits before killing the child process outright.
const childGracePeriod = 5 * time.Second

// Run executes one untrusted invocation in a sandboxed child process. The
// parent re-executes its own binary with the hidden child command, streams
// the request over stdin, and reads the single JSON response from stdout.
// The reported duration is measured here, not taken from the child.
func Run(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own binary: %w", err)
	}

	timeout := time.Duration(req.ResourceLimits.TimeoutMS) *
		time.Millisecond
	if timeout <= 0 {
		timeout = childGracePeriod
	}

	// The child enforces the guest timeout itself; the parent deadline
	// only catches a child that is wedged or ignoring the protocol.
	ctx, cancel := context.WithTimeout(ctx, timeout+childGracePeriod)
	defer cancel()

	cmd, err := childCommand(ctx, exe, req)
	if err != nil {
		return nil, err
	}

	var reqBuf bytes.Buffer
	if err := WriteRequest(&reqBuf, req); err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdin = &reqBuf
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.DebugS(ctx, "Launching sandbox child",
		"invocation_id", req.InvocationID,
		"skill", req.Skill,
		"wasm_path", req.WasmPath)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("sandbox child exceeded its "+
			"deadline after %v: %w", elapsed, ctx.Err())
	}
	if runErr != nil {
		return nil, fmt.Errorf("sandbox child failed: %w "+
			"(stderr: %s)", runErr, stderr.String())
	}

	resp, err := ReadResponse(&stdout)
	if err != nil {
		return nil, err
	}

	resp.DurationMS = elapsed.Milliseconds()

	return resp, nil
}
