package sandbox

import "errors"

var (
	// ErrFuelExhausted is returned when the instruction budget runs out.
	ErrFuelExhausted = errors.New("instruction budget exhausted")

	// ErrMemoryExceeded is returned when the guest hits the memory
	// ceiling.
	ErrMemoryExceeded = errors.New("memory ceiling exceeded")

	// ErrTimeout is returned when the wall-clock bound is hit.
	ErrTimeout = errors.New("wall-clock timeout exceeded")

	// ErrNoSandboxConfig is returned when an execution is requested for
	// a tier that has no sandbox configuration (the local tier).
	ErrNoSandboxConfig = errors.New("no sandbox config for tier")

	// ErrMissingRunExport is returned when the module does not export
	// the required run entry point.
	ErrMissingRunExport = errors.New("module does not export run")
)

// InvocationState is the lifecycle state of one sandboxed invocation.
type InvocationState string

const (
	// StateCreated is the initial state of a fresh execution context.
	StateCreated InvocationState = "created"

	// StateRunning marks an invocation whose guest code has started.
	StateRunning InvocationState = "running"

	// StateCompleted marks a successful invocation.
	StateCompleted InvocationState = "completed"

	// StateFailed marks an invocation terminated by a guest or
	// permission error.
	StateFailed InvocationState = "failed"

	// StateTimedOut marks an invocation terminated by the wall-clock
	// bound.
	StateTimedOut InvocationState = "timed_out"

	// StateResourceExceeded marks an invocation terminated by the fuel
	// or memory limit.
	StateResourceExceeded InvocationState = "resource_exceeded"
)
