// Package sandbox executes compiled skill modules inside a wasmtime
// instance with hard, tier-scoped resource ceilings: a deterministic fuel
// budget, a linear-memory limit enforced on every growth request, and a
// wall-clock timeout driven by epoch interruption. Every privileged host
// call is gated by the permission enforcer before it is honored.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
	"github.com/roasbeef/skillet/internal/permission"
)

// ExecRequest describes one sandboxed invocation.
type ExecRequest struct {
	// InvocationID ties engine results to audit entries.
	InvocationID string

	// Module is the compiled wasm module bytes.
	Module []byte

	// Input is the invocation payload, exposed to the guest via
	// input_len/input_read.
	Input []byte

	// Config is the tier configuration, already narrowed by any
	// manifest overrides.
	Config TierConfig

	// Session is the per-invocation permission view. Required: the
	// engine refuses to run without one rather than running unchecked.
	Session *permission.Session
}

// Result is the outcome of one invocation. The engine always returns a
// result, even on failure, so the caller can write a complete audit entry.
type Result struct {
	// State is the terminal lifecycle state.
	State InvocationState

	// Output is whatever the guest wrote via output_write.
	Output []byte

	// FuelConsumed is the number of instructions executed.
	FuelConsumed uint64

	// MemoryPeakBytes is the guest's linear memory size at termination.
	// Wasm memory never shrinks, so this is the peak.
	MemoryPeakBytes int64

	// Duration is the in-engine wall-clock time.
	Duration time.Duration

	// Err is the terminal error, nil on success.
	Err error
}

// Engine runs sandboxed invocations. It carries only immutable host
// services; each invocation builds a fresh, stateless execution context, so
// nothing leaks between invocations of the same or different skills.
type Engine struct {
	services HostServices
}

// NewEngine creates an execution engine over the given host services.
func NewEngine(services HostServices) *Engine {
	return &Engine{services: services}
}

// Execute runs one invocation to completion, honoring the fuel budget,
// memory ceiling, and wall-clock timeout independently. Each limit
// terminates the invocation with its own distinct error so audit records
// can name the cause.
func (e *Engine) Execute(ctx context.Context, req ExecRequest) *Result {
	res := &Result{State: StateCreated}
	start := time.Now()

	finish := func(state InvocationState, err error) *Result {
		res.State = state
		res.Err = err
		res.Duration = time.Since(start)

		return res
	}

	if req.Session == nil {
		return finish(StateFailed, errors.New(
			"execution without a permission session is not " +
				"allowed"))
	}

	cfg := req.Config
	if cfg.Fuel == 0 || cfg.MemoryBytes == 0 || cfg.Timeout == 0 {
		return finish(StateFailed, fmt.Errorf("%w: %v",
			ErrNoSandboxConfig, cfg.Tier))
	}

	// Fresh engine and store per invocation. Fuel metering, epoch
	// interruption, and the tier's instruction-set surface are fixed
	// before any guest code is compiled.
	wasmCfg := wasmtime.NewConfig()
	wasmCfg.SetConsumeFuel(true)
	wasmCfg.SetEpochInterruption(true)
	wasmCfg.SetWasmSIMD(cfg.EnableSIMD)

	// Wasmtime refuses a config where SIMD is disabled but relaxed SIMD
	// is left at its enabled default, so the two must toggle together.
	wasmCfg.SetWasmRelaxedSIMD(cfg.EnableSIMD)

	engine := wasmtime.NewEngineWithConfig(wasmCfg)
	store := wasmtime.NewStore(engine)

	// The limiter refuses memory growth beyond the ceiling; it does not
	// silently cap it.
	store.Limiter(cfg.MemoryBytes, 1024, 2, 2, 2)

	if err := store.SetFuel(cfg.Fuel); err != nil {
		return finish(StateFailed, fmt.Errorf(
			"failed to set fuel: %w", err))
	}
	store.SetEpochDeadline(1)

	module, err := wasmtime.NewModule(engine, req.Module)
	if err != nil {
		return finish(StateFailed, fmt.Errorf(
			"failed to compile module: %w", err))
	}

	host := &hostState{
		ctx:          ctx,
		services:     e.services,
		session:      req.Session,
		strict:       cfg.StrictEnforcement,
		invocationID: req.InvocationID,
		input:        req.Input,
	}

	linker := wasmtime.NewLinker(engine)
	if err := host.register(linker); err != nil {
		return finish(StateFailed, err)
	}

	instance, err := linker.Instantiate(store, module)
	if err != nil {
		// The limiter vetoes allocation of a linear memory whose
		// minimum already exceeds the ceiling; wasmtime reports that
		// as an instantiation error.
		if strings.Contains(err.Error(), "exceeds memory limits") {
			return finish(StateResourceExceeded, fmt.Errorf(
				"%w: %v", ErrMemoryExceeded, err))
		}

		return finish(StateFailed, fmt.Errorf(
			"failed to instantiate module: %w", err))
	}

	run := instance.GetFunc(store, "run")
	if run == nil {
		return finish(StateFailed, ErrMissingRunExport)
	}

	// Timer race: the watchdog bumps the epoch when the wall clock (or
	// the caller's context) expires, which interrupts the guest even if
	// it is burning fuel slowly or blocked in a host call.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	timedOut := make(chan struct{}, 1)
	go func() {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
			timedOut <- struct{}{}
			engine.IncrementEpoch()

		case <-watchCtx.Done():
			if ctx.Err() != nil {
				engine.IncrementEpoch()
			}
		}
	}()

	res.State = StateRunning
	ret, callErr := run.Call(store)

	res.Duration = time.Since(start)
	if remaining, ferr := store.GetFuel(); ferr == nil {
		res.FuelConsumed = cfg.Fuel - remaining
	}
	if memExt := instance.GetExport(store, "memory"); memExt != nil {
		if mem := memExt.Memory(); mem != nil {
			res.MemoryPeakBytes = int64(mem.DataSize(store))
		}
	}

	if callErr != nil {
		return e.classify(res, host, callErr, timedOut, ctx)
	}

	res.Output = host.output.Bytes()

	code, ok := ret.(int32)
	if !ok {
		return finish(StateFailed, fmt.Errorf(
			"unexpected return type from run: %T", ret))
	}
	if code != 0 {
		return finish(StateFailed, fmt.Errorf(
			"skill reported error code %d", code))
	}

	res.State = StateCompleted

	return res
}

// classify maps a guest trap onto the engine's error taxonomy so each
// limit and failure mode surfaces with its own named cause.
func (e *Engine) classify(res *Result, host *hostState, callErr error,
	timedOut chan struct{}, ctx context.Context) *Result {

	res.State = StateFailed
	res.Err = callErr

	// A strict-enforcement denial traps the guest; surface it as the
	// permission error, not a generic trap.
	if host.denied != nil {
		res.Err = &permission.DeniedError{Capability: *host.denied}

		return res
	}

	var trap *wasmtime.Trap
	if !errors.As(callErr, &trap) || trap.Code() == nil {
		return res
	}

	switch *trap.Code() {
	case wasmtime.OutOfFuel:
		res.State = StateResourceExceeded
		res.Err = ErrFuelExhausted

	case wasmtime.MemoryOutOfBounds:
		// A stray access beyond the guest's own linear memory is a
		// skill bug, not a limit imposed by the host; it stays a
		// plain failure.

	case wasmtime.Interrupt:
		// The epoch was bumped either by the watchdog timer or by
		// caller cancellation.
		select {
		case <-timedOut:
			res.State = StateTimedOut
			res.Err = ErrTimeout

		default:
			if ctx.Err() != nil {
				res.State = StateTimedOut
				res.Err = fmt.Errorf("%w: %v", ErrTimeout,
					ctx.Err())
			} else {
				res.State = StateTimedOut
				res.Err = ErrTimeout
			}
		}
	}

	return res
}
