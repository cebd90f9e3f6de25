package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/skill"
)

// Guest-visible error codes returned by host calls. Non-negative values are
// payload lengths.
const (
	errnoDenied   int32 = -1
	errnoHost     int32 = -2
	errnoBadArgs  int32 = -3
	errnoTooSmall int32 = -4
)

// hostModule is the import namespace guests link against.
const hostModule = "skillet"

// HostServices supplies the host-side implementations behind the closed set
// of host calls. Unset services report a host error to the guest; the
// capability check still runs (and is audited) first.
type HostServices struct {
	// RecallMemory performs a read-only lookup in the agent memory
	// store.
	RecallMemory func(ctx context.Context, query string) ([]byte, error)

	// HTTPGet fetches a URL.
	HTTPGet func(ctx context.Context, url string) ([]byte, error)

	// HTTPPost posts a payload to a URL.
	HTTPPost func(ctx context.Context, url string,
		body []byte) ([]byte, error)

	// GetSecret retrieves a named secret.
	GetSecret func(ctx context.Context, name string) ([]byte, error)

	// Log receives guest log lines.
	Log func(invocationID, msg string)
}

// DefaultHostServices returns host services backed by a plain HTTP client
// and the process's view of the filesystem. Memory recall and secrets are
// left unset: wiring them is the embedding service's job.
func DefaultHostServices() HostServices {
	client := &http.Client{Timeout: 30 * time.Second}

	return HostServices{
		HTTPGet: func(ctx context.Context,
			url string) ([]byte, error) {

			req, err := http.NewRequestWithContext(
				ctx, http.MethodGet, url, nil,
			)
			if err != nil {
				return nil, err
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			// Responses are capped so a hostile server cannot
			// blow the guest's memory budget from outside.
			return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		},
		HTTPPost: func(ctx context.Context, url string,
			body []byte) ([]byte, error) {

			req, err := http.NewRequestWithContext(
				ctx, http.MethodPost, url,
				bytes.NewReader(body),
			)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		},
	}
}

// hostState is the per-invocation host side: input/output buffers, the
// permission session, and the denial marker consulted after a trap.
type hostState struct {
	ctx      context.Context
	services HostServices
	session  *permission.Session
	strict   bool

	invocationID string

	input  []byte
	output bytes.Buffer

	// denied records the capability behind a strict-enforcement trap so
	// the engine can classify the failure precisely.
	denied *skill.Capability
}

// gateErr converts a failed capability check into the guest-visible
// outcome: an error code under relaxed enforcement, a trap terminating the
// invocation under strict enforcement.
func (h *hostState) gateErr(cap skill.Capability) (int32, *wasmtime.Trap) {
	if h.strict {
		h.denied = &cap

		return 0, wasmtime.NewTrap(fmt.Sprintf(
			"capability denied: %s", cap,
		))
	}

	return errnoDenied, nil
}

// guestMem returns the guest's exported linear memory.
func guestMem(caller *wasmtime.Caller) ([]byte, error) {
	ext := caller.GetExport("memory")
	if ext == nil || ext.Memory() == nil {
		return nil, errors.New("guest does not export memory")
	}

	return ext.Memory().UnsafeData(caller), nil
}

// readGuest copies a guest buffer out of linear memory with bounds checks.
func readGuest(caller *wasmtime.Caller, ptr, length int32) ([]byte, bool) {
	if ptr < 0 || length < 0 {
		return nil, false
	}

	mem, err := guestMem(caller)
	if err != nil {
		return nil, false
	}

	end := int64(ptr) + int64(length)
	if end > int64(len(mem)) {
		return nil, false
	}

	out := make([]byte, length)
	copy(out, mem[ptr:end])

	return out, true
}

// writeGuest copies a host payload into a guest buffer, refusing when the
// destination capacity is too small.
func writeGuest(caller *wasmtime.Caller, dstPtr, dstCap int32,
	payload []byte) int32 {

	if dstPtr < 0 || dstCap < 0 {
		return errnoBadArgs
	}
	if len(payload) > int(dstCap) {
		return errnoTooSmall
	}

	mem, err := guestMem(caller)
	if err != nil {
		return errnoHost
	}

	end := int64(dstPtr) + int64(len(payload))
	if end > int64(len(mem)) {
		return errnoBadArgs
	}

	copy(mem[dstPtr:end], payload)

	return int32(len(payload))
}

// pathAllowed checks a requested path against the granted path prefixes
// for a capability (comma-separated in the grant config). An empty
// configuration grants no paths at all.
func pathAllowed(configured, requested string) bool {
	if configured == "" {
		return false
	}

	clean := filepath.Clean(requested)
	for _, prefix := range strings.Split(configured, ",") {
		prefix = filepath.Clean(strings.TrimSpace(prefix))
		if prefix == "" {
			continue
		}

		if clean == prefix ||
			strings.HasPrefix(clean, prefix+string(os.PathSeparator)) {

			return true
		}
	}

	return false
}

// fetchCall is the shared shape of host calls that take one string argument
// and write a payload back into the guest: recall_memory, http_get,
// get_secret.
func (h *hostState) fetchCall(cap skill.Capability,
	fetch func(ctx context.Context, arg string) ([]byte, error),
) func(*wasmtime.Caller, int32, int32, int32, int32) (int32, *wasmtime.Trap) {

	return func(caller *wasmtime.Caller, argPtr, argLen, dstPtr,
		dstCap int32) (int32, *wasmtime.Trap) {

		if err := h.session.Check(h.ctx, cap); err != nil {
			return h.gateErr(cap)
		}

		arg, ok := readGuest(caller, argPtr, argLen)
		if !ok {
			return errnoBadArgs, nil
		}

		if fetch == nil {
			return errnoHost, nil
		}

		payload, err := fetch(h.ctx, string(arg))
		if err != nil {
			log.WarnS(h.ctx, "Host call failed", err,
				"invocation_id", h.invocationID,
				"capability", cap)

			return errnoHost, nil
		}

		return writeGuest(caller, dstPtr, dstCap, payload), nil
	}
}

// register wires the closed host-call set into the linker. Every privileged
// call checks the permission session before doing anything; denials return
// an error to the guest (or trap, under strict enforcement) and are always
// audited, never silently no-oped.
func (h *hostState) register(linker *wasmtime.Linker) error {
	type hostFunc struct {
		name string
		fn   any
	}

	funcs := []hostFunc{
		// Input/output plumbing carries no privilege.
		{"input_len", func() int32 {
			return int32(len(h.input))
		}},
		{"input_read", func(caller *wasmtime.Caller,
			dstPtr, dstCap int32) int32 {

			return writeGuest(caller, dstPtr, dstCap, h.input)
		}},
		{"output_write", func(caller *wasmtime.Caller,
			ptr, length int32) int32 {

			data, ok := readGuest(caller, ptr, length)
			if !ok {
				return errnoBadArgs
			}

			h.output.Write(data)

			return int32(len(data))
		}},
		{"log_message", func(caller *wasmtime.Caller,
			ptr, length int32) int32 {

			msg, ok := readGuest(caller, ptr, length)
			if !ok {
				return errnoBadArgs
			}

			if h.services.Log != nil {
				h.services.Log(h.invocationID, string(msg))
			}

			return 0
		}},

		{"recall_memory", h.fetchCall(
			skill.CapRecallMemory, h.services.RecallMemory,
		)},
		{"http_get", h.fetchCall(
			skill.CapHTTPGet, h.services.HTTPGet,
		)},
		{"get_secret", h.fetchCall(
			skill.CapGetSecret, h.services.GetSecret,
		)},

		{"http_post", func(caller *wasmtime.Caller, urlPtr, urlLen,
			bodyPtr, bodyLen, dstPtr,
			dstCap int32) (int32, *wasmtime.Trap) {

			err := h.session.Check(h.ctx, skill.CapHTTPPost)
			if err != nil {
				return h.gateErr(skill.CapHTTPPost)
			}

			url, ok := readGuest(caller, urlPtr, urlLen)
			if !ok {
				return errnoBadArgs, nil
			}
			body, ok := readGuest(caller, bodyPtr, bodyLen)
			if !ok {
				return errnoBadArgs, nil
			}

			if h.services.HTTPPost == nil {
				return errnoHost, nil
			}

			payload, err := h.services.HTTPPost(
				h.ctx, string(url), body,
			)
			if err != nil {
				return errnoHost, nil
			}

			return writeGuest(caller, dstPtr, dstCap, payload), nil
		}},

		{"read_file", func(caller *wasmtime.Caller, pathPtr, pathLen,
			dstPtr, dstCap int32) (int32, *wasmtime.Trap) {

			err := h.session.Check(h.ctx, skill.CapReadFile)
			if err != nil {
				return h.gateErr(skill.CapReadFile)
			}

			path, ok := readGuest(caller, pathPtr, pathLen)
			if !ok {
				return errnoBadArgs, nil
			}

			allowed := h.session.ConfigFor(skill.CapReadFile)
			if !pathAllowed(allowed, string(path)) {
				_ = h.session.Deny(
					h.ctx, skill.CapReadFile,
					fmt.Sprintf("path outside granted "+
						"readable paths: %s", path),
				)

				return h.gateErr(skill.CapReadFile)
			}

			data, err := os.ReadFile(string(path))
			if err != nil {
				return errnoHost, nil
			}

			return writeGuest(caller, dstPtr, dstCap, data), nil
		}},

		{"write_file", func(caller *wasmtime.Caller, pathPtr, pathLen,
			dataPtr, dataLen int32) (int32, *wasmtime.Trap) {

			err := h.session.Check(h.ctx, skill.CapWriteFile)
			if err != nil {
				return h.gateErr(skill.CapWriteFile)
			}

			path, ok := readGuest(caller, pathPtr, pathLen)
			if !ok {
				return errnoBadArgs, nil
			}
			data, ok := readGuest(caller, dataPtr, dataLen)
			if !ok {
				return errnoBadArgs, nil
			}

			allowed := h.session.ConfigFor(skill.CapWriteFile)
			if !pathAllowed(allowed, string(path)) {
				_ = h.session.Deny(
					h.ctx, skill.CapWriteFile,
					fmt.Sprintf("path outside granted "+
						"writable paths: %s", path),
				)

				return h.gateErr(skill.CapWriteFile)
			}

			if err := os.WriteFile(
				string(path), data, 0o600,
			); err != nil {
				return errnoHost, nil
			}

			return int32(len(data)), nil
		}},
	}

	for _, f := range funcs {
		if err := linker.FuncWrap(hostModule, f.name, f.fn); err != nil {
			return fmt.Errorf("failed to register host call "+
				"%s: %w", f.name, err)
		}
	}

	return nil
}
