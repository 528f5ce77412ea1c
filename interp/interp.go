// Package interp embeds a Python interpreter compiled to WebAssembly and
// exposes the narrow contract the evaluator and package manager need: chunk
// execution, a native package loader, host-callable injection, and batched
// output callbacks.
package interp

import (
	"context"

	"github.com/pypod/pypod/hostfunc"
)

// Interpreter is the embedded-runtime contract. The process holds a single
// shared instance; its lifetime is the process lifetime once created.
type Interpreter interface {
	// Run executes a code chunk. Guest faults come back as errors tagged
	// guest_fault; the interpreter stays usable afterwards.
	Run(ctx context.Context, code string) error

	// RunPrelude executes a short bootstrap snippet synchronously. Used to
	// override guest built-ins after host callables are installed.
	RunPrelude(code string) error

	// LoadPackage makes a bundled distribution importable inside the guest.
	LoadPackage(ctx context.Context, dist string) error

	// SetGlobal installs a host callable reachable from guest code through
	// the call protocol.
	SetGlobal(name string, fn hostfunc.Func)

	// OnStdout registers the callback receiving batched standard output.
	// Emission order is preserved. Wire once, before running chunks.
	OnStdout(fn func(string))

	// OnStderr registers the callback for non-protocol standard error text.
	OnStderr(fn func(string))

	Close() error
}
