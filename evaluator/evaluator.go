// Package evaluator owns the shared interpreter lifecycle and per-chunk
// execution. It bridges the embedded runtime to the surrounding plugin host:
// output streams forward to the host sink, the guest's line-input builtin is
// rewired to a non-blocking host poll, and each chunk's dependencies are
// resolved before the chunk runs.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pypod/pypod/hostfunc"
	"github.com/pypod/pypod/interp"
	"github.com/pypod/pypod/pkgload"
)

// PluginHost is the narrow contract to the plugin framework hosting this
// worker. SendOutput is fire-and-forget and order-preserving. TryRequestInput
// polls for a pending input line and must never block: the interpreter's
// single execution thread is suspended while it waits for the answer.
type PluginHost interface {
	SendOutput(text string)
	TryRequestInput() (string, bool)
}

// inputPrelude rewires the guest's input() to the host_input callable. It
// runs once, after host callables are installed.
const inputPrelude = `import builtins

def _pypod_input(prompt=""):
    value = builtins._pypod_call("host_input", {"prompt": str(prompt)})
    return "" if value is None else str(value)

builtins.input = _pypod_input
`

type initState int

const (
	stateUninitialized initState = iota
	stateInitializing
	stateReady
)

// Evaluator executes code chunks against a lazily created, process-shared
// interpreter. Initialization is single-flight: concurrent chunks submitted
// before the interpreter is up all wait on the same attempt. Ready is
// terminal; a failed attempt resets to uninitialized so a later chunk can
// retry.
type Evaluator struct {
	host      PluginHost
	factory   func() (interp.Interpreter, error)
	installer hostfunc.Func
	interpCfg interp.Config
	pkgCfg    pkgload.Config
	log       *slog.Logger

	mu      sync.Mutex
	state   initState
	pending chan struct{}
	initErr error
	closed  bool
	it      interp.Interpreter
	pkgs    *pkgload.Manager
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithInterpreterConfig overrides the embedded runtime configuration.
func WithInterpreterConfig(cfg interp.Config) Option {
	return func(e *Evaluator) { e.interpCfg = cfg }
}

// WithPackageConfig overrides the package manager configuration.
func WithPackageConfig(cfg pkgload.Config) Option {
	return func(e *Evaluator) { e.pkgCfg = cfg }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Evaluator) { e.log = log }
}

// WithInterpreterFactory overrides how the interpreter is created. Mainly for
// tests.
func WithInterpreterFactory(fn func() (interp.Interpreter, error)) Option {
	return func(e *Evaluator) { e.factory = fn }
}

// WithInstaller overrides the pkg_install host function.
func WithInstaller(fn hostfunc.Func) Option {
	return func(e *Evaluator) { e.installer = fn }
}

// New creates an Evaluator bound to a plugin host. The interpreter is not
// started until the first chunk arrives.
func New(host PluginHost, opts ...Option) *Evaluator {
	e := &Evaluator{
		host:      host,
		interpCfg: interp.DefaultConfig(),
		pkgCfg:    pkgload.DefaultConfig(),
		log:       slog.With("component", "evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.factory == nil {
		e.factory = func() (interp.Interpreter, error) { return interp.New(e.interpCfg) }
	}
	if e.installer == nil {
		e.installer = hostfunc.NewInstaller(hostfunc.InstallerConfig{
			PackageDir: interp.PackagesPath(e.interpCfg.AssetDir),
		})
	}
	return e
}

// EvaluateChunk resolves the chunk's dependencies, executes it, and streams
// output to the host. Guest-code faults are reported through the output sink
// and do not error; only infrastructure faults (interpreter failed to start,
// context expired) are returned.
func (e *Evaluator) EvaluateChunk(ctx context.Context, chunk string) error {
	if err := e.ensureInterpreterLoaded(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	it, pkgs := e.it, e.pkgs
	e.mu.Unlock()

	id := ulid.Make().String()
	log := e.log.With("chunk_id", id)
	log.Debug("evaluating chunk", "bytes", len(chunk))

	results := pkgs.LoadPackagesFromCode(ctx, chunk)
	var failed []string
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r.Package)
		}
	}
	if len(failed) > 0 {
		log.Warn("packages failed to load", "packages", failed)
		e.host.SendOutput(fmt.Sprintf("Warning: failed to load packages: %s\n",
			strings.Join(failed, ", ")))
	}

	if err := it.Run(ctx, chunk); err != nil {
		if isGuestFault(err) {
			log.Debug("chunk raised", "error", err)
			e.host.SendOutput("Error: " + rootMessage(err) + "\n")
			return nil
		}
		return oops.In("evaluator").With("chunk_id", id).Wrap(err)
	}

	log.Debug("chunk completed")
	return nil
}

// ensureInterpreterLoaded performs single-flight initialization. Every caller
// awaits the same pending attempt; at most one initialization runs at a time.
func (e *Evaluator) ensureInterpreterLoaded(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return oops.In("evaluator").Code("init_failed").New("evaluator closed")
	}
	switch e.state {
	case stateReady:
		e.mu.Unlock()
		return nil

	case stateInitializing:
		pending := e.pending
		e.mu.Unlock()
		select {
		case <-pending:
		case <-ctx.Done():
			return oops.In("evaluator").Code("timeout").Wrap(ctx.Err())
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state == stateReady {
			return nil
		}
		return e.initErr
	}

	e.state = stateInitializing
	e.pending = make(chan struct{})
	pending := e.pending
	e.mu.Unlock()

	it, pkgs, err := e.initialize(ctx)

	e.mu.Lock()
	switch {
	case err != nil:
		// Reset so a later chunk can retry with a fresh attempt.
		e.state = stateUninitialized
		e.initErr = err
	case e.closed:
		// Close raced with this attempt and found nothing to shut down yet.
		// The fresh interpreter must not be stored, or it would leak.
		e.state = stateUninitialized
		err = oops.In("evaluator").Code("init_failed").New("evaluator closed during initialization")
		e.initErr = err
		it.Close()
	default:
		e.state = stateReady
		e.it = it
		e.pkgs = pkgs
		e.initErr = nil
	}
	e.pending = nil
	e.mu.Unlock()

	close(pending)
	return err
}

func (e *Evaluator) initialize(ctx context.Context) (interp.Interpreter, *pkgload.Manager, error) {
	errb := oops.In("evaluator").Code("init_failed")
	e.log.Info("starting interpreter")

	it, err := e.factory()
	if err != nil {
		return nil, nil, errb.Wrapf(err, "start interpreter")
	}

	// Output wiring happens exactly once per interpreter creation.
	it.OnStdout(e.host.SendOutput)
	it.OnStderr(e.host.SendOutput)

	it.SetGlobal("host_input", e.hostInput)
	it.SetGlobal("pkg_install", e.installer)

	if err := it.RunPrelude(inputPrelude); err != nil {
		it.Close()
		return nil, nil, errb.Wrapf(err, "install input bridge")
	}

	pkgs := pkgload.NewManager(it, e.pkgCfg)
	if err := pkgs.Initialize(ctx); err != nil {
		it.Close()
		return nil, nil, errb.Wrapf(err, "initialize package manager")
	}

	e.log.Info("interpreter ready", "installer_ready", pkgs.InstallerReady())
	return it, pkgs, nil
}

// hostInput is the guest-callable backing input(). A non-empty prompt is
// forwarded to the output sink before polling. When no input is pending the
// guest gets an empty string rather than a suspended thread.
func (e *Evaluator) hostInput(_ context.Context, args map[string]any) (any, error) {
	if prompt, _ := args["prompt"].(string); prompt != "" {
		e.host.SendOutput(prompt)
	}
	line, ok := e.host.TryRequestInput()
	if !ok {
		return "", nil
	}
	return line, nil
}

// Ready reports whether the interpreter has initialized.
func (e *Evaluator) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateReady
}

// PackageStats returns the load cache snapshot, or false before the
// interpreter has initialized.
func (e *Evaluator) PackageStats() (pkgload.Stats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateReady {
		return pkgload.Stats{}, false
	}
	return e.pkgs.Stats(), true
}

// Close shuts down the interpreter if one was created. An initialization
// attempt still in flight sees the closed flag when it completes and shuts
// its interpreter down instead of storing it.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.it != nil {
		return e.it.Close()
	}
	return nil
}

func isGuestFault(err error) bool {
	var oe oops.OopsError
	return errors.As(err, &oe) && oe.Code() == "guest_fault"
}

// rootMessage unwraps to the innermost error so the user sees the guest's own
// message, not the wrapper chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
