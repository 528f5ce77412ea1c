package interp

import (
	"context"
	_ "embed"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/pypod/pypod/hostfunc"
)

//go:embed bootstrap.py
var bootstrapPy string

// RuntimeBinary is the interpreter WASM asset filename inside the asset
// directory. internal/tools/download fetches it; it is not committed.
const RuntimeBinary = "python.wasm"

// packagesDir is the bundled-distribution directory inside the asset
// directory, mounted read-only at /packages in the guest.
const packagesDir = "packages"

// Config configures the WASM-backed interpreter.
type Config struct {
	// AssetDir holds python.wasm and the bundled packages directory.
	AssetDir string
	// StartTimeout bounds session startup. Defaults to 30s.
	StartTimeout time.Duration
	// Env is extra guest environment.
	Env map[string]string
}

// DefaultConfig returns the standard interpreter configuration.
func DefaultConfig() Config {
	return Config{
		AssetDir:     defaultAssetDir(),
		StartTimeout: 30 * time.Second,
	}
}

// PackagesPath returns the bundled/installed package directory under an
// asset directory. The installer host function writes here.
func PackagesPath(assetDir string) string {
	return filepath.Join(assetDir, packagesDir)
}

func defaultAssetDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "pypod")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "pypod")
	}
	return filepath.Join(os.TempDir(), "pypod-assets")
}

// Wasm is the wazero-backed Interpreter: a persistent Python session inside
// one WASM module instance, driven over stdio pipes.
type Wasm struct {
	cfg      Config
	registry *hostfunc.Registry

	runtime wazero.Runtime
	module  api.Module

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *streamWriter
	proto       *protocol

	mu     sync.Mutex
	execMu sync.Mutex
	seq    atomic.Uint64
	closed bool
}

var _ Interpreter = (*Wasm)(nil)

type guestCommand struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

// New starts the interpreter session and waits for the guest loop to signal
// readiness.
func New(cfg Config) (*Wasm, error) {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}

	ctx := context.Background()
	errb := oops.In("interp").Code("init_failed")

	wasmBytes, err := os.ReadFile(filepath.Join(cfg.AssetDir, RuntimeBinary))
	if err != nil {
		return nil, errb.Hint("run the asset downloader first").
			Wrapf(err, "read runtime binary")
	}

	rt := wazero.NewRuntimeWithConfig(ctx,
		wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, errb.Wrapf(err, "instantiate WASI")
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, errb.Wrapf(err, "compile runtime module")
	}

	w := &Wasm{
		cfg:      cfg,
		registry: hostfunc.NewRegistry(),
		runtime:  rt,
	}
	w.stdinReader, w.stdin = io.Pipe()
	w.stdout = newStreamWriter()
	w.proto = newProtocol(w.registry, w.stdin)

	// The package dir is mounted even when empty so that wheels installed
	// mid-session become importable without a restart.
	pkgPath := filepath.Join(cfg.AssetDir, packagesDir)
	if err := os.MkdirAll(pkgPath, 0o755); err != nil {
		rt.Close(ctx)
		return nil, errb.Wrapf(err, "create package dir")
	}
	fsCfg := wazero.NewFSConfig().WithReadOnlyDirMount(pkgPath, "/packages")

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(w.stdout).
		WithStderr(w.proto).
		WithStdin(w.stdinReader).
		WithArgs("python", "-c", bootstrapPy).
		WithFSConfig(fsCfg).
		WithEnv("PYTHONPATH", "/packages").
		WithName("")
	for k, v := range cfg.Env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	startErr := make(chan error, 1)
	go func() {
		mod, err := rt.InstantiateModule(ctx, compiled, moduleConfig)
		if err != nil {
			startErr <- err
			return
		}
		w.mu.Lock()
		w.module = mod
		w.mu.Unlock()
	}()

	select {
	case <-w.proto.Ready():
		return w, nil
	case err := <-startErr:
		w.Close()
		return nil, errb.Wrapf(err, "start interpreter session")
	case <-time.After(cfg.StartTimeout):
		w.Close()
		return nil, errb.Errorf("interpreter start timeout after %v", cfg.StartTimeout)
	}
}

// Run executes a chunk and waits for its completion sentinel.
func (w *Wasm) Run(ctx context.Context, code string) error {
	return w.command(ctx, guestCommand{Type: "exec", Code: code})
}

// RunPrelude executes a short bootstrap snippet. Prelude faults are
// infrastructure faults, not guest faults.
func (w *Wasm) RunPrelude(code string) error {
	if err := w.command(context.Background(), guestCommand{Type: "exec", Code: code}); err != nil {
		return oops.In("interp").Code("init_failed").Wrapf(err, "run prelude")
	}
	return nil
}

// LoadPackage makes a bundled distribution importable in the guest.
func (w *Wasm) LoadPackage(ctx context.Context, dist string) error {
	return w.command(ctx, guestCommand{Type: "load_pkg", Name: dist})
}

func (w *Wasm) command(ctx context.Context, cmd guestCommand) error {
	w.execMu.Lock()
	defer w.execMu.Unlock()

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return oops.In("interp").Code("init_failed").New("interpreter closed")
	}

	cmd.Seq = w.seq.Add(1)
	w.proto.BeginExec(cmd.Seq)

	data, err := json.Marshal(cmd)
	if err != nil {
		return oops.In("interp").Wrapf(err, "encode command")
	}
	if _, err := w.stdin.Write(append(data, '\n')); err != nil {
		return oops.In("interp").Code("init_failed").Wrapf(err, "write command")
	}

	select {
	case <-ctx.Done():
		return oops.In("interp").Code("timeout").Wrap(ctx.Err())
	case execErr := <-w.proto.Done():
		if execErr != nil {
			return oops.In("interp").Code("guest_fault").Wrap(execErr)
		}
		return nil
	}
}

// SetGlobal installs a host callable reachable from guest code via
// _pypod_call(name, args).
func (w *Wasm) SetGlobal(name string, fn hostfunc.Func) {
	w.registry.Register(name, fn)
}

// OnStdout registers the batched stdout callback.
func (w *Wasm) OnStdout(fn func(string)) {
	w.stdout.onWrite(fn)
}

// OnStderr registers the callback for non-protocol stderr text.
func (w *Wasm) OnStderr(fn func(string)) {
	w.proto.onStderr(fn)
}

// Close tears down the session. Closing the stdin pipe makes the guest loop
// see EOF and exit even if it is mid-read.
func (w *Wasm) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.stdinReader != nil {
		w.stdinReader.Close()
	}
	if w.stdin != nil {
		w.stdin.Close()
	}
	if w.module != nil {
		w.module.Close(context.Background())
	}
	if w.runtime != nil {
		w.runtime.Close(context.Background())
	}
	return nil
}

// streamWriter forwards guest stdout to a callback at the guest's own flush
// granularity, preserving emission order.
type streamWriter struct {
	mu sync.Mutex
	cb func(string)
}

func newStreamWriter() *streamWriter {
	return &streamWriter{}
}

func (s *streamWriter) Write(data []byte) (int, error) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()

	if cb != nil && len(data) > 0 {
		cb(string(data))
	}
	return len(data), nil
}

func (s *streamWriter) onWrite(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = fn
}
