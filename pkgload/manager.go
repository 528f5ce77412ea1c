package pkgload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/pypod/pypod/imports"
)

// installerPackage is the in-guest ecosystem installer. It is itself a
// bundled package and must load before the installer strategy is usable.
const installerPackage = "micropip"

// Strategy identifies how a package is obtained.
type Strategy int

const (
	// NativeRuntime loads a distribution bundled with the runtime assets.
	NativeRuntime Strategy = iota
	// EcosystemInstaller installs from PyPI through the in-guest installer.
	EcosystemInstaller
)

func (s Strategy) String() string {
	switch s {
	case NativeRuntime:
		return "native"
	case EcosystemInstaller:
		return "installer"
	default:
		return "unknown"
	}
}

// Result is the outcome of one load attempt for one package.
type Result struct {
	Package  string
	OK       bool
	Strategy Strategy
	Err      string
	Elapsed  time.Duration
	// Cached is true when the result came from the load cache without
	// touching the interpreter.
	Cached bool
}

// Runner is the slice of the embedded interpreter the manager needs: chunk
// execution for the installer strategy and the native package loader.
type Runner interface {
	Run(ctx context.Context, code string) error
	LoadPackage(ctx context.Context, dist string) error
}

// Config controls manager behavior. Immutable after construction.
type Config struct {
	// CacheEnabled memoizes load outcomes across chunks.
	CacheEnabled bool
	// LoadTimeout bounds each individual load attempt. Zero disables it.
	LoadTimeout time.Duration
	// PreloadEssentials loads the bootstrap set (the installer) during
	// Initialize.
	PreloadEssentials bool
	// Verbose logs every load at info level instead of debug.
	Verbose bool
}

// DefaultConfig returns the standard manager configuration.
func DefaultConfig() Config {
	return Config{
		CacheEnabled:      true,
		LoadTimeout:       60 * time.Second,
		PreloadEssentials: true,
	}
}

// Manager orchestrates strategy-aware, cache-aware package loading against a
// single shared interpreter.
type Manager struct {
	cfg            Config
	runner         Runner
	cache          *Cache
	installerReady atomic.Bool
	log            *slog.Logger
}

// NewManager creates a Manager bound to an interpreter.
func NewManager(runner Runner, cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		runner: runner,
		cache:  NewCache(),
		log:    slog.With("component", "pkgload"),
	}
}

// Initialize preloads the bootstrap package set when configured. Bootstrap
// failures are warnings, not errors: user-code loading stays best-effort,
// except that the installer strategy is unusable until the installer itself
// has loaded.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.cfg.PreloadEssentials {
		return nil
	}

	for _, name := range []string{installerPackage} {
		res := m.LoadPackage(ctx, name)
		if !res.OK {
			m.log.Warn("bootstrap package failed to load",
				"package", name, "error", res.Err)
			continue
		}
		if name == installerPackage {
			m.installerReady.Store(true)
		}
	}
	return nil
}

// InstallerReady reports whether the ecosystem installer has loaded.
func (m *Manager) InstallerReady() bool {
	return m.installerReady.Load()
}

// LoadPackagesFromCode scans a chunk for imports and loads every unique
// top-level non-stdlib package it references.
func (m *Manager) LoadPackagesFromCode(ctx context.Context, code string) []Result {
	names := imports.ExtractPackageNames(imports.Scan(code))
	return m.LoadPackages(ctx, names)
}

// LoadPackages loads each named package concurrently and waits for all
// attempts to settle. One package's failure never aborts its siblings, and
// the returned slice preserves input order regardless of completion order.
func (m *Manager) LoadPackages(ctx context.Context, names []string) []Result {
	results := make([]Result, len(names))

	var wg sync.WaitGroup
	wg.Add(len(names))
	for i, name := range names {
		go func(i int, name string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{
						Package: name,
						Err:     fmt.Sprintf("load dispatch panicked: %v", r),
					}
				}
			}()
			results[i] = m.LoadPackage(ctx, name)
		}(i, name)
	}
	wg.Wait()

	return results
}

// LoadPackage resolves and loads a single package: cached outcomes return
// immediately, otherwise the package is classified and loaded via the native
// or installer strategy, and the outcome is recorded in the cache.
func (m *Manager) LoadPackage(ctx context.Context, name string) Result {
	strategy := EcosystemInstaller
	if IsNativelyAvailable(name) {
		strategy = NativeRuntime
	}

	if m.cfg.CacheEnabled {
		if m.cache.Has(name) {
			return Result{Package: name, OK: true, Strategy: strategy, Cached: true}
		}
		if msg, ok := m.cache.Failure(name); ok {
			return Result{Package: name, Strategy: strategy, Err: msg, Cached: true}
		}
	}

	if m.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	switch strategy {
	case NativeRuntime:
		err = m.loadNative(ctx, name)
	case EcosystemInstaller:
		err = m.loadViaInstaller(ctx, name)
	}
	elapsed := time.Since(start)

	res := Result{Package: name, Strategy: strategy, Elapsed: elapsed}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = oops.In("pkgload").Code("timeout").With("package", name).
				Wrapf(err, "load timed out after %v", m.cfg.LoadTimeout)
		}
		res.Err = err.Error()
		m.cache.RecordFailure(name, res.Err)
		m.logLoad("package load failed", name, strategy, elapsed, err)
		return res
	}

	res.OK = true
	m.cache.RecordSuccess(name)
	m.logLoad("package loaded", name, strategy, elapsed, nil)
	return res
}

func (m *Manager) loadNative(ctx context.Context, name string) error {
	dist := CanonicalName(name)
	if err := m.runner.LoadPackage(ctx, dist); err != nil {
		return oops.In("pkgload").Code("load_failed").
			With("package", name).With("distribution", dist).
			Wrapf(err, "native load of %s", dist)
	}
	return nil
}

func (m *Manager) loadViaInstaller(ctx context.Context, name string) error {
	if !m.installerReady.Load() {
		return oops.In("pkgload").Code("installer_not_ready").With("package", name).
			Errorf("ecosystem installer not ready; cannot install %q", name)
	}

	// Transient network faults retry within this single attempt; a settled
	// failure is cached and not retried on later chunks.
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		cmd := fmt.Sprintf("import %s\n%s.install(%q)", installerPackage, installerPackage, name)
		if runErr := m.runner.Run(ctx, cmd); runErr != nil {
			return retry.RetryableError(runErr)
		}
		return nil
	})
	if err != nil {
		return oops.In("pkgload").Code("load_failed").With("package", name).
			Wrapf(err, "installer failed for %s", name)
	}
	return nil
}

func (m *Manager) logLoad(msg, name string, strategy Strategy, elapsed time.Duration, err error) {
	attrs := []any{"package", name, "strategy", strategy.String(), "elapsed", elapsed}
	if err != nil {
		attrs = append(attrs, "error", err)
		m.log.Warn(msg, attrs...)
		return
	}
	if m.cfg.Verbose {
		m.log.Info(msg, attrs...)
	} else {
		m.log.Debug(msg, attrs...)
	}
}

// Stats returns a snapshot of the load cache.
func (m *Manager) Stats() Stats { return m.cache.Stats() }

// ClearCache drops all cached load outcomes.
func (m *Manager) ClearCache() { m.cache.Clear() }

// IsLoaded reports whether name has loaded successfully.
func (m *Manager) IsLoaded(name string) bool { return m.cache.Has(name) }

// FailedPackages returns the failure message for every failed package.
func (m *Manager) FailedPackages() map[string]string { return m.cache.Stats().Failed }
