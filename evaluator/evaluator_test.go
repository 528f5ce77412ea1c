package evaluator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypod/pypod/hostfunc"
	"github.com/pypod/pypod/interp"
	"github.com/pypod/pypod/pkgload"
)

type fakeInterp struct {
	mu       sync.Mutex
	runErr   error
	runCalls []string
	loads    []string
	preludes []string
	globals  map[string]hostfunc.Func
	stdout   func(string)
	closed   bool
}

func newFakeInterp() *fakeInterp {
	return &fakeInterp{globals: make(map[string]hostfunc.Func)}
}

func (f *fakeInterp) Run(_ context.Context, code string) error {
	f.mu.Lock()
	f.runCalls = append(f.runCalls, code)
	err := f.runErr
	cb := f.stdout
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if cb != nil {
		cb("ran: " + code + "\n")
	}
	return nil
}

func (f *fakeInterp) RunPrelude(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preludes = append(f.preludes, code)
	return nil
}

func (f *fakeInterp) LoadPackage(_ context.Context, dist string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, dist)
	return nil
}

func (f *fakeInterp) SetGlobal(name string, fn hostfunc.Func) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.globals[name] = fn
}

func (f *fakeInterp) OnStdout(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdout = fn
}

func (f *fakeInterp) OnStderr(func(string)) {}

func (f *fakeInterp) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ interp.Interpreter = (*fakeInterp)(nil)

type fakeHost struct {
	mu     sync.Mutex
	output []string
	input  []string
}

func (h *fakeHost) SendOutput(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.output = append(h.output, text)
}

func (h *fakeHost) TryRequestInput() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.input) == 0 {
		return "", false
	}
	line := h.input[0]
	h.input = h.input[1:]
	return line, true
}

func (h *fakeHost) lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.output...)
}

func newTestEvaluator(host *fakeHost, fi *fakeInterp, opts ...Option) *Evaluator {
	base := []Option{
		WithInterpreterFactory(func() (interp.Interpreter, error) { return fi, nil }),
		WithPackageConfig(pkgload.Config{CacheEnabled: true, PreloadEssentials: true}),
	}
	return New(host, append(base, opts...)...)
}

func TestEvaluateChunkRunsCodeAndStreamsOutput(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	e := newTestEvaluator(host, fi)

	require.NoError(t, e.EvaluateChunk(context.Background(), `print("hi")`))

	assert.Contains(t, fi.runCalls, `print("hi")`)
	assert.Contains(t, host.lines(), "ran: print(\"hi\")\n")
	assert.True(t, e.Ready())
}

func TestInitializationIsSingleFlight(t *testing.T) {
	host := &fakeHost{}
	var created atomic.Int32
	e := New(host,
		WithInterpreterFactory(func() (interp.Interpreter, error) {
			created.Add(1)
			time.Sleep(20 * time.Millisecond)
			return newFakeInterp(), nil
		}),
		WithPackageConfig(pkgload.Config{PreloadEssentials: false}),
	)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.EvaluateChunk(context.Background(), "x = 1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "exactly one initialization")
}

func TestInitFailureResetsAndRetries(t *testing.T) {
	host := &fakeHost{}
	var attempts atomic.Int32
	e := New(host,
		WithInterpreterFactory(func() (interp.Interpreter, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("asset missing")
			}
			return newFakeInterp(), nil
		}),
		WithPackageConfig(pkgload.Config{PreloadEssentials: false}),
	)

	err := e.EvaluateChunk(context.Background(), "x = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset missing")
	assert.False(t, e.Ready())

	require.NoError(t, e.EvaluateChunk(context.Background(), "x = 1"))
	assert.True(t, e.Ready())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestGuestFaultReportedNotReturned(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	fi.runErr = oops.Code("guest_fault").
		Wrap(errors.New("ZeroDivisionError: division by zero"))
	e := newTestEvaluator(host, fi)

	require.NoError(t, e.EvaluateChunk(context.Background(), "1/0"))
	assert.Contains(t, host.lines(), "Error: ZeroDivisionError: division by zero\n")
}

func TestInfrastructureFaultReturned(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	fi.runErr = errors.New("pipe closed")
	e := newTestEvaluator(host, fi)

	err := e.EvaluateChunk(context.Background(), "x = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestPackageFailureWarnsAndProceeds(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	// Installer never preloaded, so the unrecognized import cannot install.
	e := newTestEvaluator(host, fi,
		WithPackageConfig(pkgload.Config{PreloadEssentials: false}))

	require.NoError(t, e.EvaluateChunk(context.Background(), "import notarealdist\nprint(1)"))

	var warned bool
	for _, line := range host.lines() {
		if line == "Warning: failed to load packages: notarealdist\n" {
			warned = true
		}
	}
	assert.True(t, warned, "warning line listing the failed package")
	assert.Contains(t, fi.runCalls, "import notarealdist\nprint(1)",
		"chunk still executes after a package failure")
}

func TestNativeImportsLoadBeforeChunkRuns(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	e := newTestEvaluator(host, fi,
		WithPackageConfig(pkgload.Config{CacheEnabled: true, PreloadEssentials: false}))

	require.NoError(t, e.EvaluateChunk(context.Background(), "import numpy\nimport cv2"))

	assert.ElementsMatch(t, []string{"numpy", "opencv-python"}, fi.loads)
}

func TestInputBridge(t *testing.T) {
	host := &fakeHost{input: []string{"alice"}}
	fi := newFakeInterp()
	e := newTestEvaluator(host, fi)

	require.NoError(t, e.EvaluateChunk(context.Background(), "x = 1"))

	fn, ok := fi.globals["host_input"]
	require.True(t, ok, "host_input installed as a guest callable")

	got, err := fn(context.Background(), map[string]any{"prompt": "name? "})
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
	assert.Contains(t, host.lines(), "name? ", "prompt forwarded before polling")

	// Queue drained: the guest gets an empty string, never a blocked thread.
	got, err = fn(context.Background(), map[string]any{"prompt": ""})
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestInputPreludeInstalled(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	e := newTestEvaluator(host, fi)

	require.NoError(t, e.EvaluateChunk(context.Background(), "x = 1"))

	require.Len(t, fi.preludes, 1)
	assert.Contains(t, fi.preludes[0], "builtins.input")
}

func TestInstallerPreload(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	e := newTestEvaluator(host, fi)

	require.NoError(t, e.EvaluateChunk(context.Background(), "x = 1"))

	assert.Contains(t, fi.loads, "micropip", "installer preloaded at init")
	stats, ok := e.PackageStats()
	require.True(t, ok)
	assert.Contains(t, stats.Loaded, "micropip")
}

func TestCloseShutsDownInterpreter(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	e := newTestEvaluator(host, fi)

	require.NoError(t, e.EvaluateChunk(context.Background(), "x = 1"))
	require.NoError(t, e.Close())
	assert.True(t, fi.closed)
}

func TestCloseBeforeInitIsNoop(t *testing.T) {
	e := New(&fakeHost{})
	assert.NoError(t, e.Close())
}

func TestCloseDuringInitShutsDownFreshInterpreter(t *testing.T) {
	host := &fakeHost{}
	fi := newFakeInterp()
	entered := make(chan struct{})
	release := make(chan struct{})
	e := New(host,
		WithInterpreterFactory(func() (interp.Interpreter, error) {
			close(entered)
			<-release
			return fi, nil
		}),
		WithPackageConfig(pkgload.Config{PreloadEssentials: false}),
	)

	done := make(chan error, 1)
	go func() { done <- e.EvaluateChunk(context.Background(), "x = 1") }()

	<-entered
	require.NoError(t, e.Close())
	close(release)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	case <-time.After(time.Second):
		t.Fatal("chunk did not return after close")
	}

	fi.mu.Lock()
	closed := fi.closed
	fi.mu.Unlock()
	assert.True(t, closed, "interpreter created mid-close must be shut down")
	assert.False(t, e.Ready())

	// The evaluator stays closed; later chunks fail fast.
	assert.Error(t, e.EvaluateChunk(context.Background(), "x = 2"))
}
