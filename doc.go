// Package pypod embeds a Python interpreter in a host worker process and
// executes user-submitted code chunks against it, with automatic dependency
// resolution.
//
// # Overview
//
// The interpreter runs as a persistent WebAssembly session. Before a chunk
// executes, its import statements are scanned, each dependency is classified
// as bundled-with-the-runtime or installable-from-PyPI, and missing packages
// are loaded with caching and partial-failure tolerance. Output streams back
// to the host while the chunk runs.
//
// # Basic Usage
//
//	ev := evaluator.New(host)
//	defer ev.Close()
//
//	// The interpreter starts lazily on the first chunk; state persists.
//	ev.EvaluateChunk(ctx, `import pandas as pd
//	df = pd.DataFrame({"a": [1, 2]})
//	print(df.sum())`)
//	ev.EvaluateChunk(ctx, `print(df.count())`)
//
// The host implements [evaluator.PluginHost]: an output sink and a
// non-blocking input poll backing the guest's input() builtin.
//
// See the [evaluator], [pkgload], [imports], [interp], and [hostfunc]
// packages for detailed API documentation.
package pypod
