// Package harness drives benchmarks through their lifecycle: it provisions
// memory, sets up and runs the worker threads of every side and tears
// everything down again.
package harness

import "github.com/weiihann/mapbench/config"

// RunResult holds the outcome of one completed benchmark run.
type RunResult struct {
	Benchmark string
	Type      config.BenchmarkType
	Sides     []NamedReport

	// Results is the machine-readable form written to result files.
	Results map[string]any
}

func newRunResult(bm Benchmark) RunResult {
	return RunResult{
		Benchmark: bm.Name(),
		Type:      bm.Type(),
		Sides:     bm.Reports(),
		Results:   bm.Results(),
	}
}
