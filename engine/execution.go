// Package engine runs the worker threads of a benchmark: it partitions the
// mapped memory, distributes pre-generated work through lock-free claims,
// synchronizes the start of the timed phase and aggregates the results.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/workload"
)

// Execution is the shared state of one benchmark run. It is owned by the
// orchestrator and must outlive every worker referencing it.
type Execution struct {
	// Ops is the full operation list. Workers fill disjoint parts of it
	// before the generation barrier and only read it afterwards.
	Ops []workload.Operation

	queue   *WorkQueue
	custom  *ChunkCounter
	barrier *Barrier
	fault   Fault

	runTime  time.Duration
	start    time.Time
	deadline time.Time
}

// NewExecution allocates the execution state for cfg.
func NewExecution(cfg *config.Config) *Execution {
	e := &Execution{
		barrier: NewBarrier(cfg.NumberThreads),
	}

	if cfg.RunMode == config.Duration {
		e.runTime = cfg.RunTime
	}

	if cfg.UsesCustomOperations() {
		e.custom = NewChunkCounter(cfg.NumberChunks)
	} else {
		e.Ops = make([]workload.Operation, cfg.NumberOperations)
		e.queue = NewWorkQueue(cfg.NumberOperations, cfg.OpsPerChunk)
	}

	return e
}

// Fault returns the fault flag of the run.
func (e *Execution) Fault() *Fault { return &e.fault }

// Start returns the time the timed phase began.
func (e *Execution) Start() time.Time { return e.start }

// Deadline returns the end of a duration run, zero for fixed-size runs.
func (e *Execution) Deadline() time.Time { return e.deadline }

// RemainingChunks returns the raw custom chunk counter.
func (e *Execution) RemainingChunks() int64 {
	if e.custom == nil {
		return 0
	}

	return e.custom.Remaining()
}

func (e *Execution) waitForGeneration() {
	e.barrier.Wait(e.markStart)
}

func (e *Execution) markStart() {
	e.start = time.Now()
	if e.runTime > 0 {
		e.deadline = e.start.Add(e.runTime)
	}
}

// Fault records that a worker failed. Workers poll it at chunk boundaries;
// the orchestrator checks it after joining them.
type Fault struct {
	tripped atomic.Bool

	mu  sync.Mutex
	err error
}

// Trip sets the flag. The first error is kept.
func (f *Fault) Trip(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()

	f.tripped.Store(true)
}

// Tripped reports whether any worker failed.
func (f *Fault) Tripped() bool { return f.tripped.Load() }

// Err returns the first recorded failure.
func (f *Fault) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.err
}
