package engine

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/region"
	"github.com/weiihann/mapbench/workload"
)

// fillByte is written by write operations.
const fillByte = 0x5A

// RunWorker executes one benchmark thread: it generates its share of the
// operation list, waits for all threads at the generation barrier and then
// claims and executes chunks until the work is exhausted, the deadline has
// passed or another thread has faulted. Failures, including hardware faults
// on the mapped memory, are recorded in the execution's Fault and never
// escape the call.
func RunWorker(tc *ThreadRunConfig) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))

	exec := tc.Execution
	released := false

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		exec.fault.Trip(fmt.Errorf("thread %d: %v", tc.ThreadNum, r))

		// The other threads must not block at the barrier forever.
		if !released {
			exec.waitForGeneration()
		}
	}()

	tc.generate()
	exec.waitForGeneration()
	released = true

	w := newWorker(tc)

	// Duration runs are measured against the shared start the deadline was
	// derived from.
	begin := time.Now()
	if !exec.deadline.IsZero() {
		begin = exec.start
	}

	switch {
	case exec.custom != nil:
		w.runCustom()
	case exec.deadline.IsZero():
		w.runFixed()
	default:
		w.runDuration()
	}

	tc.Slot.Bytes = w.bytes
	tc.Slot.Operations = w.ops
	tc.Slot.Duration = ExecutionDuration{Begin: begin, End: time.Now()}
}

func (tc *ThreadRunConfig) generate() {
	if tc.GenerationCount == 0 {
		return
	}

	ops := tc.Execution.Ops
	gen := workload.NewGenerator(tc.Config, workload.ThreadSeed(tc.Config.Seed, tc.ThreadNum))
	chunk := max(tc.OpsPerChunk, 1)
	end := tc.GenerationStart + tc.GenerationCount

	for c := range tc.NumChunks {
		lo := tc.GenerationStart + c*chunk
		hi := min(lo+chunk, end)
		gen.Fill(ops[lo:hi], lo)
	}
}

type worker struct {
	tc      *ThreadRunConfig
	exec    *Execution
	buf     []byte
	persist bool

	bytes uint64
	ops   uint64
}

func newWorker(tc *ThreadRunConfig) *worker {
	size := tc.Config.AccessSize
	for _, op := range tc.Config.CustomOperations {
		for _, step := range op.Steps {
			size = max(size, step.Size)
		}
	}

	buf := make([]byte, size)
	for i := range buf {
		buf[i] = fillByte
	}

	return &worker{
		tc:      tc,
		exec:    tc.Execution,
		buf:     buf,
		persist: tc.Config.Persist == config.PersistMsync,
	}
}

func (w *worker) runFixed() {
	for !w.exec.fault.Tripped() {
		c, ok := w.exec.queue.Claim()
		if !ok || !w.runChunk(c) {
			return
		}
	}
}

func (w *worker) runDuration() {
	for !w.exec.fault.Tripped() {
		c, ok := w.exec.queue.ClaimUntil(w.exec.deadline)
		if !ok || !w.runChunk(c) {
			return
		}
	}
}

func (w *worker) runChunk(c Chunk) bool {
	ops := w.exec.Ops
	n := uint64(len(ops))

	for i := range c.Len {
		op := ops[c.Index(i, n)]
		if err := w.execute(op); err != nil {
			w.fail(err)

			return false
		}

		w.bytes += op.Size
		w.ops++
	}

	return true
}

func (w *worker) execute(op workload.Operation) error {
	p := w.tc.Partition
	if op.OnDRAM {
		p = w.tc.DRAMPartition
	}

	return w.access(p, op.Offset, op.Size, op.Kind == workload.Write)
}

func (w *worker) access(p region.Partition, off, size uint64, write bool) error {
	buf := w.buf[:size]

	if !write {
		_, err := p.ReadAt(buf, int64(off))

		return err
	}

	if _, err := p.WriteAt(buf, int64(off)); err != nil {
		return err
	}

	if w.persist {
		return p.Sync(off, size)
	}

	return nil
}

// runCustom executes OpsPerChunk custom operations per claimed chunk and
// records the latency of each one.
func (w *worker) runCustom() {
	cfg := w.tc.Config
	gen := workload.NewGenerator(cfg, workload.ThreadSeed(cfg.Seed, w.tc.ThreadNum))
	ops := cfg.CustomOperations
	next := w.tc.ThreadNum

	for !w.exec.fault.Tripped() && w.exec.custom.Claim() {
		for range w.tc.OpsPerChunk {
			op := ops[next%len(ops)]
			next++

			devBase := gen.CustomBase(op.Size(false), w.tc.Partition.Len())

			var dramBase uint64
			if w.tc.DRAMPartition.Valid() {
				dramBase = gen.CustomBase(op.Size(true), w.tc.DRAMPartition.Len())
			}

			begin := time.Now()

			n, err := w.runCustomOp(op, devBase, dramBase)
			if err != nil {
				w.fail(err)

				return
			}

			w.tc.Slot.recordLatency(time.Since(begin))
			w.bytes += n
			w.ops++
		}
	}
}

func (w *worker) runCustomOp(op config.CustomOp, devBase, dramBase uint64) (uint64, error) {
	var total uint64

	for _, step := range op.Steps {
		p, cursor := w.tc.Partition, &devBase
		if step.OnDRAM {
			p, cursor = w.tc.DRAMPartition, &dramBase
		}

		if err := w.access(p, *cursor, step.Size, step.Write); err != nil {
			return total, err
		}

		*cursor += step.Size
		total += step.Size
	}

	return total, nil
}

func (w *worker) fail(err error) {
	w.exec.fault.Trip(fmt.Errorf("thread %d: %w", w.tc.ThreadNum, err))
}
