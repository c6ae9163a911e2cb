package engine

import (
	"fmt"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/region"
)

// Span is a half-open byte range [Start, Start+Len).
type Span struct {
	Start uint64
	Len   uint64
}

// Partitions splits memoryRange between threads. Consecutive groups of
// threadsPerPartition threads share one partition; with one thread per
// partition thread i owns [i*R/T, (i+1)*R/T).
func Partitions(memoryRange uint64, threads, threadsPerPartition int) []Span {
	if threads <= 0 || threadsPerPartition <= 0 {
		return nil
	}

	size := memoryRange / uint64(threads/threadsPerPartition)
	spans := make([]Span, threads)

	for i := range spans {
		spans[i] = Span{Start: uint64(i/threadsPerPartition) * size, Len: size}
	}

	return spans
}

// ThreadRunConfig is everything one worker needs. It is not modified once
// the workers are started; Execution and Slot are shared with the
// orchestrator, Slot exclusively written by this thread.
type ThreadRunConfig struct {
	ThreadNum           int
	Partition           region.Partition
	DRAMPartition       region.Partition
	ThreadsPerPartition int
	OpsPerChunk         uint64
	NumChunks           uint64

	// GenerationStart and GenerationCount select the part of the
	// operation list this thread generates before the barrier.
	GenerationStart uint64
	GenerationCount uint64

	Config    *config.Config
	Execution *Execution
	Slot      *ThreadResult
}

// SetUp builds one ThreadRunConfig per thread. dram may be nil when the
// config has no DRAM range.
func SetUp(
	cfg *config.Config,
	device, dram *region.Mapping,
	exec *Execution,
	result *Result,
) ([]ThreadRunConfig, error) {
	threads := cfg.NumberThreads

	if len(result.Slots) != threads {
		return nil, fmt.Errorf("result has %d slots for %d threads", len(result.Slots), threads)
	}

	if device == nil || device.Len() < cfg.MemoryRange {
		return nil, fmt.Errorf("device mapping smaller than memory range %d", cfg.MemoryRange)
	}

	if cfg.NeedsDRAM() && (dram == nil || dram.Len() < cfg.DRAMMemoryRange) {
		return nil, fmt.Errorf("dram mapping smaller than dram range %d", cfg.DRAMMemoryRange)
	}

	spans := Partitions(cfg.MemoryRange, threads, cfg.ThreadsPerPartition)

	var dramSpans []Span
	if cfg.NeedsDRAM() {
		dramSpans = Partitions(cfg.DRAMMemoryRange, threads, cfg.ThreadsPerPartition)
	}

	total := uint64(len(exec.Ops))
	chunk := max(cfg.OpsPerChunk, 1)
	configs := make([]ThreadRunConfig, threads)

	for i := range configs {
		part, err := device.Partition(spans[i].Start, spans[i].Len)
		if err != nil {
			return nil, fmt.Errorf("thread %d partition: %w", i, err)
		}

		var dramPart region.Partition
		if dramSpans != nil {
			dramPart, err = dram.Partition(dramSpans[i].Start, dramSpans[i].Len)
			if err != nil {
				return nil, fmt.Errorf("thread %d dram partition: %w", i, err)
			}
		}

		first := total * uint64(i) / uint64(threads)
		last := total * uint64(i+1) / uint64(threads)

		configs[i] = ThreadRunConfig{
			ThreadNum:           i,
			Partition:           part,
			DRAMPartition:       dramPart,
			ThreadsPerPartition: cfg.ThreadsPerPartition,
			OpsPerChunk:         cfg.OpsPerChunk,
			NumChunks:           (last - first + chunk - 1) / chunk,
			GenerationStart:     first,
			GenerationCount:     last - first,
			Config:              cfg,
			Execution:           exec,
			Slot:                &result.Slots[i],
		}
	}

	return configs, nil
}
