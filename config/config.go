// Package config defines benchmark configurations and loads them from YAML
// suite files.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config describes one side of a benchmark run. It is read-only once a
// benchmark has been built from it.
type Config struct {
	MemoryRange         uint64             `yaml:"memory_range" json:"memory_range" validate:"gt=0"`
	DRAMMemoryRange     uint64             `yaml:"dram_memory_range" json:"dram_memory_range"`
	AccessSize          uint64             `yaml:"access_size" json:"access_size" validate:"gt=0"`
	ExecMode            ExecMode           `yaml:"exec_mode" json:"exec_mode"`
	ZipfAlpha           float64            `yaml:"zipf_alpha" json:"zipf_alpha"`
	Operation           OperationType      `yaml:"operation" json:"operation"`
	WriteRatio          float64            `yaml:"write_ratio" json:"write_ratio" validate:"gte=0,lte=1"`
	NumberOperations    uint64             `yaml:"number_operations" json:"number_operations"`
	NumberThreads       int                `yaml:"number_threads" json:"number_threads" validate:"gt=0,lte=65535"`
	ThreadsPerPartition int                `yaml:"threads_per_partition" json:"threads_per_partition" validate:"gt=0"`
	OpsPerChunk         uint64             `yaml:"ops_per_chunk" json:"ops_per_chunk" validate:"gt=0"`
	NumberChunks        uint64             `yaml:"number_chunks" json:"number_chunks"`
	RunMode             RunMode            `yaml:"run_mode" json:"run_mode"`
	RunTime             time.Duration      `yaml:"run_time" json:"run_time_ns" validate:"gte=0"`
	PmemDirectory       string             `yaml:"pmem_directory" json:"pmem_directory"`
	MemoryType          MemoryType         `yaml:"memory_type" json:"memory_type"`
	IsHybrid            bool               `yaml:"is_hybrid" json:"is_hybrid"`
	DRAMOperationRatio  float64            `yaml:"dram_operation_ratio" json:"dram_operation_ratio" validate:"gte=0,lte=1"`
	DRAMHugePages       bool               `yaml:"dram_huge_pages" json:"dram_huge_pages"`
	Persist             PersistInstruction `yaml:"persist" json:"persist"`
	CustomOperations    []CustomOp         `yaml:"custom_operations" json:"custom_operations,omitempty"`
	Seed                int64              `yaml:"seed" json:"seed"`
}

// Default returns the configuration every benchmark starts from before its
// arguments are applied.
func Default() Config {
	return Config{
		MemoryRange:         1 << 30,
		AccessSize:          256,
		ExecMode:            Sequential,
		ZipfAlpha:           1.1,
		Operation:           Read,
		NumberOperations:    1 << 20,
		NumberThreads:       1,
		ThreadsPerPartition: 1,
		OpsPerChunk:         128,
		RunMode:             Fixed,
		MemoryType:          Device,
		Persist:             PersistNone,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the cross-field constraints the engine
// relies on. All failures wrap ErrInvalidArgument.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if c.NumberThreads%c.ThreadsPerPartition != 0 {
		return invalid("number_threads (%d) must be a multiple of threads_per_partition (%d)",
			c.NumberThreads, c.ThreadsPerPartition)
	}

	partitions := uint64(c.Partitions())
	if c.MemoryRange%partitions != 0 {
		return invalid("memory_range (%d) must be divisible by the partition count (%d)",
			c.MemoryRange, partitions)
	}

	if c.PartitionSize() < c.AccessSize {
		return invalid("partition size %d is smaller than access_size %d",
			c.PartitionSize(), c.AccessSize)
	}

	if c.MemoryType == Device && c.PmemDirectory == "" {
		return invalid("pmem_directory is required for memory_type device")
	}

	if c.ExecMode == Zipf && c.ZipfAlpha <= 1 {
		return invalid("zipf_alpha must be greater than 1, got %g", c.ZipfAlpha)
	}

	if c.RunMode == Duration && c.RunTime <= 0 {
		return invalid("run_mode duration requires a positive run_time")
	}

	if c.IsHybrid {
		if c.DRAMMemoryRange == 0 {
			return invalid("is_hybrid requires dram_memory_range")
		}
		if c.DRAMMemoryRange%partitions != 0 {
			return invalid("dram_memory_range (%d) must be divisible by the partition count (%d)",
				c.DRAMMemoryRange, partitions)
		}
		if c.DRAMPartitionSize() < c.AccessSize {
			return invalid("dram partition size %d is smaller than access_size %d",
				c.DRAMPartitionSize(), c.AccessSize)
		}
	}

	if c.UsesCustomOperations() {
		return c.validateCustom()
	}

	if c.NumberOperations == 0 {
		return invalid("number_operations must be positive")
	}

	return nil
}

func (c *Config) validateCustom() error {
	if c.NumberChunks == 0 {
		return invalid("custom_operations require number_chunks")
	}

	if c.RunMode == Duration {
		return invalid("custom_operations run number_chunks chunks, run_mode duration is not supported")
	}

	for _, op := range c.CustomOperations {
		if len(op.Steps) == 0 {
			return invalid("custom operation has no steps")
		}
		if op.Size(false) > c.PartitionSize() {
			return invalid("custom operation %q does not fit a %d byte partition",
				op, c.PartitionSize())
		}

		dram := op.Size(true)
		if dram == 0 {
			continue
		}
		if c.DRAMMemoryRange == 0 {
			return invalid("custom operation %q targets DRAM but dram_memory_range is 0", op)
		}
		if c.DRAMMemoryRange%uint64(c.Partitions()) != 0 || dram > c.DRAMPartitionSize() {
			return invalid("custom operation %q does not fit a %d byte dram partition",
				op, c.DRAMPartitionSize())
		}
	}

	return nil
}

// Partitions returns the number of partitions the memory range is split into.
func (c *Config) Partitions() int {
	return c.NumberThreads / c.ThreadsPerPartition
}

// PartitionSize returns the byte length of one device partition.
func (c *Config) PartitionSize() uint64 {
	return c.MemoryRange / uint64(c.Partitions())
}

// DRAMPartitionSize returns the byte length of one DRAM partition.
func (c *Config) DRAMPartitionSize() uint64 {
	return c.DRAMMemoryRange / uint64(c.Partitions())
}

// UsesCustomOperations reports whether the workload is made of timed custom
// operations instead of a pre-generated operation list.
func (c *Config) UsesCustomOperations() bool {
	return len(c.CustomOperations) > 0
}

// NeedsDRAM reports whether a DRAM comparison region has to be mapped.
func (c *Config) NeedsDRAM() bool {
	return c.DRAMMemoryRange > 0
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.CustomOperations = slices.Clone(c.CustomOperations)
	for i := range c.CustomOperations {
		c.CustomOperations[i].Steps = slices.Clone(c.CustomOperations[i].Steps)
	}

	return c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
