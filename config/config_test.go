package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDefaults() Config {
	cfg := Default()
	cfg.PmemDirectory = "/tmp"

	return cfg
}

func TestLoadSingleWithMatrix(t *testing.T) {
	input := `
seq_reads:
  args:
    memory_range: 1048576
    access_size: 256
    exec_mode: sequential
    number_operations: 4000
  matrix:
    number_threads: [1, 2, 4]
    access_size: [64, 256]
random_writes:
  args:
    exec_mode: random
    operation: write
    run_mode: duration
    run_time: 2s
`

	suites, err := Load(strings.NewReader(input), testDefaults())
	require.NoError(t, err)
	require.Len(t, suites, 2)

	require.Equal(t, "seq_reads", suites[0].Name)
	require.Equal(t, Single, suites[0].Type)
	require.Len(t, suites[0].Runs, 6)

	// access_size sorts before number_threads, so it is the outer loop.
	first := suites[0].Runs[0].Configs[0]
	require.Equal(t, uint64(64), first.AccessSize)
	require.Equal(t, 1, first.NumberThreads)

	last := suites[0].Runs[5].Configs[0]
	require.Equal(t, uint64(256), last.AccessSize)
	require.Equal(t, 4, last.NumberThreads)
	require.Equal(t, []string{"seq_reads"}, suites[0].Runs[5].Names)

	rw := suites[1].Runs[0].Configs[0]
	require.Equal(t, Random, rw.ExecMode)
	require.Equal(t, Write, rw.Operation)
	require.Equal(t, Duration, rw.RunMode)
	require.Equal(t, 2*time.Second, rw.RunTime)
}

func TestLoadParallel(t *testing.T) {
	input := `
interference:
  type: parallel
  parallel:
    reader:
      args: {operation: read, number_threads: 2}
      matrix: {access_size: [64, 128]}
    writer:
      args: {operation: write, number_threads: 1}
`

	suites, err := Load(strings.NewReader(input), testDefaults())
	require.NoError(t, err)
	require.Len(t, suites, 1)
	require.Equal(t, Parallel, suites[0].Type)
	require.Len(t, suites[0].Runs, 2)

	for _, run := range suites[0].Runs {
		require.Equal(t, []string{"reader", "writer"}, run.Names)
		require.Len(t, run.Configs, 2)
		require.Equal(t, Read, run.Configs[0].Operation)
		require.Equal(t, Write, run.Configs[1].Operation)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"unknown type", "a:\n  type: triple\n"},
		{"unknown arg", "a:\n  args: {memroy_range: 1}\n"},
		{"unknown section", "a:\n  argz: {}\n"},
		{"unknown enum", "a:\n  args: {exec_mode: spiral}\n"},
		{"empty matrix", "a:\n  matrix: {number_threads: []}\n"},
		{"parallel one side", "a:\n  type: parallel\n  parallel:\n    x: {}\n"},
		{"parallel on single", "a:\n  parallel:\n    x: {}\n    y: {}\n"},
		{"indivisible range", "a:\n  args: {memory_range: 1000, number_threads: 3}\n"},
		{"duration without time", "a:\n  args: {run_mode: duration}\n"},
		{"bad custom op", "a:\n  args: {custom_operations: [x64], number_chunks: 1}\n"},
		{"custom op duration", "a:\n  args: {custom_operations: [r64], number_chunks: 1, run_mode: duration, run_time: 1s}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input), testDefaults())
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no pmem dir", func(c *Config) { c.PmemDirectory = "" }, true},
		{"dram needs no pmem dir", func(c *Config) {
			c.PmemDirectory = ""
			c.MemoryType = DRAM
		}, false},
		{"threads per partition mismatch", func(c *Config) {
			c.NumberThreads = 3
			c.ThreadsPerPartition = 2
		}, true},
		{"access larger than partition", func(c *Config) {
			c.MemoryRange = 1024
			c.NumberThreads = 8
			c.AccessSize = 256
		}, true},
		{"zipf alpha", func(c *Config) {
			c.ExecMode = Zipf
			c.ZipfAlpha = 0.9
		}, true},
		{"hybrid without dram", func(c *Config) { c.IsHybrid = true }, true},
		{"hybrid", func(c *Config) {
			c.IsHybrid = true
			c.DRAMMemoryRange = 1 << 20
			c.DRAMOperationRatio = 0.5
		}, false},
		{"write ratio out of range", func(c *Config) { c.WriteRatio = 1.5 }, true},
		{"custom without chunks", func(c *Config) {
			c.CustomOperations = []CustomOp{{Steps: []CustomStep{{Size: 64}}}}
		}, true},
		{"custom dram without range", func(c *Config) {
			c.NumberChunks = 10
			c.CustomOperations = []CustomOp{{Steps: []CustomStep{{Size: 64, OnDRAM: true}}}}
		}, true},
		{"custom with duration", func(c *Config) {
			c.NumberChunks = 10
			c.RunMode = Duration
			c.RunTime = time.Second
			c.CustomOperations = []CustomOp{{Steps: []CustomStep{{Size: 64}}}}
		}, true},
		{"custom", func(c *Config) {
			c.NumberChunks = 10
			c.NumberOperations = 0
			c.CustomOperations = []CustomOp{{Steps: []CustomStep{{Size: 64}}}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPartitionSizes(t *testing.T) {
	cfg := testDefaults()
	cfg.MemoryRange = 1 << 30
	cfg.DRAMMemoryRange = 1 << 20
	cfg.NumberThreads = 8
	cfg.ThreadsPerPartition = 2

	require.Equal(t, 4, cfg.Partitions())
	require.Equal(t, uint64(1<<28), cfg.PartitionSize())
	require.Equal(t, uint64(1<<18), cfg.DRAMPartitionSize())
}

func TestParseCustomOp(t *testing.T) {
	op, err := ParseCustomOp("r64, wd256,W128")
	require.NoError(t, err)
	require.Equal(t, []CustomStep{
		{Size: 64},
		{Write: true, OnDRAM: true, Size: 256},
		{Write: true, Size: 128},
	}, op.Steps)
	require.Equal(t, uint64(192), op.Size(false))
	require.Equal(t, uint64(256), op.Size(true))
	require.Equal(t, "r64,wd256,w128", op.String())

	for _, bad := range []string{"", "r", "x64", "r0", "rd", "r-1"} {
		_, err := ParseCustomOp(bad)
		require.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}

func TestEnumLookup(t *testing.T) {
	bt, err := ParseBenchmarkType("Parallel")
	require.NoError(t, err)
	require.Equal(t, Parallel, bt)
	require.Equal(t, "parallel", bt.String())
	require.Equal(t, []string{"parallel", "single"}, KnownBenchmarkTypes())

	_, err = ParseBenchmarkType("triple")
	require.ErrorIs(t, err, ErrInvalidArgument)

	text, err := Zipf.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "zipf", string(text))

	_, err = ExecMode(42).MarshalText()
	require.ErrorIs(t, err, ErrInvalidArgument)
}
