package harness

import (
	"fmt"
	"log/slog"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/region"
)

// BuildOptions describe how benchmarks obtain their memory.
type BuildOptions struct {
	// ExistingFiles are backing files used instead of fresh owned files,
	// indexed by side. Empty entries fall back to owned files. Existing
	// files are never removed.
	ExistingFiles []string

	// Map controls how device files are mapped.
	Map region.Options

	Logger *slog.Logger
}

// KnownTypes returns the names accepted as benchmark type.
func KnownTypes() []string {
	return config.KnownBenchmarkTypes()
}

// sidesOf returns the number of configurations a benchmark type runs.
func sidesOf(typ config.BenchmarkType) (int, error) {
	switch typ {
	case config.Single:
		return 1, nil
	case config.Parallel:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: unknown benchmark type %d (known: %v)",
			config.ErrInvalidArgument, int(typ), KnownTypes())
	}
}

// Build creates the benchmark of type typ for one run of a suite.
func Build(name string, typ config.BenchmarkType, run config.Run, opts BuildOptions) (Benchmark, error) {
	want, err := sidesOf(typ)
	if err != nil {
		return nil, err
	}

	if len(run.Configs) != want {
		return nil, fmt.Errorf("%w: %s benchmark %q needs %d configs, got %d",
			config.ErrInvalidArgument, typ, name, want, len(run.Configs))
	}

	c, err := newCore(name, run, opts)
	if err != nil {
		return nil, err
	}

	switch typ {
	case config.Parallel:
		return &ParallelBenchmark{core: c}, nil
	default:
		return &SingleBenchmark{core: c}, nil
	}
}

func newCore(name string, run config.Run, opts BuildOptions) (core, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := core{
		name:   name,
		state:  StateCreated,
		opts:   opts.Map,
		logger: logger.With(slog.String("benchmark", name)),
	}

	for i := range run.Configs {
		cfg := run.Configs[i].Clone()
		if err := cfg.Validate(); err != nil {
			return core{}, fmt.Errorf("benchmark %q config %d: %w", name, i, err)
		}

		sideName := name
		if i < len(run.Names) && run.Names[i] != "" {
			sideName = run.Names[i]
		}

		c.sides = append(c.sides, &side{
			name:   sideName,
			cfg:    &cfg,
			region: regionFor(&cfg, i, opts.ExistingFiles),
		})
	}

	return c, nil
}

func regionFor(cfg *config.Config, index int, existing []string) region.MemoryRegion {
	if cfg.MemoryType == config.DRAM {
		return region.DRAMRegion()
	}

	if index < len(existing) && existing[index] != "" {
		return region.ExistingRegion(existing[index])
	}

	return region.NewOwnedRegion(cfg.PmemDirectory)
}
