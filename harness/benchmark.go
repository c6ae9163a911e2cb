package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/engine"
	"github.com/weiihann/mapbench/region"
	"github.com/weiihann/mapbench/workload"
)

var (
	// ErrInvalidState is returned when a lifecycle step is called out of
	// order.
	ErrInvalidState = errors.New("invalid benchmark state")

	// ErrExecutionFailed is returned when a worker faulted during a run.
	ErrExecutionFailed = errors.New("execution failed, check logs for more details")
)

// State is the lifecycle position of a benchmark.
type State int

// Benchmark states in lifecycle order.
const (
	StateCreated State = iota
	StateDataGenerated
	StateSetUp
	StateRunning
	StateCompleted
	StateFailed
	StateTornDown
)

var stateNames = [...]string{
	"created", "data_generated", "set_up", "running", "completed", "failed", "torn_down",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return stateNames[s]
}

// Benchmark is implemented by *SingleBenchmark and *ParallelBenchmark only.
// Steps must be called in order: Provision, SetUp, Run, then Results or
// Reports, and finally TearDown.
type Benchmark interface {
	Name() string
	Type() config.BenchmarkType
	State() State

	// Provision maps the memory of every side and allocates its
	// execution state.
	Provision() error

	// SetUp partitions the memory and prepares the worker threads.
	SetUp() error

	// Run executes all worker threads and reports whether none faulted.
	Run() bool

	// Results returns the machine-readable outcome of a completed run.
	Results() map[string]any

	// Reports returns one report per side of a completed run.
	Reports() []NamedReport

	// TearDown unmaps memory and removes owned backing files. Unless
	// force is set it is only allowed after Run.
	TearDown(force bool) error

	benchmark() *core
}

// NamedReport is the report of one benchmark side.
type NamedReport struct {
	Name   string
	Config *config.Config
	Report engine.Report
}

func (r NamedReport) asMap() map[string]any {
	return map[string]any{
		"config":  r.Config,
		"results": r.Report,
	}
}

// SingleBenchmark runs one configuration.
type SingleBenchmark struct {
	core
}

// Type implements Benchmark.
func (b *SingleBenchmark) Type() config.BenchmarkType { return config.Single }

// Results implements Benchmark.
func (b *SingleBenchmark) Results() map[string]any {
	reports := b.Reports()
	if len(reports) == 0 {
		return nil
	}

	return reports[0].asMap()
}

func (b *SingleBenchmark) benchmark() *core { return &b.core }

// ParallelBenchmark runs two configurations at the same time. The sides
// share nothing except that their worker pools run concurrently.
type ParallelBenchmark struct {
	core
}

// Type implements Benchmark.
func (b *ParallelBenchmark) Type() config.BenchmarkType { return config.Parallel }

// Results implements Benchmark. Configs and results are keyed by side
// name.
func (b *ParallelBenchmark) Results() map[string]any {
	reports := b.Reports()
	if len(reports) == 0 {
		return nil
	}

	configs := make(map[string]any, len(reports))
	results := make(map[string]any, len(reports))

	for _, r := range reports {
		configs[r.Name] = r.Config
		results[r.Name] = r.Report
	}

	return map[string]any{
		"config":  configs,
		"results": results,
	}
}

func (b *ParallelBenchmark) benchmark() *core { return &b.core }

// side is one configuration together with everything it owns.
type side struct {
	name   string
	cfg    *config.Config
	region region.MemoryRegion

	device  *region.Mapping
	dram    *region.Mapping
	exec    *engine.Execution
	result  *engine.Result
	threads []engine.ThreadRunConfig
}

func (s *side) provision(opts region.Options) error {
	hugePages := s.region.IsDRAM && s.cfg.DRAMHugePages

	device, err := s.region.Map(s.cfg.MemoryRange, hugePages, opts)
	if err != nil {
		return fmt.Errorf("map memory: %w", err)
	}
	s.device = device

	if err := device.Prefault(); err != nil {
		return fmt.Errorf("prefault memory: %w", err)
	}

	if s.cfg.NeedsDRAM() {
		dram, err := region.MapAnonymous(s.cfg.DRAMMemoryRange, s.cfg.DRAMHugePages)
		if err != nil {
			return fmt.Errorf("map dram: %w", err)
		}
		s.dram = dram

		if err := dram.Prefault(); err != nil {
			return fmt.Errorf("prefault dram: %w", err)
		}
	}

	s.exec = engine.NewExecution(s.cfg)
	s.result = engine.NewResult(s.cfg)

	return nil
}

func (s *side) setUp() error {
	threads, err := engine.SetUp(s.cfg, s.device, s.dram, s.exec, s.result)
	if err != nil {
		return err
	}

	s.threads = threads

	return nil
}

func (s *side) release() error {
	var errs []error

	s.threads = nil

	if s.device != nil {
		errs = append(errs, s.device.Close())
	}

	if s.dram != nil {
		errs = append(errs, s.dram.Close())
	}

	errs = append(errs, s.region.Remove())

	return errors.Join(errs...)
}

// core implements the lifecycle shared by both benchmark kinds.
type core struct {
	name   string
	state  State
	sides  []*side
	opts   region.Options
	logger *slog.Logger
}

// Name returns the benchmark name.
func (c *core) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *core) State() State { return c.state }

func (c *core) expect(step string, want State) error {
	if c.state != want {
		return fmt.Errorf("%w: %s %q in state %s, want %s",
			ErrInvalidState, step, c.name, c.state, want)
	}

	return nil
}

// Provision implements Benchmark.
func (c *core) Provision() error {
	if err := c.expect("provision", StateCreated); err != nil {
		return err
	}

	for _, s := range c.sides {
		if err := s.provision(c.opts); err != nil {
			return fmt.Errorf("provision %s: %w", s.name, err)
		}

		c.logger.Debug("memory provisioned",
			slog.String("side", s.name),
			slog.String("path", s.region.Path),
			slog.Bool("dram", s.region.IsDRAM),
			slog.Uint64("bytes", s.cfg.MemoryRange),
		)
	}

	c.state = StateDataGenerated

	return nil
}

// SetUp implements Benchmark.
func (c *core) SetUp() error {
	if err := c.expect("set up", StateDataGenerated); err != nil {
		return err
	}

	for _, s := range c.sides {
		if err := s.setUp(); err != nil {
			return fmt.Errorf("set up %s: %w", s.name, err)
		}
	}

	c.state = StateSetUp

	return nil
}

// Run implements Benchmark. All worker threads of all sides are started
// together and joined before any fault flag is inspected.
func (c *core) Run() bool {
	if err := c.expect("run", StateSetUp); err != nil {
		c.logger.Error("cannot run benchmark", slog.String("error", err.Error()))

		return false
	}

	c.state = StateRunning

	var wg sync.WaitGroup

	for _, s := range c.sides {
		for i := range s.threads {
			wg.Add(1)

			go func(tc *engine.ThreadRunConfig) {
				defer wg.Done()
				engine.RunWorker(tc)
			}(&s.threads[i])
		}
	}

	wg.Wait()

	ok := true

	for _, s := range c.sides {
		fault := s.exec.Fault()
		if !fault.Tripped() {
			continue
		}

		ok = false

		c.logger.Error("benchmark thread faulted",
			slog.String("side", s.name),
			slog.String("error", fmt.Sprint(fault.Err())),
		)
	}

	if !ok {
		c.state = StateFailed

		return false
	}

	c.state = StateCompleted
	c.logSummaries()

	return true
}

func (c *core) logSummaries() {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	for _, s := range c.sides {
		sum := workload.Summarize(s.exec.Ops)
		c.logger.Debug("operation list",
			slog.String("side", s.name),
			slog.Int("operations", sum.TotalOperations),
			slog.Int("reads", sum.Reads),
			slog.Int("writes", sum.Writes),
			slog.Int("dram_operations", sum.DRAMOperations),
			slog.Uint64("bytes", sum.TotalBytes),
		)
	}
}

// Reports implements Benchmark. It returns nil unless the run completed.
func (c *core) Reports() []NamedReport {
	if c.state != StateCompleted {
		return nil
	}

	reports := make([]NamedReport, len(c.sides))
	for i, s := range c.sides {
		reports[i] = NamedReport{Name: s.name, Config: s.cfg, Report: s.result.Report()}
	}

	return reports
}

// TearDown implements Benchmark. Calling it again after a successful
// teardown is a no-op.
func (c *core) TearDown(force bool) error {
	if c.state == StateTornDown {
		return nil
	}

	if !force && c.state != StateCompleted && c.state != StateFailed {
		return fmt.Errorf("%w: tear down %q in state %s",
			ErrInvalidState, c.name, c.state)
	}

	var errs []error
	for _, s := range c.sides {
		if err := s.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", s.name, err))
		}
	}

	c.state = StateTornDown

	return errors.Join(errs...)
}
