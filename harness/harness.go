package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/weiihann/mapbench/config"
)

// Runner drives every run of a benchmark suite through the benchmark
// lifecycle.
type Runner struct {
	Options BuildOptions
	Logger  *slog.Logger
}

// NewRunner creates a Runner building its benchmarks with opts.
func NewRunner(opts BuildOptions, logger *slog.Logger) *Runner {
	return &Runner{
		Options: opts,
		Logger:  logger,
	}
}

// Run executes the runs of suite one after another and stops at the first
// failure. Results of the runs finished so far are returned together with
// the error. ctx is only checked between runs; a started run always
// completes.
func (r *Runner) Run(ctx context.Context, suite config.Suite) ([]RunResult, error) {
	results := make([]RunResult, 0, len(suite.Runs))

	for i, run := range suite.Runs {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("%s: %w", suite.Name, err)
		}

		res, err := r.runOne(ctx, suite, i, run)
		if err != nil {
			return results, fmt.Errorf("%s run %d: %w", suite.Name, i, err)
		}

		results = append(results, res)
	}

	return results, nil
}

func (r *Runner) runOne(
	ctx context.Context,
	suite config.Suite,
	index int,
	run config.Run,
) (_ RunResult, err error) {
	logger := r.Logger.With(
		slog.String("benchmark", suite.Name),
		slog.Int("run", index),
	)

	opts := r.Options
	opts.Logger = r.Logger.With(slog.Int("run", index))

	bm, err := Build(suite.Name, suite.Type, run, opts)
	if err != nil {
		return RunResult{}, fmt.Errorf("build: %w", err)
	}

	defer func() {
		if tdErr := bm.TearDown(err != nil); tdErr != nil {
			err = errors.Join(err, fmt.Errorf("tear down: %w", tdErr))
		}
	}()

	provisionStart := time.Now()

	if err = bm.Provision(); err != nil {
		return RunResult{}, err
	}

	if err = bm.SetUp(); err != nil {
		return RunResult{}, err
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("type", suite.Type.String()),
		slog.Duration("setup_time", time.Since(provisionStart)),
	)

	if !bm.Run() {
		return RunResult{}, ErrExecutionFailed
	}

	res := newRunResult(bm)

	for _, side := range res.Sides {
		logger.InfoContext(ctx, "benchmark finished",
			slog.String("side", side.Name),
			slog.Uint64("operations", side.Report.TotalOperations),
			slog.Duration("execution_time", side.Report.ExecutionTime),
			slog.Float64("bandwidth_gib_s", side.Report.Bandwidth),
		)
	}

	return res, nil
}
