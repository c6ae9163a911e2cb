// Package main provides the CLI entry point for mapbench, a parallel
// benchmark for memory-mapped persistent memory.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/harness"
	"github.com/weiihann/mapbench/region"
	"github.com/weiihann/mapbench/report"
	"github.com/weiihann/mapbench/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	root := newRootCmd(logger, level)
	if err := root.Execute(); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "mapbench",
		Short: "Parallel benchmark for memory-mapped persistent memory",
		Long: `Mapbench drives configurable read/write access patterns across a
memory-mapped file or DRAM with many concurrent threads and reports
bandwidth and latency.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(newRunCmd(logger), newValidateCmd())

	return root
}

type runConfig struct {
	configPath  string
	pmemDir     string
	pmemFiles   []string
	resultDir   string
	metricsFile string
	only        []string
	noMapSync   bool
	outputJSON  bool
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run the benchmarks of a config file",
		Long: `Run every benchmark defined in a YAML config file, write the results
to a JSON file in the result directory and print a comparison table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.configPath = args[0]

			return runBenchmarks(cmd.Context(), logger, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.pmemDir, "pmem-dir", "",
		"Directory for backing files (default for pmem_directory)")
	flags.StringArrayVar(&cfg.pmemFiles, "pmem-file", nil,
		"Existing backing file to use instead of a fresh one; repeat for the second parallel side")
	flags.StringVar(&cfg.resultDir, "result-dir", "results",
		"Directory the JSON result file is written to")
	flags.StringVar(&cfg.metricsFile, "metrics-file", "",
		"Write results as Prometheus metrics to this textfile")
	flags.StringSliceVar(&cfg.only, "only", nil,
		"Run only the named benchmarks")
	flags.BoolVar(&cfg.noMapSync, "no-map-sync", false,
		"Map backing files without MAP_SYNC (for filesystems without DAX)")
	flags.BoolVar(&cfg.outputJSON, "json", false,
		"Output results as JSON instead of table")

	return cmd
}

func runBenchmarks(ctx context.Context, logger *slog.Logger, cfg runConfig) error {
	suites, err := loadSuites(cfg.configPath, cfg.pmemDir, cfg.only)
	if err != nil {
		return err
	}

	opts := harness.BuildOptions{
		ExistingFiles: cfg.pmemFiles,
		Map:           region.DefaultOptions(),
	}
	if cfg.noMapSync {
		opts.Map.Sync = false
	}

	logger.InfoContext(ctx, "starting benchmarks",
		slog.String("config", cfg.configPath),
		slog.Int("benchmarks", len(suites)),
		slog.Bool("map_sync", opts.Map.Sync),
	)

	runner := harness.NewRunner(opts, logger)
	started := time.Now()

	var (
		results []harness.RunResult
		runErr  error
	)

	for _, suite := range suites {
		res, err := runner.Run(ctx, suite)
		results = append(results, res...)

		if err != nil {
			runErr = err

			break
		}
	}

	if len(results) > 0 {
		if err := writeOutputs(ctx, logger, cfg, started, results); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}

	logger.InfoContext(ctx, "benchmarks complete",
		slog.Int("runs", len(results)),
		slog.Duration("elapsed", time.Since(started)),
	)

	return nil
}

func writeOutputs(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
	started time.Time,
	results []harness.RunResult,
) error {
	path, err := report.WriteResultFile(cfg.resultDir, cfg.configPath, started, results)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "results written", slog.String("path", path))

	if cfg.metricsFile != "" {
		m := report.NewMetrics()
		m.Observe(results)

		if err := m.WriteTextfile(cfg.metricsFile); err != nil {
			return err
		}
	}

	if cfg.outputJSON {
		if err := report.GenerateJSON(os.Stdout, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}

		return nil
	}

	if err := report.Generate(os.Stdout, results); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	return nil
}

func loadSuites(path, pmemDir string, only []string) ([]config.Suite, error) {
	defaults := config.Default()
	defaults.PmemDirectory = pmemDir

	suites, err := config.LoadFile(path, defaults)
	if err != nil {
		return nil, err
	}

	if len(only) == 0 {
		return suites, nil
	}

	filtered := suites[:0]
	for _, s := range suites {
		if slices.Contains(only, s.Name) {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) == 0 {
		return nil, fmt.Errorf("no benchmark in %s matches %v", path, only)
	}

	return filtered, nil
}

func newValidateCmd() *cobra.Command {
	var (
		pmemDir string
		only    []string
		dumpOps int
	)

	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a config file and print the expanded runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suites, err := loadSuites(args[0], pmemDir, only)
			if err != nil {
				return err
			}

			return printSuites(cmd.OutOrStdout(), suites, dumpOps)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&pmemDir, "pmem-dir", "",
		"Directory for backing files (default for pmem_directory)")
	flags.StringSliceVar(&only, "only", nil,
		"Validate only the named benchmarks")
	flags.IntVar(&dumpOps, "dump-ops", 0,
		"Print the first N operations of thread 0 of every run as JSON lines")

	return cmd
}

func printSuites(w io.Writer, suites []config.Suite, dumpOps int) error {
	for _, suite := range suites {
		fmt.Fprintf(w, "%s (%s): %d run(s)\n", suite.Name, suite.Type, len(suite.Runs))

		for i, run := range suite.Runs {
			for j := range run.Configs {
				c := &run.Configs[j]

				fmt.Fprintf(w, "  run %d %s: threads=%d range=%d access=%d mode=%s op=%s run_mode=%s\n",
					i, run.Names[j], c.NumberThreads, c.MemoryRange, c.AccessSize,
					c.ExecMode, c.Operation, c.RunMode)

				if dumpOps <= 0 || c.UsesCustomOperations() {
					continue
				}

				ops := make([]workload.Operation, min(uint64(dumpOps), c.NumberOperations))
				workload.NewGenerator(c, workload.ThreadSeed(c.Seed, 0)).Fill(ops, 0)

				if err := workload.WriteJSONL(w, ops); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
