// Package report formats benchmark results into comparison tables, result
// files and Prometheus metrics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weiihann/mapbench/config"
	"github.com/weiihann/mapbench/harness"
)

// resultTimeLayout is used in result file names.
const resultTimeLayout = "2006-01-02T15-04-05"

// Group collects all runs of one benchmark definition as written to result
// files.
type Group struct {
	Name       string               `json:"bm_name"`
	Type       config.BenchmarkType `json:"bm_type"`
	Benchmarks []map[string]any     `json:"benchmarks"`
}

type row struct {
	benchmark string
	side      harness.NamedReport
}

// Generate writes a markdown comparison table for the given results.
func Generate(w io.Writer, results []harness.RunResult) error {
	rows := flatten(results)
	if len(rows) == 0 {
		return fmt.Errorf("no results to report")
	}

	best := findBest(rows)

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Benchmark | Side | Threads | Access | Pattern | Operation "+
		"| Ops | Data | Time | Bandwidth | Relative |")
	fmt.Fprintln(w, "|-----------|------|---------|--------|---------|-----------"+
		"|-----|------|------|-----------|----------|")

	for _, r := range rows {
		rep := r.side.Report
		cfg := r.side.Config

		relative := 0.0
		if best > 0 {
			relative = rep.Bandwidth / best
		}

		fmt.Fprintf(w, "| %s | %s | %d | %s | %s | %s | %d | %s | %s | %.2f GiB/s | %.2fx |\n",
			r.benchmark,
			r.side.Name,
			cfg.NumberThreads,
			formatBytes(cfg.AccessSize),
			pattern(cfg),
			cfg.Operation,
			rep.TotalOperations,
			formatBytes(rep.TotalBytes),
			formatDuration(rep.ExecutionTime),
			rep.Bandwidth,
			relative,
		)
	}

	if !hasLatency(rows) {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Benchmark | Side | Count | Mean | p50 | p99 | p99.9 | Max |")
	fmt.Fprintln(w, "|-----------|------|-------|------|-----|-----|-------|-----|")

	for _, r := range rows {
		lat := r.side.Report.Latency
		if lat == nil {
			continue
		}

		fmt.Fprintf(w, "| %s | %s | %d | %s | %s | %s | %s | %s |\n",
			r.benchmark,
			r.side.Name,
			lat.Count,
			formatDuration(time.Duration(lat.Mean)),
			formatDuration(time.Duration(lat.P50)),
			formatDuration(time.Duration(lat.P99)),
			formatDuration(time.Duration(lat.P999)),
			formatDuration(time.Duration(lat.Max)),
		)
	}

	return nil
}

// Groups collects consecutive runs of the same benchmark.
func Groups(results []harness.RunResult) []Group {
	var groups []Group

	for _, res := range results {
		n := len(groups)
		if n == 0 || groups[n-1].Name != res.Benchmark {
			groups = append(groups, Group{Name: res.Benchmark, Type: res.Type})
			n++
		}

		groups[n-1].Benchmarks = append(groups[n-1].Benchmarks, res.Results)
	}

	return groups
}

// GenerateJSON writes results grouped by benchmark as JSON to w.
func GenerateJSON(w io.Writer, results []harness.RunResult) error {
	groups := Groups(results)
	if groups == nil {
		groups = []Group{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(groups)
}

// ResultFileName returns "<config stem>-<timestamp>.json".
func ResultFileName(configPath string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(configPath), filepath.Ext(configPath))

	return stem + "-" + now.Format(resultTimeLayout) + ".json"
}

// WriteResultFile writes the grouped results into dir and returns the path
// of the created file.
func WriteResultFile(dir, configPath string, now time.Time, results []harness.RunResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, ResultFileName(configPath, now))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}

	if err := GenerateJSON(f, results); err != nil {
		f.Close()

		return "", fmt.Errorf("write result file %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close result file %s: %w", path, err)
	}

	return path, nil
}

func flatten(results []harness.RunResult) []row {
	var rows []row

	for _, res := range results {
		for _, side := range res.Sides {
			rows = append(rows, row{benchmark: res.Benchmark, side: side})
		}
	}

	return rows
}

func findBest(rows []row) float64 {
	var best float64
	for _, r := range rows {
		best = max(best, r.side.Report.Bandwidth)
	}

	return best
}

func hasLatency(rows []row) bool {
	for _, r := range rows {
		if r.side.Report.Latency != nil {
			return true
		}
	}

	return false
}

func pattern(cfg *config.Config) string {
	if cfg.UsesCustomOperations() {
		return "custom"
	}

	return cfg.ExecMode.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fus", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
