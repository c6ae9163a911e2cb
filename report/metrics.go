package report

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weiihann/mapbench/harness"
)

const namespace = "mapbench"

var (
	sideLabels    = []string{"benchmark", "run", "side", "threads"}
	latencyLabels = []string{"benchmark", "run", "side", "threads", "percentile"}
)

// Metrics exposes benchmark results as Prometheus gauges, typically written
// to a node exporter textfile after a suite finished.
type Metrics struct {
	registry *prometheus.Registry

	bandwidth  *prometheus.GaugeVec
	operations *prometheus.GaugeVec
	bytes      *prometheus.GaugeVec
	duration   *prometheus.GaugeVec
	latency    *prometheus.GaugeVec
}

// NewMetrics creates the gauges on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bandwidth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bandwidth_gib_per_second",
			Help:      "Aggregate bandwidth of a benchmark side in GiB/s",
		}, sideLabels),
		operations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations",
			Help:      "Operations executed by a benchmark side",
		}, sideLabels),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes",
			Help:      "Bytes accessed by a benchmark side",
		}, sideLabels),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "execution_seconds",
			Help:      "Wall clock time of a benchmark side",
		}, sideLabels),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custom_operation_latency_seconds",
			Help:      "Custom operation latency percentiles of a benchmark side",
		}, latencyLabels),
	}

	m.registry.MustRegister(m.bandwidth, m.operations, m.bytes, m.duration, m.latency)

	return m
}

// Registry returns the registry holding the gauges.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe sets the gauges for results. Runs are numbered per benchmark in
// the order they appear.
func (m *Metrics) Observe(results []harness.RunResult) {
	runs := make(map[string]int)

	for _, res := range results {
		run := strconv.Itoa(runs[res.Benchmark])
		runs[res.Benchmark]++

		for _, side := range res.Sides {
			labels := prometheus.Labels{
				"benchmark": res.Benchmark,
				"run":       run,
				"side":      side.Name,
				"threads":   strconv.Itoa(side.Config.NumberThreads),
			}

			rep := side.Report
			m.bandwidth.With(labels).Set(rep.Bandwidth)
			m.operations.With(labels).Set(float64(rep.TotalOperations))
			m.bytes.With(labels).Set(float64(rep.TotalBytes))
			m.duration.With(labels).Set(rep.ExecutionTime.Seconds())

			if rep.Latency == nil {
				continue
			}

			for p, ns := range map[string]int64{
				"50":   rep.Latency.P50,
				"90":   rep.Latency.P90,
				"99":   rep.Latency.P99,
				"99.9": rep.Latency.P999,
			} {
				pl := prometheus.Labels{"percentile": p}
				for k, v := range labels {
					pl[k] = v
				}

				m.latency.With(pl).Set(float64(ns) / 1e9)
			}
		}
	}
}

// WriteTextfile writes all gauges in the Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}

	return nil
}
