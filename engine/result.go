package engine

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/weiihann/mapbench/config"
)

// Latency histogram bounds in nanoseconds.
const (
	minLatency    = 1
	maxLatency    = int64(time.Minute)
	latencyDigits = 3
)

const gib = float64(1 << 30)

// ExecutionDuration is the wall clock interval a thread spent executing.
type ExecutionDuration struct {
	Begin time.Time
	End   time.Time
}

// Elapsed returns End-Begin.
func (d ExecutionDuration) Elapsed() time.Duration { return d.End.Sub(d.Begin) }

// ThreadResult is written by exactly one worker and read by the orchestrator
// after all workers have been joined.
type ThreadResult struct {
	Bytes      uint64
	Operations uint64
	Duration   ExecutionDuration
	Latencies  *hdrhistogram.Histogram
}

func (r *ThreadResult) recordLatency(d time.Duration) {
	if r.Latencies == nil {
		return
	}

	v := min(max(d.Nanoseconds(), minLatency), maxLatency)
	_ = r.Latencies.RecordValue(v)
}

// Result holds the per-thread slots of one benchmark side.
type Result struct {
	Config *config.Config
	Slots  []ThreadResult
}

// NewResult allocates one slot per configured thread.
func NewResult(cfg *config.Config) *Result {
	slots := make([]ThreadResult, cfg.NumberThreads)

	if cfg.UsesCustomOperations() {
		for i := range slots {
			slots[i].Latencies = hdrhistogram.New(minLatency, maxLatency, latencyDigits)
		}
	}

	return &Result{Config: cfg, Slots: slots}
}

// Report is the aggregated outcome of one benchmark side.
type Report struct {
	TotalBytes      uint64          `json:"total_bytes"`
	TotalOperations uint64          `json:"total_operations"`
	BeginNs         int64           `json:"begin_ns"`
	EndNs           int64           `json:"end_ns"`
	ExecutionTime   time.Duration   `json:"execution_time_ns"`
	Bandwidth       float64         `json:"bandwidth_gib_s"`
	Threads         []ThreadReport  `json:"per_thread"`
	Latency         *LatencySummary `json:"latency,omitempty"`
}

// ThreadReport is the outcome of a single thread.
type ThreadReport struct {
	Bytes      uint64  `json:"bytes"`
	Operations uint64  `json:"operations"`
	BeginNs    int64   `json:"begin_ns"`
	EndNs      int64   `json:"end_ns"`
	Bandwidth  float64 `json:"bandwidth_gib_s"`
}

// LatencySummary describes custom operation latencies in nanoseconds.
type LatencySummary struct {
	Count  int64   `json:"count"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    int64   `json:"p50"`
	P90    int64   `json:"p90"`
	P95    int64   `json:"p95"`
	P99    int64   `json:"p99"`
	P999   int64   `json:"p99.9"`
}

// Report aggregates the thread slots. The execution time spans from the
// earliest thread begin to the latest thread end; slots of threads that
// never reached the timed phase are ignored for timing.
func (r *Result) Report() Report {
	rep := Report{Threads: make([]ThreadReport, len(r.Slots))}

	var (
		begin, end time.Time
		merged     *hdrhistogram.Histogram
	)

	for i := range r.Slots {
		s := &r.Slots[i]

		rep.TotalBytes += s.Bytes
		rep.TotalOperations += s.Operations
		rep.Threads[i] = ThreadReport{
			Bytes:      s.Bytes,
			Operations: s.Operations,
			Bandwidth:  bandwidth(s.Bytes, s.Duration.Elapsed()),
		}

		if s.Latencies != nil {
			if merged == nil {
				merged = hdrhistogram.New(minLatency, maxLatency, latencyDigits)
			}

			merged.Merge(s.Latencies)
		}

		if s.Duration.Begin.IsZero() {
			continue
		}

		rep.Threads[i].BeginNs = s.Duration.Begin.UnixNano()
		rep.Threads[i].EndNs = s.Duration.End.UnixNano()

		if begin.IsZero() || s.Duration.Begin.Before(begin) {
			begin = s.Duration.Begin
		}

		if s.Duration.End.After(end) {
			end = s.Duration.End
		}
	}

	if !begin.IsZero() {
		rep.BeginNs = begin.UnixNano()
		rep.EndNs = end.UnixNano()
		rep.ExecutionTime = end.Sub(begin)
		rep.Bandwidth = bandwidth(rep.TotalBytes, rep.ExecutionTime)
	}

	if merged != nil && merged.TotalCount() > 0 {
		rep.Latency = summarize(merged)
	}

	return rep
}

func summarize(h *hdrhistogram.Histogram) *LatencySummary {
	return &LatencySummary{
		Count:  h.TotalCount(),
		Min:    h.Min(),
		Max:    h.Max(),
		Mean:   h.Mean(),
		StdDev: h.StdDev(),
		P50:    h.ValueAtQuantile(50),
		P90:    h.ValueAtQuantile(90),
		P95:    h.ValueAtQuantile(95),
		P99:    h.ValueAtQuantile(99),
		P999:   h.ValueAtQuantile(99.9),
	}
}

// bandwidth returns GiB/s.
func bandwidth(bytes uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(bytes) / gib / d.Seconds()
}
