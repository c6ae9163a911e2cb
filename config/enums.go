package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidArgument is returned for unknown names, unknown keys and
// configurations that fail validation.
var ErrInvalidArgument = errors.New("invalid argument")

// BenchmarkType selects the orchestrator variant.
type BenchmarkType int

// Benchmark types.
const (
	Single BenchmarkType = iota
	Parallel
)

var benchmarkTypes = map[string]BenchmarkType{
	"single":   Single,
	"parallel": Parallel,
}

// ParseBenchmarkType looks up a benchmark type by name.
func ParseBenchmarkType(name string) (BenchmarkType, error) {
	return lookup(benchmarkTypes, "benchmark type", name)
}

// KnownBenchmarkTypes returns the names of all benchmark types.
func KnownBenchmarkTypes() []string { return names(benchmarkTypes) }

func (t BenchmarkType) String() string { return nameOf(benchmarkTypes, t) }

// MarshalText implements encoding.TextMarshaler.
func (t BenchmarkType) MarshalText() ([]byte, error) { return marshal(benchmarkTypes, "benchmark type", t) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *BenchmarkType) UnmarshalText(b []byte) error {
	return unmarshal(benchmarkTypes, "benchmark type", b, t)
}

// ExecMode is the address pattern used when pre-generating operations.
type ExecMode int

// Execution modes.
const (
	Sequential ExecMode = iota
	SequentialDesc
	Random
	Zipf
)

var execModes = map[string]ExecMode{
	"sequential":      Sequential,
	"sequential_desc": SequentialDesc,
	"random":          Random,
	"zipf":            Zipf,
}

func (m ExecMode) String() string { return nameOf(execModes, m) }

// MarshalText implements encoding.TextMarshaler.
func (m ExecMode) MarshalText() ([]byte, error) { return marshal(execModes, "exec mode", m) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ExecMode) UnmarshalText(b []byte) error { return unmarshal(execModes, "exec mode", b, m) }

// OperationType is the direction of generated operations.
type OperationType int

// Operation types.
const (
	Read OperationType = iota
	Write
	Mixed
)

var operationTypes = map[string]OperationType{
	"read":  Read,
	"write": Write,
	"mixed": Mixed,
}

func (o OperationType) String() string { return nameOf(operationTypes, o) }

// MarshalText implements encoding.TextMarshaler.
func (o OperationType) MarshalText() ([]byte, error) {
	return marshal(operationTypes, "operation", o)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OperationType) UnmarshalText(b []byte) error {
	return unmarshal(operationTypes, "operation", b, o)
}

// RunMode decides when workers stop claiming work.
type RunMode int

// Run modes.
const (
	// Fixed runs until every pre-generated operation was executed once.
	Fixed RunMode = iota
	// Duration replays the operations until run_time has elapsed.
	Duration
)

var runModes = map[string]RunMode{
	"fixed":    Fixed,
	"duration": Duration,
}

func (r RunMode) String() string { return nameOf(runModes, r) }

// MarshalText implements encoding.TextMarshaler.
func (r RunMode) MarshalText() ([]byte, error) { return marshal(runModes, "run mode", r) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RunMode) UnmarshalText(b []byte) error { return unmarshal(runModes, "run mode", b, r) }

// MemoryType is the kind of memory backing the device under test.
type MemoryType int

// Memory types.
const (
	Device MemoryType = iota
	DRAM
)

var memoryTypes = map[string]MemoryType{
	"device": Device,
	"dram":   DRAM,
}

func (m MemoryType) String() string { return nameOf(memoryTypes, m) }

// MarshalText implements encoding.TextMarshaler.
func (m MemoryType) MarshalText() ([]byte, error) { return marshal(memoryTypes, "memory type", m) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MemoryType) UnmarshalText(b []byte) error {
	return unmarshal(memoryTypes, "memory type", b, m)
}

// PersistInstruction is applied after every write.
type PersistInstruction int

// Persist instructions.
const (
	PersistNone PersistInstruction = iota
	PersistMsync
)

var persistInstructions = map[string]PersistInstruction{
	"none":  PersistNone,
	"msync": PersistMsync,
}

func (p PersistInstruction) String() string { return nameOf(persistInstructions, p) }

// MarshalText implements encoding.TextMarshaler.
func (p PersistInstruction) MarshalText() ([]byte, error) {
	return marshal(persistInstructions, "persist instruction", p)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PersistInstruction) UnmarshalText(b []byte) error {
	return unmarshal(persistInstructions, "persist instruction", b, p)
}

func lookup[T comparable](table map[string]T, kind, name string) (T, error) {
	v, ok := table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: unknown %s %q (want one of %s)",
			ErrInvalidArgument, kind, name, strings.Join(names(table), ", "))
	}

	return v, nil
}

func nameOf[T comparable](table map[string]T, v T) string {
	for name, x := range table {
		if x == v {
			return name
		}
	}

	return "unknown"
}

func names[T comparable](table map[string]T) []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

func marshal[T comparable](table map[string]T, kind string, v T) ([]byte, error) {
	for name, x := range table {
		if x == v {
			return []byte(name), nil
		}
	}

	return nil, fmt.Errorf("%w: unknown %s value %v", ErrInvalidArgument, kind, v)
}

func unmarshal[T comparable](table map[string]T, kind string, b []byte, out *T) error {
	v, err := lookup(table, kind, string(b))
	if err != nil {
		return err
	}

	*out = v

	return nil
}
