// Package workload generates the deterministic operation lists executed by
// benchmark workers. Offsets are relative to the partition of the thread
// that executes an operation.
package workload

import (
	"encoding/json"
	"fmt"
	"io"
	mrand "math/rand"

	"github.com/weiihann/mapbench/config"
)

// Kind is the direction of an operation.
type Kind uint8

// Operation kinds.
const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}

	return "read"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Operation is a single pre-generated access.
type Operation struct {
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
	Kind   Kind   `json:"kind"`
	OnDRAM bool   `json:"on_dram,omitempty"`
}

// Summary contains statistics about generated operations.
type Summary struct {
	TotalOperations int
	Reads           int
	Writes          int
	DRAMOperations  int
	TotalBytes      uint64
}

// Generator produces deterministic operations for one thread.
type Generator struct {
	cfg       *config.Config
	rng       *mrand.Rand
	zipf      *mrand.Zipf
	slots     uint64
	dramSlots uint64
}

// NewGenerator creates a Generator for cfg. Threads use distinct seeds so
// each one draws an independent but reproducible address stream.
func NewGenerator(cfg *config.Config, seed int64) *Generator {
	rng := mrand.New(mrand.NewSource(seed))

	g := &Generator{
		cfg:   cfg,
		rng:   rng,
		slots: cfg.PartitionSize() / cfg.AccessSize,
	}

	if cfg.IsHybrid {
		g.dramSlots = cfg.DRAMPartitionSize() / cfg.AccessSize
	}

	if cfg.ExecMode == config.Zipf && g.slots > 1 {
		g.zipf = mrand.NewZipf(rng, cfg.ZipfAlpha, 1, g.slots-1)
	}

	return g
}

// ThreadSeed derives the generator seed of a thread from the config seed.
func ThreadSeed(base int64, thread int) int64 {
	return base + int64(thread)*0x2545F4914F6CDD1D
}

// Fill writes len(ops) operations. first is the global index of ops[0] in
// the execution's operation list; sequential patterns are derived from it so
// that the whole list walks the partition in order regardless of which
// thread generated which part.
func (g *Generator) Fill(ops []Operation, first uint64) {
	for i := range ops {
		ops[i] = g.next(first + uint64(i))
	}
}

func (g *Generator) next(index uint64) Operation {
	op := Operation{Size: g.cfg.AccessSize, Kind: g.kind()}

	slots := g.slots
	if g.dramSlots > 0 && g.rng.Float64() < g.cfg.DRAMOperationRatio {
		op.OnDRAM = true
		slots = g.dramSlots
	}

	var slot uint64

	switch g.cfg.ExecMode {
	case config.Sequential:
		slot = index % slots
	case config.SequentialDesc:
		slot = slots - 1 - index%slots
	case config.Zipf:
		if g.zipf != nil && !op.OnDRAM {
			slot = g.zipf.Uint64()
		} else {
			slot = uint64(g.rng.Int63n(int64(slots)))
		}
	default:
		slot = uint64(g.rng.Int63n(int64(slots)))
	}

	op.Offset = slot * g.cfg.AccessSize

	return op
}

func (g *Generator) kind() Kind {
	switch g.cfg.Operation {
	case config.Write:
		return Write
	case config.Mixed:
		if g.rng.Float64() < g.cfg.WriteRatio {
			return Write
		}

		return Read
	default:
		return Read
	}
}

// CustomBase returns a random 64-byte aligned offset at which size bytes fit
// into a partition of partitionSize bytes.
func (g *Generator) CustomBase(size, partitionSize uint64) uint64 {
	if size == 0 || size >= partitionSize {
		return 0
	}

	lines := (partitionSize-size)/64 + 1

	return uint64(g.rng.Int63n(int64(lines))) * 64
}

// Summarize counts the operations in ops.
func Summarize(ops []Operation) Summary {
	var s Summary
	for _, op := range ops {
		s.TotalOperations++
		s.TotalBytes += op.Size

		if op.Kind == Write {
			s.Writes++
		} else {
			s.Reads++
		}

		if op.OnDRAM {
			s.DRAMOperations++
		}
	}

	return s
}

// WriteJSONL writes ops to w, one JSON object per line.
func WriteJSONL(w io.Writer, ops []Operation) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for i, op := range ops {
		if err := enc.Encode(op); err != nil {
			return fmt.Errorf("encode operation %d: %w", i, err)
		}
	}

	return nil
}
