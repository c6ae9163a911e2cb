package workload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/weiihann/mapbench/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MemoryRange = 1 << 20
	cfg.AccessSize = 256
	cfg.NumberThreads = 4
	cfg.PmemDirectory = "/tmp"

	return cfg
}

func TestFillDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.ExecMode = config.Random
	cfg.Operation = config.Mixed
	cfg.WriteRatio = 0.3

	ops1 := make([]Operation, 1000)
	ops2 := make([]Operation, 1000)

	NewGenerator(&cfg, 42).Fill(ops1, 0)
	NewGenerator(&cfg, 42).Fill(ops2, 0)

	for i := range ops1 {
		if ops1[i] != ops2[i] {
			t.Fatalf("operation %d differs: %+v vs %+v", i, ops1[i], ops2[i])
		}
	}

	ops3 := make([]Operation, 1000)
	NewGenerator(&cfg, ThreadSeed(42, 1)).Fill(ops3, 0)

	same := 0
	for i := range ops1 {
		if ops1[i] == ops3[i] {
			same++
		}
	}

	if same == len(ops1) {
		t.Error("different thread seeds produced identical streams")
	}
}

func TestFillStaysInPartition(t *testing.T) {
	for _, mode := range []config.ExecMode{
		config.Sequential, config.SequentialDesc, config.Random, config.Zipf,
	} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.ExecMode = mode
			cfg.IsHybrid = true
			cfg.DRAMMemoryRange = 1 << 16
			cfg.DRAMOperationRatio = 0.25

			ops := make([]Operation, 5000)
			NewGenerator(&cfg, 7).Fill(ops, 123)

			for i, op := range ops {
				limit := cfg.PartitionSize()
				if op.OnDRAM {
					limit = cfg.DRAMPartitionSize()
				}

				if op.Offset+op.Size > limit {
					t.Fatalf("op %d: offset %d + size %d exceeds partition %d",
						i, op.Offset, op.Size, limit)
				}
				if op.Offset%cfg.AccessSize != 0 {
					t.Fatalf("op %d: offset %d not aligned", i, op.Offset)
				}
			}

			if s := Summarize(ops); s.DRAMOperations == 0 {
				t.Error("expected some DRAM operations")
			}
		})
	}
}

func TestFillSequential(t *testing.T) {
	cfg := testConfig()
	slots := cfg.PartitionSize() / cfg.AccessSize

	// Two halves generated by different generators must line up as one walk.
	ops := make([]Operation, 2*slots)
	NewGenerator(&cfg, 1).Fill(ops[:slots+3], 0)
	NewGenerator(&cfg, 2).Fill(ops[slots+3:], slots+3)

	for i, op := range ops {
		want := (uint64(i) % slots) * cfg.AccessSize
		if op.Offset != want {
			t.Fatalf("op %d: offset %d, want %d", i, op.Offset, want)
		}
	}

	cfg.ExecMode = config.SequentialDesc
	desc := make([]Operation, 2)
	NewGenerator(&cfg, 1).Fill(desc, 0)

	if desc[0].Offset != (slots-1)*cfg.AccessSize {
		t.Errorf("first descending offset = %d", desc[0].Offset)
	}
}

func TestKinds(t *testing.T) {
	tests := []struct {
		name       string
		op         config.OperationType
		ratio      float64
		wantReads  bool
		wantWrites bool
	}{
		{"read", config.Read, 0, true, false},
		{"write", config.Write, 0, false, true},
		{"mixed", config.Mixed, 0.5, true, true},
		{"mixed all writes", config.Mixed, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Operation = tt.op
			cfg.WriteRatio = tt.ratio

			ops := make([]Operation, 500)
			NewGenerator(&cfg, 3).Fill(ops, 0)

			s := Summarize(ops)
			if (s.Reads > 0) != tt.wantReads {
				t.Errorf("reads = %d, want reads: %v", s.Reads, tt.wantReads)
			}
			if (s.Writes > 0) != tt.wantWrites {
				t.Errorf("writes = %d, want writes: %v", s.Writes, tt.wantWrites)
			}
			if s.TotalBytes != 500*cfg.AccessSize {
				t.Errorf("total bytes = %d", s.TotalBytes)
			}
		})
	}
}

func TestCustomBase(t *testing.T) {
	cfg := testConfig()
	g := NewGenerator(&cfg, 9)

	for i := 0; i < 1000; i++ {
		base := g.CustomBase(320, 4096)
		if base%64 != 0 || base+320 > 4096 {
			t.Fatalf("bad base %d", base)
		}
	}

	if got := g.CustomBase(4096, 4096); got != 0 {
		t.Errorf("full-partition base = %d, want 0", got)
	}
}

func TestWriteJSONL(t *testing.T) {
	ops := []Operation{
		{Offset: 0, Size: 64, Kind: Read},
		{Offset: 64, Size: 64, Kind: Write, OnDRAM: true},
	}

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, ops); err != nil {
		t.Fatalf("WriteJSONL failed: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	lines := 0

	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line %d: invalid JSON: %v", lines, err)
		}
		if lines == 1 && (m["kind"] != "write" || m["on_dram"] != true) {
			t.Errorf("line %d: unexpected %v", lines, m)
		}
		lines++
	}

	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}
