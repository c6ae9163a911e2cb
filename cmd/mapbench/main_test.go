package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `
sequential_reads:
  args:
    memory_type: dram
    memory_range: 1048576
    access_size: 64
    number_operations: 100
  matrix:
    number_threads: [1, 2]
random_writes:
  args:
    memory_type: dram
    memory_range: 1048576
    exec_mode: random
    operation: write
`

func writeConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadSuitesFiltersByName(t *testing.T) {
	path := writeConfig(t)

	suites, err := loadSuites(path, "", nil)
	if err != nil {
		t.Fatalf("loadSuites failed: %v", err)
	}
	if len(suites) != 2 {
		t.Fatalf("got %d suites, want 2", len(suites))
	}

	suites, err = loadSuites(path, "", []string{"random_writes"})
	if err != nil {
		t.Fatalf("loadSuites failed: %v", err)
	}
	if len(suites) != 1 || suites[0].Name != "random_writes" {
		t.Fatalf("unexpected suites %+v", suites)
	}

	if _, err := loadSuites(path, "", []string{"missing"}); err == nil {
		t.Error("expected error for unknown benchmark filter")
	}
}

func TestPrintSuitesDumpsOperations(t *testing.T) {
	suites, err := loadSuites(writeConfig(t), "", []string{"sequential_reads"})
	if err != nil {
		t.Fatalf("loadSuites failed: %v", err)
	}

	var buf bytes.Buffer
	if err := printSuites(&buf, suites, 3); err != nil {
		t.Fatalf("printSuites failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "sequential_reads (single): 2 run(s)") {
		t.Errorf("missing suite header:\n%s", output)
	}
	if n := strings.Count(output, `"offset"`); n != 6 {
		t.Errorf("dumped %d operations, want 6:\n%s", n, output)
	}
}
