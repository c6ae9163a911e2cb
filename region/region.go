// Package region provisions the memory a benchmark runs against: backing
// files of the device under test, their mappings, anonymous DRAM mappings
// used for comparison, and the per-thread partitions carved out of them.
package region

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Page sizes of device (huge page) and DRAM mappings.
const (
	DevicePageSize = 2 << 20
	DRAMPageSize   = 4 << 10
)

// prefaultWorkers bounds the helper goroutines touching pages when the
// kernel cannot populate a mapping itself.
const prefaultWorkers = 8

// ErrOutOfPartition is returned for accesses outside a partition.
var ErrOutOfPartition = errors.New("access outside partition")

// errUnsupported is returned on platforms without the required mmap flags.
var errUnsupported = errors.New("memory mapping is only supported on linux")

// Options control how device files are mapped.
type Options struct {
	// Sync maps with MAP_SHARED_VALIDATE|MAP_SYNC so writes are durable at
	// the mapping level. It requires a DAX capable filesystem.
	Sync bool
}

// DefaultOptions returns the options used for real devices.
func DefaultOptions() Options {
	return Options{Sync: true}
}

// MemoryRegion is a backing storage location of one benchmark side.
type MemoryRegion struct {
	Path   string
	Owned  bool
	IsDRAM bool
}

// NewOwnedRegion returns a region backed by a fresh, randomly named file in
// dir that is removed again at teardown.
func NewOwnedRegion(dir string) MemoryRegion {
	return MemoryRegion{
		Path:  filepath.Join(dir, "mapbench-"+uuid.NewString()+".file"),
		Owned: true,
	}
}

// ExistingRegion returns a region backed by a caller provided file which is
// never removed.
func ExistingRegion(path string) MemoryRegion {
	return MemoryRegion{Path: path}
}

// DRAMRegion returns a region whose device under test is anonymous memory.
func DRAMRegion() MemoryRegion {
	return MemoryRegion{IsDRAM: true}
}

// Map creates (if needed) and maps size bytes of the region.
func (r MemoryRegion) Map(size uint64, hugePages bool, opts Options) (*Mapping, error) {
	if r.IsDRAM {
		return MapAnonymous(size, hugePages)
	}

	if err := CreateFile(r.Path, size); err != nil {
		return nil, err
	}

	return MapFile(r.Path, size, opts)
}

// Remove deletes the backing file if the region owns it.
func (r MemoryRegion) Remove() error {
	if !r.Owned || r.Path == "" {
		return nil
	}

	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", r.Path, err)
	}

	return nil
}

// Mapping is a mapped memory range.
type Mapping struct {
	data []byte
	dram bool
}

// Len returns the mapped length in bytes.
func (m *Mapping) Len() uint64 { return uint64(len(m.data)) }

// IsDRAM reports whether m is an anonymous DRAM mapping.
func (m *Mapping) IsDRAM() bool { return m.dram }

// Partition returns a bounds-checked view of [start, start+length).
func (m *Mapping) Partition(start, length uint64) (Partition, error) {
	if start+length < start || start+length > m.Len() {
		return Partition{}, fmt.Errorf("%w: [%d, %d) of %d byte mapping",
			ErrOutOfPartition, start, start+length, m.Len())
	}

	return Partition{m: m, start: start, length: length}, nil
}
