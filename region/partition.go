package region

import "fmt"

// Partition is the contiguous sub-range of a mapping owned by one or more
// worker threads. All accesses are checked against its bounds.
type Partition struct {
	m      *Mapping
	start  uint64
	length uint64
}

// Valid reports whether p refers to a mapping.
func (p Partition) Valid() bool { return p.m != nil }

// Start returns the partition's offset inside its mapping.
func (p Partition) Start() uint64 { return p.start }

// Len returns the partition length in bytes.
func (p Partition) Len() uint64 { return p.length }

// ReadAt copies len(dst) bytes starting at partition offset off into dst.
func (p Partition) ReadAt(dst []byte, off int64) (int, error) {
	lo, hi, err := p.bounds(off, len(dst))
	if err != nil {
		return 0, err
	}

	return copy(dst, p.m.data[lo:hi]), nil
}

// WriteAt copies src to partition offset off.
func (p Partition) WriteAt(src []byte, off int64) (int, error) {
	lo, hi, err := p.bounds(off, len(src))
	if err != nil {
		return 0, err
	}

	return copy(p.m.data[lo:hi], src), nil
}

// Sync flushes [off, off+n) to the backing file. It is a no-op for DRAM.
func (p Partition) Sync(off, n uint64) error {
	lo, _, err := p.bounds(int64(off), int(n))
	if err != nil {
		return err
	}

	return p.m.sync(lo, n)
}

func (p Partition) bounds(off int64, n int) (uint64, uint64, error) {
	if p.m == nil {
		return 0, 0, fmt.Errorf("%w: partition has no mapping", ErrOutOfPartition)
	}

	if off < 0 || n < 0 || uint64(off)+uint64(n) > p.length {
		return 0, 0, fmt.Errorf("%w: [%d, %d) of %d bytes",
			ErrOutOfPartition, off, off+int64(n), p.length)
	}

	lo := p.start + uint64(off)

	return lo, lo + uint64(n), nil
}
