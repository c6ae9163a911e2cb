//go:build linux

package region

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// CreateFile creates path if it does not exist and makes sure it spans at
// least size bytes.
func CreateFile(path string, size uint64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if uint64(info.Size()) >= size {
		return nil
	}

	err = unix.Fallocate(int(f.Fd()), 0, 0, int64(size))
	if errors.Is(err, unix.EOPNOTSUPP) {
		err = f.Truncate(int64(size))
	}

	if err != nil {
		return fmt.Errorf("allocate %d bytes for %s: %w", size, path, err)
	}

	return nil
}

// MapFile maps the first size bytes of path read-write and shared.
func MapFile(path string, size uint64, opts Options) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	flags := unix.MAP_SHARED
	if opts.Sync {
		flags = unix.MAP_SHARED_VALIDATE | unix.MAP_SYNC
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("map %s (%d bytes, sync=%t): %w", path, size, opts.Sync, err)
	}

	return &Mapping{data: data}, nil
}

// MapAnonymous maps size bytes of private DRAM. hugePages asks the kernel
// to back the range with transparent huge pages.
func MapAnonymous(size uint64, hugePages bool) (*Mapping, error) {
	data, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("map %d bytes of dram: %w", size, err)
	}

	if hugePages {
		if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
			_ = unix.Munmap(data)

			return nil, fmt.Errorf("advise huge pages: %w", err)
		}
	}

	return &Mapping{data: data, dram: true}, nil
}

// Prefault populates every page with write access so the timed phase does
// not pay for page faults. Page contents are left unchanged. Kernels without
// MADV_POPULATE_WRITE fall back to touching one word per page.
func (m *Mapping) Prefault() error {
	if m.Len() == 0 {
		return nil
	}

	err := unix.Madvise(m.data, unix.MADV_POPULATE_WRITE)
	if err == nil {
		return nil
	}

	if !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("populate mapping: %w", err)
	}

	return m.touchPages()
}

// touchPages write-faults every system page by atomically adding zero to its
// first word.
func (m *Mapping) touchPages() error {
	page := uint64(unix.Getpagesize())

	pages := (m.Len() + page - 1) / page
	if pages == 0 {
		return nil
	}

	per := (pages + prefaultWorkers - 1) / prefaultWorkers

	var g errgroup.Group
	g.SetLimit(prefaultWorkers)

	for first := uint64(0); first < pages; first += per {
		last := min(first+per, pages)

		g.Go(func() error {
			for p := first; p < last; p++ {
				word := (*uint32)(unsafe.Pointer(&m.data[p*page]))
				atomic.AddUint32(word, 0)
			}

			return nil
		})
	}

	return g.Wait()
}

// Resident returns the number of pages of the mapping currently backed by
// physical memory, counted at the system page size.
func (m *Mapping) Resident() (int, error) {
	page := unix.Getpagesize()
	vec := make([]byte, (len(m.data)+page-1)/page)

	if len(vec) == 0 {
		return 0, nil
	}

	_, _, errno := unix.Syscall(unix.SYS_MINCORE,
		uintptr(unsafe.Pointer(&m.data[0])),
		uintptr(len(m.data)),
		uintptr(unsafe.Pointer(&vec[0])))
	if errno != 0 {
		return 0, fmt.Errorf("mincore: %w", errno)
	}

	n := 0
	for _, v := range vec {
		n += int(v & 1)
	}

	return n, nil
}

// Revoke removes all access rights from the partition's pages. Later
// accesses fault; this simulates a failing region of the device.
func (p Partition) Revoke() error {
	if p.m == nil {
		return fmt.Errorf("%w: partition has no mapping", ErrOutOfPartition)
	}

	if err := unix.Mprotect(p.m.data[p.start:p.start+p.length], unix.PROT_NONE); err != nil {
		return fmt.Errorf("revoke partition: %w", err)
	}

	return nil
}

// Revoke removes all access rights from the mapping. Every later access
// faults; this simulates a failing device.
func (m *Mapping) Revoke() error {
	if err := unix.Mprotect(m.data, unix.PROT_NONE); err != nil {
		return fmt.Errorf("revoke mapping: %w", err)
	}

	return nil
}

// Close unmaps m. It is safe to call more than once.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}

	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("unmap: %w", err)
	}

	m.data = nil

	return nil
}

// sync flushes the pages covering [off, off+n) of a file backed mapping.
func (m *Mapping) sync(off, n uint64) error {
	if m.dram || n == 0 {
		return nil
	}

	page := uint64(unix.Getpagesize())
	start := off &^ (page - 1)
	end := min(off+n, m.Len())

	return unix.Msync(m.data[start:end], unix.MS_SYNC)
}
