//go:build linux

package region

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFileMappingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewOwnedRegion(dir)

	require.True(t, r.Owned)
	require.True(t, strings.HasPrefix(filepath.Base(r.Path), "mapbench-"))

	m, err := r.Map(4*DevicePageSize, false, Options{})
	require.NoError(t, err)
	require.Equal(t, uint64(4*DevicePageSize), m.Len())
	require.False(t, m.IsDRAM())
	require.NoError(t, m.Prefault())

	p, err := m.Partition(DevicePageSize, DevicePageSize)
	require.NoError(t, err)

	n, err := p.WriteAt([]byte("persisted"), 100)
	require.NoError(t, err)
	require.Equal(t, 9, n)
	require.NoError(t, p.Sync(100, 9))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	data, err := os.ReadFile(r.Path)
	require.NoError(t, err)
	require.Equal(t, "persisted", string(data[DevicePageSize+100:DevicePageSize+109]))

	require.NoError(t, r.Remove())
	_, err = os.Stat(r.Path)
	require.True(t, os.IsNotExist(err))
	require.NoError(t, r.Remove())
}

func TestExistingRegionIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	r := ExistingRegion(path)
	m, err := r.Map(DRAMPageSize, false, Options{})
	require.NoError(t, err)

	buf := make([]byte, 3)
	p, err := m.Partition(0, DRAMPageSize)
	require.NoError(t, err)
	_, err = p.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf))

	require.NoError(t, m.Close())
	require.NoError(t, r.Remove())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(DRAMPageSize), info.Size())
}

func TestPartitionBounds(t *testing.T) {
	m, err := MapAnonymous(64<<10, false)
	require.NoError(t, err)
	defer m.Close()

	require.True(t, m.IsDRAM())
	require.NoError(t, m.Prefault())

	_, err = m.Partition(60<<10, 8<<10)
	require.ErrorIs(t, err, ErrOutOfPartition)

	p, err := m.Partition(16<<10, 16<<10)
	require.NoError(t, err)
	require.Equal(t, uint64(16<<10), p.Start())
	require.Equal(t, uint64(16<<10), p.Len())

	buf := make([]byte, 64)
	_, err = p.ReadAt(buf, int64(p.Len())-64)
	require.NoError(t, err)

	_, err = p.ReadAt(buf, int64(p.Len())-63)
	require.ErrorIs(t, err, ErrOutOfPartition)
	_, err = p.WriteAt(buf, -1)
	require.ErrorIs(t, err, ErrOutOfPartition)

	var empty Partition
	require.False(t, empty.Valid())
	_, err = empty.ReadAt(buf, 0)
	require.ErrorIs(t, err, ErrOutOfPartition)

	// Neighbouring partitions never see each other's writes.
	left, err := m.Partition(0, 16<<10)
	require.NoError(t, err)
	_, err = left.WriteAt([]byte{0xAA}, int64(left.Len())-1)
	require.NoError(t, err)
	_, err = p.ReadAt(buf[:1], 0)
	require.NoError(t, err)
	require.Equal(t, byte(0), buf[0])
}

func TestRevokedMappingFaults(t *testing.T) {
	m, err := MapAnonymous(DRAMPageSize, false)
	require.NoError(t, err)
	defer m.Close()

	p, err := m.Partition(0, DRAMPageSize)
	require.NoError(t, err)
	require.NoError(t, m.Revoke())

	faulted := func() (recovered any) {
		defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
		defer func() { recovered = recover() }()

		_, _ = p.ReadAt(make([]byte, 8), 0)

		return nil
	}()

	require.NotNil(t, faulted)
}

func TestPrefaultMakesEveryPageResident(t *testing.T) {
	const size = 32 << 20

	pages := size / unix.Getpagesize()

	for _, tc := range []struct {
		name     string
		prefault func(*Mapping) error
	}{
		{"populate", (*Mapping).Prefault},
		{"touch", (*Mapping).touchPages},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, err := MapAnonymous(size, false)
			require.NoError(t, err)
			defer m.Close()

			before, err := m.Resident()
			require.NoError(t, err)
			require.Less(t, before, pages)

			require.NoError(t, tc.prefault(m))

			after, err := m.Resident()
			require.NoError(t, err)
			require.Equal(t, pages, after)
		})
	}
}

func TestPrefaultKeepsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device")
	want := bytes.Repeat([]byte("mapbench"), DevicePageSize/8)
	require.NoError(t, os.WriteFile(path, want, 0o644))

	m, err := ExistingRegion(path).Map(DevicePageSize, false, Options{})
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Prefault())
	require.NoError(t, m.touchPages())

	p, err := m.Partition(0, DevicePageSize)
	require.NoError(t, err)

	got := make([]byte, DevicePageSize)
	_, err = p.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestPartitionRevokeOnlyAffectsPartition(t *testing.T) {
	m, err := MapAnonymous(4*DRAMPageSize, false)
	require.NoError(t, err)
	defer m.Close()

	revoked, err := m.Partition(DRAMPageSize, DRAMPageSize)
	require.NoError(t, err)
	neighbour, err := m.Partition(0, DRAMPageSize)
	require.NoError(t, err)

	require.NoError(t, revoked.Revoke())

	_, err = neighbour.WriteAt([]byte{1}, 0)
	require.NoError(t, err)

	faulted := func() (recovered any) {
		defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
		defer func() { recovered = recover() }()

		_, _ = revoked.ReadAt(make([]byte, 8), 0)

		return nil
	}()

	require.NotNil(t, faulted)

	var empty Partition
	require.ErrorIs(t, empty.Revoke(), ErrOutOfPartition)
}
