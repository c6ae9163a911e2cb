//go:build !linux

package region

// CreateFile is not supported on this platform.
func CreateFile(string, uint64) error { return errUnsupported }

// MapFile is not supported on this platform.
func MapFile(string, uint64, Options) (*Mapping, error) { return nil, errUnsupported }

// MapAnonymous is not supported on this platform.
func MapAnonymous(uint64, bool) (*Mapping, error) { return nil, errUnsupported }

// Prefault is not supported on this platform.
func (m *Mapping) Prefault() error { return errUnsupported }

// Resident is not supported on this platform.
func (m *Mapping) Resident() (int, error) { return 0, errUnsupported }

// Revoke is not supported on this platform.
func (m *Mapping) Revoke() error { return errUnsupported }

// Revoke is not supported on this platform.
func (p Partition) Revoke() error { return errUnsupported }

// Close is a no-op on this platform.
func (m *Mapping) Close() error { return nil }

func (m *Mapping) sync(uint64, uint64) error { return errUnsupported }
