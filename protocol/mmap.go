// File: protocol/mmap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mapper maps response files into memory and releases them.
type Mapper interface {
	Map(path string, size int64) ([]byte, error)
	Unmap(b []byte) error
}

// MmapMapper maps files read-only and private.
type MmapMapper struct{}

// Map returns nil for an empty file.
func (MmapMapper) Map(path string, size int64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return b, nil
}

// Unmap releases a mapping returned by Map.
func (MmapMapper) Unmap(b []byte) error {
	return unix.Munmap(b)
}
