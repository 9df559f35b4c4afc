package memory

import (
	"fmt"
	"math"
	"os"
)

// FileMemory is a region stored in a single file. The file length is the region size.
type FileMemory struct {
	f        *os.File
	size     uint64
	maxPages uint64
}

// OpenFileMemory opens (or creates) the region file at path.
// A maxPages of zero means the region may grow without limit.
func OpenFileMemory(path string, maxPages uint64) (*FileMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	size := uint64(info.Size())
	if size%PageSize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("memory file %s: size %d is not a multiple of the page size", path, size)
	}

	return &FileMemory{f: f, size: size, maxPages: maxPages}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see memory.IMemory)
// --------------------------------------------------------------------------

func (m *FileMemory) Size() uint64 {
	return m.size
}

func (m *FileMemory) Read(offset uint64, dst []byte) error {
	if err := checkBounds(offset, uint64(len(dst)), m.size); err != nil {
		return err
	}
	_, err := m.f.ReadAt(dst, int64(offset))
	return err
}

func (m *FileMemory) Write(offset uint64, src []byte) error {
	if err := checkBounds(offset, uint64(len(src)), m.size); err != nil {
		return err
	}
	_, err := m.f.WriteAt(src, int64(offset))
	return err
}

func (m *FileMemory) Grow(pages uint64) (uint64, error) {
	newSize, err := grownSize(m.size, pages, m.maxPages, math.MaxInt64)
	if err != nil {
		return m.size, err
	}
	if err := m.f.Truncate(int64(newSize)); err != nil {
		return m.size, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	m.size = newSize
	return m.size, nil
}

// --------------------------------------------------------------------------
// File Handling
// --------------------------------------------------------------------------

// Sync flushes the region file to stable storage.
func (m *FileMemory) Sync() error {
	return m.f.Sync()
}

// Close syncs and closes the region file.
func (m *FileMemory) Close() error {
	if err := m.f.Sync(); err != nil {
		_ = m.f.Close()
		return err
	}
	return m.f.Close()
}
