package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PageSize is the granularity in which every region grows.
const PageSize uint64 = 4096

var (
	// ErrOutOfBounds is returned when a read or write touches bytes past the current size.
	ErrOutOfBounds = errors.New("memory: access out of bounds")

	// ErrAllocationFailed is returned when the backing refuses to grow the region.
	ErrAllocationFailed = errors.New("memory: allocation failed")

	// ErrInvalidSnapshot is returned by Load for input that is not a region snapshot.
	ErrInvalidSnapshot = errors.New("memory: invalid snapshot")
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IMemory is a flat sequence of bytes that grows by whole pages and never shrinks.
// Size is always a multiple of PageSize.
type IMemory interface {
	// Size returns the current length of the region in bytes.
	Size() uint64

	// Read fills dst with the bytes starting at offset.
	// It fails with ErrOutOfBounds if offset+len(dst) exceeds Size.
	Read(offset uint64, dst []byte) error

	// Write copies src into the region starting at offset.
	// It fails with ErrOutOfBounds if offset+len(src) exceeds Size, callers must Grow first.
	Write(offset uint64, src []byte) error

	// Grow extends the region by the given number of pages and returns the new size in bytes.
	// It fails with ErrAllocationFailed if the backing refuses; the size is then unchanged.
	Grow(pages uint64) (newSize uint64, err error)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// checkBounds reports ErrOutOfBounds if [offset, offset+length) is not inside size.
func checkBounds(offset, length, size uint64) error {
	end := offset + length
	if end < offset || end > size {
		return fmt.Errorf("%w: [%d, %d) exceeds size %d", ErrOutOfBounds, offset, end, size)
	}
	return nil
}

// grownSize returns the size after adding pages to a region of size bytes.
// It fails with ErrAllocationFailed if the result would exceed limit bytes or
// maxPages pages (0 means no page limit).
func grownSize(size, pages, maxPages, limit uint64) (uint64, error) {
	if size > limit || pages > (limit-size)/PageSize {
		return size, fmt.Errorf("%w: %d pages do not fit next to %d bytes", ErrAllocationFailed, pages, size)
	}
	current := size / PageSize
	if maxPages > 0 && (current > maxPages || pages > maxPages-current) {
		return size, fmt.Errorf("%w: %d + %d pages exceed the limit of %d", ErrAllocationFailed, current, pages, maxPages)
	}
	return size + pages*PageSize, nil
}

// PagesFor returns the number of pages needed to hold n bytes.
func PagesFor(n uint64) uint64 {
	return (n + PageSize - 1) / PageSize
}

// EnsureSize grows m until it is at least size bytes long.
func EnsureSize(m IMemory, size uint64) error {
	current := m.Size()
	if current >= size {
		return nil
	}
	_, err := m.Grow(PagesFor(size - current))
	return err
}

// ReadBytes reads length bytes starting at offset into a new slice.
func ReadBytes(m IMemory, offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if err := m.Read(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadUint16 reads a little-endian uint16 at offset.
func ReadUint16(m IMemory, offset uint64) (uint16, error) {
	var b [2]byte
	if err := m.Read(offset, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadUint32 reads a little-endian uint32 at offset.
func ReadUint32(m IMemory, offset uint64) (uint32, error) {
	var b [4]byte
	if err := m.Read(offset, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadUint64 reads a little-endian uint64 at offset.
func ReadUint64(m IMemory, offset uint64) (uint64, error) {
	var b [8]byte
	if err := m.Read(offset, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// WriteUint16 writes v as little-endian uint16 at offset.
func WriteUint16(m IMemory, offset uint64, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return m.Write(offset, b[:])
}

// WriteUint32 writes v as little-endian uint32 at offset.
func WriteUint32(m IMemory, offset uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(offset, b[:])
}

// WriteUint64 writes v as little-endian uint64 at offset.
func WriteUint64(m IMemory, offset uint64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.Write(offset, b[:])
}
