package memory

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// maxVectorBytes caps heap regions below the runtime's allocation limit.
	maxVectorBytes uint64 = 1 << 46

	snapshotMagic   = "SKVMEM\x00\x00" // Snapshot format identifier
	snapshotVersion = 1                // Snapshot format version
)

// --------------------------------------------------------------------------
// Heap-backed region
// --------------------------------------------------------------------------

// VectorMemory is a region backed by a byte slice.
// A maxPages of zero means the region may grow without limit.
type VectorMemory struct {
	data     []byte
	maxPages uint64
}

// NewVectorMemory creates an empty heap-backed region.
func NewVectorMemory(maxPages uint64) *VectorMemory {
	return &VectorMemory{maxPages: maxPages}
}

// NewVectorMemoryFrom attaches a region to a copy of raw region bytes,
// e.g. the result of Bytes() taken before a simulated restart.
func NewVectorMemoryFrom(raw []byte, maxPages uint64) (*VectorMemory, error) {
	if uint64(len(raw))%PageSize != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of the page size", ErrInvalidSnapshot, len(raw))
	}
	if maxPages > 0 && uint64(len(raw))/PageSize > maxPages {
		return nil, fmt.Errorf("%w: %d pages exceed the limit of %d", ErrAllocationFailed, uint64(len(raw))/PageSize, maxPages)
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	return &VectorMemory{data: data, maxPages: maxPages}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see memory.IMemory)
// --------------------------------------------------------------------------

func (m *VectorMemory) Size() uint64 {
	return uint64(len(m.data))
}

func (m *VectorMemory) Read(offset uint64, dst []byte) error {
	if err := checkBounds(offset, uint64(len(dst)), m.Size()); err != nil {
		return err
	}
	copy(dst, m.data[offset:])
	return nil
}

func (m *VectorMemory) Write(offset uint64, src []byte) error {
	if err := checkBounds(offset, uint64(len(src)), m.Size()); err != nil {
		return err
	}
	copy(m.data[offset:], src)
	return nil
}

func (m *VectorMemory) Grow(pages uint64) (uint64, error) {
	newSize, err := grownSize(m.Size(), pages, m.maxPages, maxVectorBytes)
	if err != nil {
		return m.Size(), err
	}
	m.data = append(m.data, make([]byte, newSize-m.Size())...)
	return m.Size(), nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Bytes returns a copy of the whole region.
func (m *VectorMemory) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Save writes a snapshot of the region to w.
func (m *VectorMemory) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024)

	// Write file header
	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}

	// Write region size and content
	if err := binary.Write(bw, binary.LittleEndian, m.Size()); err != nil {
		return err
	}
	if _, err := bw.Write(m.data); err != nil {
		return err
	}

	return bw.Flush()
}

// Load replaces the region content with a snapshot read from r.
// On error the region is left unchanged.
func (m *VectorMemory) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	// Read and verify magic number
	magicBytes := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != snapshotMagic {
		return fmt.Errorf("%w: magic number mismatch", ErrInvalidSnapshot)
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d (expected %d)", ErrInvalidSnapshot, version, snapshotVersion)
	}

	// Read size
	var size uint64
	if err := binary.Read(br, binary.LittleEndian, &size); err != nil {
		return err
	}
	if size%PageSize != 0 {
		return fmt.Errorf("%w: size %d is not a multiple of the page size", ErrInvalidSnapshot, size)
	}
	if m.maxPages > 0 && size/PageSize > m.maxPages {
		return fmt.Errorf("%w: snapshot of %d pages exceeds the limit of %d", ErrAllocationFailed, size/PageSize, m.maxPages)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		return err
	}

	m.data = data
	return nil
}
