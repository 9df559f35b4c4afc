package internal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/sKV/lib/memory"
)

// Chunk layout: an 8-byte header followed by the payload.
//
//	[0]   size class (chunk size = 1 << class)
//	[1]   kind
//	[2:4] reserved
//	[4:8] payload length
const (
	ChunkHeaderSize = 8

	MinClass = 6
	MaxClass = 30

	KindNode = 1
	KindBlob = 2
)

// ClassFor returns the smallest size class holding payload bytes.
func ClassFor(payload uint64) (uint8, error) {
	need := payload + ChunkHeaderSize
	for c := uint8(MinClass); c <= MaxClass; c++ {
		if need <= 1<<c {
			return c, nil
		}
	}
	return 0, fmt.Errorf("payload of %d bytes exceeds the largest chunk", payload)
}

type chunkRef struct {
	off   uint64
	class uint8
}

// Allocator hands out chunks between DataStart and the bump offset and keeps
// released chunks on per-class free lists. The free lists live in memory only
// and are rebuilt on load, so allocation never writes to chunks reachable from
// the committed tree.
//
// Every mutation is bracketed by Begin and Commit or Rollback. Chunks released
// during a mutation are only reusable after Commit; Rollback restores the bump
// offset and the free lists as they were at Begin.
type Allocator struct {
	mem  memory.IMemory
	bump uint64
	free [MaxClass + 1][]uint64

	startBump uint64
	popped    []chunkRef
	pending   []chunkRef
	fresh     map[uint64]uint8
}

// NewAllocator returns an allocator with empty free lists.
func NewAllocator(mem memory.IMemory, bump uint64) *Allocator {
	return &Allocator{mem: mem, bump: bump, fresh: make(map[uint64]uint8)}
}

// Bump returns the end of the chunk area.
func (a *Allocator) Bump() uint64 { return a.bump }

// --------------------------------------------------------------------------
// Mutation Bracket
// --------------------------------------------------------------------------

// Begin starts a mutation.
func (a *Allocator) Begin() {
	a.startBump = a.bump
	a.popped = a.popped[:0]
	a.pending = a.pending[:0]
	clear(a.fresh)
}

// Commit makes the chunks released during the mutation reusable.
func (a *Allocator) Commit() {
	for _, c := range a.pending {
		a.free[c.class] = append(a.free[c.class], c.off)
	}
	a.Begin()
}

// Rollback forgets everything the mutation allocated or released.
func (a *Allocator) Rollback() {
	for i := len(a.popped) - 1; i >= 0; i-- {
		c := a.popped[i]
		a.free[c.class] = append(a.free[c.class], c.off)
	}
	a.bump = a.startBump
	a.Begin()
}

// IsFresh reports whether the chunk at off was allocated by the current mutation.
func (a *Allocator) IsFresh(off uint64) bool {
	_, ok := a.fresh[off]
	return ok
}

// --------------------------------------------------------------------------
// Allocation
// --------------------------------------------------------------------------

// Alloc returns a chunk able to hold payload bytes.
func (a *Allocator) Alloc(payload uint64) (uint64, error) {
	class, err := ClassFor(payload)
	if err != nil {
		return 0, err
	}

	if list := a.free[class]; len(list) > 0 {
		off := list[len(list)-1]
		a.free[class] = list[:len(list)-1]
		a.popped = append(a.popped, chunkRef{off: off, class: class})
		a.fresh[off] = class
		return off, nil
	}

	off := a.bump
	end := off + 1<<class
	if end > math.MaxUint32 {
		return 0, fmt.Errorf("%w: chunk area would exceed 4 GiB", memory.ErrAllocationFailed)
	}
	if err := memory.EnsureSize(a.mem, end); err != nil {
		return 0, err
	}
	a.bump = end
	a.fresh[off] = class
	return off, nil
}

// Free releases the chunk at off once the mutation commits.
func (a *Allocator) Free(off uint64) error {
	class, ok := a.fresh[off]
	if ok {
		delete(a.fresh, off)
	} else {
		h, err := a.readHeader(off)
		if err != nil {
			return err
		}
		class = h.class
	}
	a.pending = append(a.pending, chunkRef{off: off, class: class})
	return nil
}

// --------------------------------------------------------------------------
// Chunk IO
// --------------------------------------------------------------------------

type chunkHeader struct {
	class  uint8
	kind   uint8
	length uint32
}

// WriteChunk writes header and payload of a chunk allocated by the current mutation.
// Writing any other chunk would modify the committed tree and is refused.
func (a *Allocator) WriteChunk(off uint64, kind uint8, payload []byte) error {
	class, ok := a.fresh[off]
	if !ok {
		return fmt.Errorf("%w: write to committed chunk %d", ErrCorruptTree, off)
	}
	if uint64(len(payload))+ChunkHeaderSize > 1<<class {
		return fmt.Errorf("%w: payload of %d bytes does not fit chunk class %d", ErrCorruptTree, len(payload), class)
	}

	buf := make([]byte, ChunkHeaderSize+len(payload))
	buf[0] = class
	buf[1] = kind
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[ChunkHeaderSize:], payload)
	return a.mem.Write(off, buf)
}

// ReadChunk returns the payload of the chunk at off, which must be of the given kind.
func (a *Allocator) ReadChunk(off uint64, kind uint8) ([]byte, error) {
	h, err := a.readHeader(off)
	if err != nil {
		return nil, err
	}
	if h.kind != kind {
		return nil, fmt.Errorf("%w: chunk %d has kind %d, expected %d", ErrCorruptTree, off, h.kind, kind)
	}
	if uint64(h.length)+ChunkHeaderSize > 1<<h.class {
		return nil, fmt.Errorf("%w: chunk %d claims %d bytes in class %d", ErrCorruptTree, off, h.length, h.class)
	}
	return memory.ReadBytes(a.mem, off+ChunkHeaderSize, uint64(h.length))
}

// ChunkSize returns the total size of the chunk at off.
func (a *Allocator) ChunkSize(off uint64) (uint64, error) {
	h, err := a.readHeader(off)
	if err != nil {
		return 0, err
	}
	return 1 << h.class, nil
}

func (a *Allocator) readHeader(off uint64) (chunkHeader, error) {
	if off < DataStart || off+ChunkHeaderSize > a.bump {
		return chunkHeader{}, fmt.Errorf("%w: chunk offset %d outside [%d, %d)", ErrCorruptTree, off, DataStart, a.bump)
	}
	var b [ChunkHeaderSize]byte
	if err := a.mem.Read(off, b[:]); err != nil {
		return chunkHeader{}, err
	}
	h := chunkHeader{class: b[0], kind: b[1], length: binary.LittleEndian.Uint32(b[4:8])}
	if h.class < MinClass || h.class > MaxClass || off+1<<h.class > a.bump {
		return chunkHeader{}, fmt.Errorf("%w: chunk %d has invalid class %d", ErrCorruptTree, off, h.class)
	}
	return h, nil
}

// --------------------------------------------------------------------------
// Rebuild & Accounting
// --------------------------------------------------------------------------

// ChunkInfo describes one chunk found by Scan.
type ChunkInfo struct {
	Offset uint64
	Size   uint64
	Kind   uint8
}

// Scan walks all chunks in [DataStart, bump) in address order.
func (a *Allocator) Scan(fn func(c ChunkInfo) error) error {
	off := uint64(DataStart)
	for off < a.bump {
		h, err := a.readHeader(off)
		if err != nil {
			return err
		}
		if err := fn(ChunkInfo{Offset: off, Size: 1 << h.class, Kind: h.kind}); err != nil {
			return err
		}
		off += 1 << h.class
	}
	if off != a.bump {
		return fmt.Errorf("%w: chunks end at %d, bump is %d", ErrCorruptTree, off, a.bump)
	}
	return nil
}

// Rebuild fills the free lists with every chunk not contained in reachable.
func (a *Allocator) Rebuild(reachable map[uint64]struct{}) error {
	var free [MaxClass + 1][]uint64
	err := a.Scan(func(c ChunkInfo) error {
		if _, ok := reachable[c.Offset]; !ok {
			class := uint8(MinClass)
			for uint64(1)<<class < c.Size {
				class++
			}
			free[class] = append(free[class], c.Offset)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.free = free
	return nil
}

// FreeChunks returns the offsets of all reusable chunks.
func (a *Allocator) FreeChunks() map[uint64]uint64 {
	out := make(map[uint64]uint64)
	for class, list := range a.free {
		for _, off := range list {
			out[off] = 1 << class
		}
	}
	return out
}
