package memmgr

import (
	"fmt"
	"math"

	"github.com/ValentinKolb/sKV/lib/memory"
)

// Bucket is a growable sub-region. It implements memory.IMemory with offsets
// relative to the start of the bucket.
type Bucket struct {
	id BucketID
	mm *MemoryManager
}

// ID returns the bucket id.
func (b *Bucket) ID() BucketID { return b.id }

// Pages returns the number of bucket pages the bucket owns.
func (b *Bucket) Pages() int { return len(b.mm.pages[b.id]) }

// --------------------------------------------------------------------------
// Interface Methods (docu see memory.IMemory)
// --------------------------------------------------------------------------

func (b *Bucket) Size() uint64 {
	return uint64(len(b.mm.pages[b.id])) * BucketPageSize
}

func (b *Bucket) Read(offset uint64, dst []byte) error {
	return b.span(offset, dst, b.mm.region.Read)
}

func (b *Bucket) Write(offset uint64, src []byte) error {
	return b.span(offset, src, b.mm.region.Write)
}

// Grow acquires enough bucket pages to add at least pages region pages.
func (b *Bucket) Grow(pages uint64) (uint64, error) {
	if pages > math.MaxUint64/memory.PageSize {
		return b.Size(), fmt.Errorf("bucket %d: %w: %d pages", b.id, memory.ErrAllocationFailed, pages)
	}
	return b.GrowBy(pages * memory.PageSize)
}

// --------------------------------------------------------------------------
// Growth
// --------------------------------------------------------------------------

// GrowBy acquires whole bucket pages covering at least n more bytes and
// returns the new size. The directory is committed before GrowBy returns.
func (b *Bucket) GrowBy(n uint64) (uint64, error) {
	if n > math.MaxUint64-(BucketPageSize-1) {
		return b.Size(), fmt.Errorf("bucket %d: %w: %d bytes", b.id, memory.ErrAllocationFailed, n)
	}
	need := (n + BucketPageSize - 1) / BucketPageSize
	if err := b.mm.acquire(b.id, need); err != nil {
		return b.Size(), fmt.Errorf("bucket %d: %w", b.id, err)
	}
	return b.Size(), nil
}

// span applies op to the region ranges backing [offset, offset+len(buf)).
func (b *Bucket) span(offset uint64, buf []byte, op func(uint64, []byte) error) error {
	size := b.Size()
	end := offset + uint64(len(buf))
	if end < offset || end > size {
		return fmt.Errorf("%w: bucket %d [%d, %d) exceeds size %d", memory.ErrOutOfBounds, b.id, offset, end, size)
	}

	pages := b.mm.pages[b.id]
	for len(buf) > 0 {
		idx := offset / BucketPageSize
		inner := offset % BucketPageSize
		n := min(uint64(len(buf)), BucketPageSize-inner)
		if err := op(pageOffset(pages[idx])+inner, buf[:n]); err != nil {
			return err
		}
		buf = buf[n:]
		offset += n
	}
	return nil
}
