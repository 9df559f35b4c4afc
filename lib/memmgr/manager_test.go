package memmgr

import (
	"bytes"
	"math"
	"testing"

	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/memory/memtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newManager(t *testing.T) (*MemoryManager, *memory.VectorMemory) {
	t.Helper()
	region := memory.NewVectorMemory(0)
	mm, err := Init(region)
	require.NoError(t, err)
	return mm, region
}

// restart reattaches a new manager to a copy of the region bytes.
func restart(t *testing.T, region *memory.VectorMemory) (*MemoryManager, *memory.VectorMemory) {
	t.Helper()
	copyOf, err := memory.NewVectorMemoryFrom(region.Bytes(), 0)
	require.NoError(t, err)
	mm, err := Init(copyOf)
	require.NoError(t, err)
	return mm, copyOf
}

func bucket(t *testing.T, mm *MemoryManager, id BucketID) *Bucket {
	t.Helper()
	b, err := mm.GetBucket(id)
	require.NoError(t, err)
	return b
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestFormat(t *testing.T) {
	mm, region := newManager(t)

	assert.Equal(t, uint64(dataOffset), region.Size())

	header, err := memory.ReadBytes(region, 0, headerSize)
	require.NoError(t, err)
	assert.Equal(t, []byte("SKV"), header[:3])
	assert.Equal(t, byte(layoutVersion), header[3])
	assert.Equal(t, byte(RegionPagesPerBucketPage), header[4])
	assert.Equal(t, uint64(slotA), getUint64(header[rootOffset:]))

	info := mm.Info()
	assert.Equal(t, uint64(0), info.Generation)
	assert.Equal(t, "A", info.LiveSlot)
	assert.Empty(t, info.Buckets)
	assert.Equal(t, uint64(0), info.BucketPages)
}

func TestSlotRootsDifferInOneByte(t *testing.T) {
	a := make([]byte, 8)
	b := make([]byte, 8)
	putUint64(a, slotA)
	putUint64(b, slotB)

	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	assert.Equal(t, 1, diff)
}

func TestGetBucket(t *testing.T) {
	region := memtest.Wrap(memory.NewVectorMemory(0))
	mm, err := Init(region)
	require.NoError(t, err)
	writes := region.Writes()

	b1 := bucket(t, mm, 3)
	b2 := bucket(t, mm, 3)
	assert.Same(t, b1, b2)
	assert.Equal(t, BucketID(3), b1.ID())
	assert.Equal(t, uint64(0), b1.Size())
	assert.Equal(t, writes, region.Writes(), "GetBucket must not write")

	_, err = mm.GetBucket(MaxBuckets)
	assert.ErrorIs(t, err, ErrInvalidBucket)
}

func TestBucketGrowReadWrite(t *testing.T) {
	mm, region := newManager(t)
	a := bucket(t, mm, 0)
	b := bucket(t, mm, 1)

	// interleave growth so the buckets own non-contiguous pages
	size, err := a.GrowBy(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(BucketPageSize), size)

	_, err = b.Grow(1)
	require.NoError(t, err)
	_, err = a.GrowBy(BucketPageSize + 1)
	require.NoError(t, err)

	assert.Equal(t, 3, a.Pages())
	assert.Equal(t, 1, b.Pages())
	assert.Equal(t, uint64(3*BucketPageSize), a.Size())
	assert.Equal(t, uint64(3), mm.Info().Generation)

	// a write crossing two bucket pages that are not adjacent in the region
	payload := bytes.Repeat([]byte("0123456789"), 10)
	require.NoError(t, a.Write(BucketPageSize-50, payload))
	require.NoError(t, b.Write(0, []byte("other bucket")))

	got := make([]byte, len(payload))
	require.NoError(t, a.Read(BucketPageSize-50, got))
	assert.Equal(t, payload, got)

	assert.ErrorIs(t, a.Write(a.Size()-1, []byte{1, 2}), memory.ErrOutOfBounds)
	assert.ErrorIs(t, b.Read(BucketPageSize, []byte{0}), memory.ErrOutOfBounds)

	// everything survives a restart
	mm2, _ := restart(t, region)
	a2 := bucket(t, mm2, 0)
	b2 := bucket(t, mm2, 1)
	assert.Equal(t, a.Size(), a2.Size())
	assert.Equal(t, b.Size(), b2.Size())

	require.NoError(t, a2.Read(BucketPageSize-50, got))
	assert.Equal(t, payload, got)

	other := make([]byte, 12)
	require.NoError(t, b2.Read(0, other))
	assert.Equal(t, []byte("other bucket"), other)

	info := mm2.Info()
	assert.Equal(t, uint64(3), info.Generation)
	assert.Equal(t, uint64(4), info.BucketPages)
	assert.Equal(t, uint64(0), info.FreeBucketPages)
	assert.Len(t, info.Buckets, 2)
}

func TestReinitializesEmptyHeader(t *testing.T) {
	region := memory.NewVectorMemory(0)
	_, err := region.Grow(3)
	require.NoError(t, err)

	mm, err := Init(region)
	require.NoError(t, err)
	assert.Equal(t, uint64(dataOffset), region.Size())
	assert.Empty(t, mm.Info().Buckets)
}

func TestCorruptDirectory(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, region memory.IMemory)
	}{
		{"Magic", func(t *testing.T, region memory.IMemory) {
			require.NoError(t, region.Write(0, []byte("XYZ")))
		}},
		{"Version", func(t *testing.T, region memory.IMemory) {
			require.NoError(t, region.Write(3, []byte{layoutVersion + 1}))
		}},
		{"Geometry", func(t *testing.T, region memory.IMemory) {
			require.NoError(t, memory.WriteUint16(region, 4, 8))
		}},
		{"Root", func(t *testing.T, region memory.IMemory) {
			require.NoError(t, memory.WriteUint64(region, rootOffset, 12345))
		}},
		{"Checksum", func(t *testing.T, region memory.IMemory) {
			// live slot is B after one growth; flip a page index byte
			raw, err := memory.ReadBytes(region, slotB+slotHeaderSize+12, 1)
			require.NoError(t, err)
			require.NoError(t, region.Write(slotB+slotHeaderSize+12, []byte{raw[0] ^ 0xFF}))
		}},
		{"Length", func(t *testing.T, region memory.IMemory) {
			require.NoError(t, memory.WriteUint32(region, slotB+4, uint32(slotSize)))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm, region := newManager(t)
			_, err := bucket(t, mm, 0).GrowBy(1)
			require.NoError(t, err)

			tt.corrupt(t, region)

			copyOf, err := memory.NewVectorMemoryFrom(region.Bytes(), 0)
			require.NoError(t, err)
			_, err = Init(copyOf)
			assert.ErrorIs(t, err, ErrCorruptDirectory)
		})
	}
}

func TestDecodeDirectoryRejectsSharedPages(t *testing.T) {
	var pages [MaxBuckets][]uint16
	pages[0] = []uint16{0, 1}
	pages[2] = []uint16{1}

	slot := make([]byte, slotSize)
	copy(slot, sealSlot(encodeDirectory(7, &pages)))

	_, _, err := decodeDirectory(slot, 2)
	assert.ErrorIs(t, err, ErrCorruptDirectory)

	pages[2] = []uint16{2}
	copy(slot, sealSlot(encodeDirectory(7, &pages)))
	_, _, err = decodeDirectory(slot, 2)
	assert.ErrorIs(t, err, ErrCorruptDirectory, "page 2 is not backed by the region")

	generation, decoded, err := decodeDirectory(slot, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), generation)
	assert.Equal(t, pages, decoded)
}

func TestAllocationFailed(t *testing.T) {
	region := memory.NewVectorMemory(dataOffset/memory.PageSize + RegionPagesPerBucketPage)
	mm, err := Init(region)
	require.NoError(t, err)
	b := bucket(t, mm, 0)

	_, err = b.GrowBy(1)
	require.NoError(t, err)

	size, err := b.GrowBy(1)
	assert.ErrorIs(t, err, memory.ErrAllocationFailed)
	assert.Equal(t, uint64(BucketPageSize), size)
	assert.Equal(t, uint64(1), mm.Info().Generation)
}

func TestOutOfPages(t *testing.T) {
	mm, region := newManager(t)
	before := region.Size()

	_, err := bucket(t, mm, 0).GrowBy((MaxBucketPages + 1) * BucketPageSize)
	assert.ErrorIs(t, err, ErrOutOfPages)
	assert.Equal(t, before, region.Size(), "the region must not grow for a request that cannot be addressed")
}

func TestAbortedGrowth(t *testing.T) {
	for _, mode := range []memtest.Mode{memtest.Fail, memtest.Tear} {
		// a growth issues two writes: the scratch slot and the root
		for ordinal := int64(1); ordinal <= 2; ordinal++ {
			inner := memory.NewVectorMemory(0)
			region := memtest.Wrap(inner)
			mm, err := Init(region)
			require.NoError(t, err)

			b := bucket(t, mm, 0)
			_, err = b.GrowBy(1)
			require.NoError(t, err)
			require.NoError(t, b.Write(10, []byte("kept")))

			region.Arm(ordinal, mode)
			_, err = b.GrowBy(1)
			require.ErrorIs(t, err, memtest.ErrInjected)
			assert.Equal(t, 1, b.Pages(), "in-memory directory must not change on failure")

			// reattach from whatever reached the region
			mm2, _ := restart(t, inner)
			b2 := bucket(t, mm2, 0)
			assert.Contains(t, []int{1, 2}, b2.Pages(), "mode %d ordinal %d", mode, ordinal)

			got := make([]byte, 4)
			require.NoError(t, b2.Read(10, got))
			assert.Equal(t, []byte("kept"), got)

			// the manager keeps working after a failed growth, reusing the page it already backed
			region.Disarm()
			grows := region.Grows()
			_, err = b.GrowBy(1)
			require.NoError(t, err)
			assert.Equal(t, 2, b.Pages())
			assert.Equal(t, grows, region.Grows(), "the page backed by the failed growth is reused")
		}
	}
}

func TestGrowOverflow(t *testing.T) {
	mm, region := newManager(t)
	b := bucket(t, mm, 0)
	before := region.Size()

	for _, n := range []uint64{math.MaxUint64, math.MaxUint64 - BucketPageSize + 2} {
		size, err := b.GrowBy(n)
		assert.ErrorIs(t, err, memory.ErrAllocationFailed, "%d bytes", n)
		assert.Equal(t, uint64(0), size)
	}

	_, err := b.Grow(math.MaxUint64/memory.PageSize + 1)
	assert.ErrorIs(t, err, memory.ErrAllocationFailed)

	// large but representable requests run out of directory pages instead
	_, err = b.GrowBy(math.MaxUint64 - BucketPageSize)
	assert.ErrorIs(t, err, ErrOutOfPages)

	assert.Equal(t, before, region.Size())
	assert.Equal(t, 0, b.Pages())
	assert.Equal(t, uint64(0), mm.Info().Generation)
}
