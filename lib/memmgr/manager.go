package memmgr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("memmgr")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// BucketID identifies a bucket. Ids are stable across restarts.
type BucketID uint8

const (
	// MaxBuckets is the number of bucket ids the directory can hold.
	MaxBuckets = 16

	// RegionPagesPerBucketPage is the number of region pages in one bucket page.
	RegionPagesPerBucketPage = 16

	// BucketPageSize is the unit in which buckets grow.
	BucketPageSize = RegionPagesPerBucketPage * memory.PageSize

	// MaxBucketPages is the number of bucket pages the directory can address.
	MaxBucketPages = 8192
)

const (
	headerMagic   = "SKV"
	layoutVersion = 1

	headerSize = 16
	rootOffset = 8

	slotPages = 5
	slotSize  = slotPages * memory.PageSize

	// slot offsets differ in a single byte, so even a torn root write names one of them
	slotA      = 1 * memory.PageSize
	slotB      = slotA + slotSize
	dataOffset = slotB + slotSize
)

var (
	// ErrCorruptDirectory is returned by Init when the header or the live directory cannot be trusted.
	ErrCorruptDirectory = errors.New("memmgr: corrupt directory")

	// ErrInvalidBucket is returned for bucket ids >= MaxBuckets.
	ErrInvalidBucket = errors.New("memmgr: invalid bucket id")

	// ErrOutOfPages is returned when the directory cannot address any more bucket pages.
	ErrOutOfPages = errors.New("memmgr: out of bucket pages")
)

var directoryCommits = metrics.GetOrCreateCounter(`skv_memmgr_directory_commits_total`)

// --------------------------------------------------------------------------
// Memory Manager
// --------------------------------------------------------------------------

// MemoryManager owns the region and the bucket directory.
type MemoryManager struct {
	region     memory.IMemory
	root       uint64 // offset of the live directory slot
	generation uint64
	totalPages uint64 // bucket pages currently backed by the region
	pages      [MaxBuckets][]uint16
	buckets    [MaxBuckets]*Bucket
}

// Init attaches a memory manager to region. An empty region (or one whose header
// was never committed) is formatted; otherwise the existing directory is loaded.
func Init(region memory.IMemory) (*MemoryManager, error) {
	m := &MemoryManager{region: region}

	if region.Size() < headerSize {
		return m, m.format()
	}

	header := make([]byte, headerSize)
	if err := region.Read(0, header); err != nil {
		return nil, err
	}
	if bytes.Equal(header, make([]byte, headerSize)) {
		log.Infof("region header is empty, formatting")
		return m, m.format()
	}

	if err := m.load(header); err != nil {
		return nil, err
	}
	log.Infof("attached region of %d pages (generation %d, %d bucket pages)",
		region.Size()/memory.PageSize, m.generation, m.totalPages)
	return m, nil
}

// GetBucket returns the bucket with the given id.
// It never writes, a bucket only appears in the directory once it grows.
func (m *MemoryManager) GetBucket(id BucketID) (*Bucket, error) {
	if id >= MaxBuckets {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBucket, id)
	}
	if b := m.buckets[id]; b != nil {
		return b, nil
	}
	b := &Bucket{id: id, mm: m}
	m.buckets[id] = b
	return b, nil
}

// --------------------------------------------------------------------------
// Info
// --------------------------------------------------------------------------

// BucketInfo describes one bucket.
type BucketInfo struct {
	ID        BucketID `json:"id"`
	Pages     int      `json:"pages"`
	SizeBytes uint64   `json:"size_bytes"`
}

// Info describes the state of the region and the directory.
type Info struct {
	RegionBytes     uint64       `json:"region_bytes"`
	RegionPages     uint64       `json:"region_pages"`
	BucketPages     uint64       `json:"bucket_pages"`
	FreeBucketPages uint64       `json:"free_bucket_pages"`
	Generation      uint64       `json:"generation"`
	LiveSlot        string       `json:"live_slot"`
	Buckets         []BucketInfo `json:"buckets"`
}

// Info returns a snapshot of the directory state.
func (m *MemoryManager) Info() Info {
	info := Info{
		RegionBytes: m.region.Size(),
		RegionPages: m.region.Size() / memory.PageSize,
		BucketPages: m.totalPages,
		Generation:  m.generation,
		LiveSlot:    "A",
	}
	if m.root == slotB {
		info.LiveSlot = "B"
	}

	var owned uint64
	for id, pages := range m.pages {
		if len(pages) == 0 {
			continue
		}
		owned += uint64(len(pages))
		info.Buckets = append(info.Buckets, BucketInfo{
			ID:        BucketID(id),
			Pages:     len(pages),
			SizeBytes: uint64(len(pages)) * BucketPageSize,
		})
	}
	info.FreeBucketPages = m.totalPages - owned
	return info
}

// --------------------------------------------------------------------------
// Format & Load
// --------------------------------------------------------------------------

// format writes an empty directory into slot A and then the header.
func (m *MemoryManager) format() error {
	if err := memory.EnsureSize(m.region, dataOffset); err != nil {
		return err
	}
	m.totalPages = (m.region.Size() - dataOffset) / BucketPageSize

	if err := m.writeSlot(slotA, encodeDirectory(0, &m.pages)); err != nil {
		return err
	}

	header := make([]byte, headerSize)
	copy(header, headerMagic)
	header[3] = layoutVersion
	header[4] = RegionPagesPerBucketPage
	putUint64(header[rootOffset:], slotA)
	if err := m.region.Write(0, header); err != nil {
		return err
	}

	m.root = slotA
	log.Infof("formatted region with an empty directory")
	return nil
}

// load validates header and live directory and fills the in-memory state.
func (m *MemoryManager) load(header []byte) error {
	if string(header[:3]) != headerMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptDirectory, header[:3])
	}
	if header[3] != layoutVersion {
		return fmt.Errorf("%w: unsupported version %d (expected %d)", ErrCorruptDirectory, header[3], layoutVersion)
	}
	if geometry := uint16(header[4]) | uint16(header[5])<<8; geometry != RegionPagesPerBucketPage {
		return fmt.Errorf("%w: bucket page geometry %d (expected %d)", ErrCorruptDirectory, geometry, RegionPagesPerBucketPage)
	}

	root := getUint64(header[rootOffset:])
	if root != slotA && root != slotB {
		return fmt.Errorf("%w: directory root %d names no slot", ErrCorruptDirectory, root)
	}
	if m.region.Size() < dataOffset {
		return fmt.Errorf("%w: region of %d bytes is smaller than the header area", ErrCorruptDirectory, m.region.Size())
	}
	m.totalPages = (m.region.Size() - dataOffset) / BucketPageSize

	raw := make([]byte, slotSize)
	if err := m.region.Read(root, raw); err != nil {
		return err
	}
	generation, pages, err := decodeDirectory(raw, m.totalPages)
	if err != nil {
		return err
	}

	m.root = root
	m.generation = generation
	m.pages = pages
	return nil
}

// --------------------------------------------------------------------------
// Growth
// --------------------------------------------------------------------------

// acquire hands n more bucket pages to bucket id and commits the directory.
func (m *MemoryManager) acquire(id BucketID, n uint64) error {
	if n == 0 {
		return nil
	}

	free := m.freePages()
	if missing := n - min(n, uint64(len(free))); missing > 0 {
		if missing > MaxBucketPages-m.totalPages {
			return fmt.Errorf("%w: need %d more, %d of %d in use", ErrOutOfPages, missing, m.totalPages, MaxBucketPages)
		}
		if err := memory.EnsureSize(m.region, dataOffset+(m.totalPages+missing)*BucketPageSize); err != nil {
			return err
		}
		for p := m.totalPages; p < m.totalPages+missing; p++ {
			free = append(free, uint16(p))
		}
		m.totalPages += missing
	}

	// stage the new directory, the in-memory one changes only after the flip
	next := m.pages
	next[id] = append(append(make([]uint16, 0, len(m.pages[id])+int(n)), m.pages[id]...), free[:n]...)
	if err := m.commit(&next); err != nil {
		return err
	}

	m.pages = next
	metrics.GetOrCreateCounter(fmt.Sprintf(`skv_memmgr_bucket_pages_total{bucket="%d"}`, id)).Add(int(n))
	log.Debugf("bucket %d grew by %d pages to %d", id, n, len(next[id]))
	return nil
}

// commit writes pages to the scratch slot and flips the root to it.
func (m *MemoryManager) commit(pages *[MaxBuckets][]uint16) error {
	scratch := uint64(slotA)
	if m.root == slotA {
		scratch = slotB
	}

	if err := m.writeSlot(scratch, encodeDirectory(m.generation+1, pages)); err != nil {
		return err
	}
	if err := memory.WriteUint64(m.region, rootOffset, scratch); err != nil {
		return err
	}

	m.root = scratch
	m.generation++
	directoryCommits.Inc()
	return nil
}

func (m *MemoryManager) writeSlot(slot uint64, body []byte) error {
	return m.region.Write(slot, sealSlot(body))
}

// freePages returns the backed bucket pages no bucket owns, ascending.
func (m *MemoryManager) freePages() []uint16 {
	used := make([]bool, m.totalPages)
	for _, pages := range m.pages {
		for _, p := range pages {
			used[p] = true
		}
	}
	free := make([]uint16, 0, m.totalPages)
	for p, u := range used {
		if !u {
			free = append(free, uint16(p))
		}
	}
	return free
}

// pageOffset returns the region offset of bucket page p.
func pageOffset(p uint16) uint64 {
	return dataOffset + uint64(p)*BucketPageSize
}
