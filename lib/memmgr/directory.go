package memmgr

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Directory slot encoding:
//
//	[0:4]  crc32 (IEEE) of the body
//	[4:8]  body length
//	body:  generation u64, bucket count u8,
//	       then per bucket: id u8, page count u16, page indices [count]u16
const slotHeaderSize = 8

func encodeDirectory(generation uint64, pages *[MaxBuckets][]uint16) []byte {
	body := make([]byte, 9, 9+MaxBuckets*3)
	binary.LittleEndian.PutUint64(body, generation)

	var count uint8
	for id, list := range pages {
		if len(list) == 0 {
			continue
		}
		count++
		body = append(body, uint8(id))
		body = binary.LittleEndian.AppendUint16(body, uint16(len(list)))
		for _, p := range list {
			body = binary.LittleEndian.AppendUint16(body, p)
		}
	}
	body[8] = count
	return body
}

func sealSlot(body []byte) []byte {
	out := make([]byte, slotHeaderSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[slotHeaderSize:], body)
	return out
}

// decodeDirectory parses a whole slot and checks that every page index is
// backed by the region and owned by exactly one bucket.
func decodeDirectory(slot []byte, totalPages uint64) (uint64, [MaxBuckets][]uint16, error) {
	var pages [MaxBuckets][]uint16

	length := uint64(binary.LittleEndian.Uint32(slot[4:8]))
	if length < 9 || length > uint64(len(slot)-slotHeaderSize) {
		return 0, pages, fmt.Errorf("%w: directory length %d", ErrCorruptDirectory, length)
	}
	body := slot[slotHeaderSize : slotHeaderSize+length]
	if sum := crc32.ChecksumIEEE(body); sum != binary.LittleEndian.Uint32(slot[0:4]) {
		return 0, pages, fmt.Errorf("%w: directory checksum mismatch", ErrCorruptDirectory)
	}

	generation := binary.LittleEndian.Uint64(body)
	count := int(body[8])
	body = body[9:]

	owner := make(map[uint16]BucketID)
	for i := 0; i < count; i++ {
		if len(body) < 3 {
			return 0, pages, fmt.Errorf("%w: truncated bucket entry", ErrCorruptDirectory)
		}
		id := BucketID(body[0])
		n := int(binary.LittleEndian.Uint16(body[1:3]))
		body = body[3:]

		if id >= MaxBuckets {
			return 0, pages, fmt.Errorf("%w: bucket id %d out of range", ErrCorruptDirectory, id)
		}
		if pages[id] != nil {
			return 0, pages, fmt.Errorf("%w: bucket %d listed twice", ErrCorruptDirectory, id)
		}
		if n == 0 || len(body) < 2*n {
			return 0, pages, fmt.Errorf("%w: bucket %d has a bad page list", ErrCorruptDirectory, id)
		}

		list := make([]uint16, n)
		for j := range list {
			p := binary.LittleEndian.Uint16(body[2*j:])
			if uint64(p) >= totalPages {
				return 0, pages, fmt.Errorf("%w: bucket %d owns page %d past the region end", ErrCorruptDirectory, id, p)
			}
			if other, taken := owner[p]; taken {
				return 0, pages, fmt.Errorf("%w: page %d owned by buckets %d and %d", ErrCorruptDirectory, p, other, id)
			}
			owner[p] = id
			list[j] = p
		}
		pages[id] = list
		body = body[2*n:]
	}
	if len(body) != 0 {
		return 0, pages, fmt.Errorf("%w: %d trailing bytes", ErrCorruptDirectory, len(body))
	}
	return generation, pages, nil
}

func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func getUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
