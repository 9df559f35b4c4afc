package internal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	tagLeaf     = 1
	tagInternal = 2

	nodeHeaderSize = 3 // tag u8, count u16
	childRefSize   = 8 // page u32, offset u32
	blobRefSize    = 8
	refPageSize    = 4096
)

// Node is a decoded B-tree node. Keys are raw key encodings, Values are raw
// value slots: the value bytes for inline layouts, an 8-byte blob reference
// for the blob layout. Children holds count+1 chunk offsets for internal nodes.
type Node struct {
	Leaf     bool
	Keys     [][]byte
	Values   [][]byte
	Children []uint64
}

// Search returns the index of the first key >= key and whether it is equal.
func (n *Node) Search(key []byte) (int, bool) {
	i := sort.Search(len(n.Keys), func(i int) bool {
		return bytes.Compare(n.Keys[i], key) >= 0
	})
	return i, i < len(n.Keys) && bytes.Equal(n.Keys[i], key)
}

// InsertAt inserts an entry at index i.
func (n *Node) InsertAt(i int, key, value []byte) {
	n.Keys = append(n.Keys[:i], append([][]byte{key}, n.Keys[i:]...)...)
	n.Values = append(n.Values[:i], append([][]byte{value}, n.Values[i:]...)...)
}

// RemoveAt removes the entry at index i.
func (n *Node) RemoveAt(i int) {
	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Values = append(n.Values[:i], n.Values[i+1:]...)
}

// InsertChild inserts a child offset at index i.
func (n *Node) InsertChild(i int, child uint64) {
	n.Children = append(n.Children[:i], append([]uint64{child}, n.Children[i:]...)...)
}

// RemoveChild removes the child offset at index i.
func (n *Node) RemoveChild(i int) {
	n.Children = append(n.Children[:i], n.Children[i+1:]...)
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeNode serializes n according to the layout:
//
//	tag u8 (1 leaf, 2 internal), count u16,
//	keys   (fixed: raw, bounded: u16 length + bytes),
//	values (fixed: raw, inline: u32 length + bytes, blob: u64 chunk offset),
//	internal nodes only: count+1 children as (page u32, offset u32)
func EncodeNode(l Layout, n *Node) []byte {
	b := make([]byte, nodeHeaderSize, l.NodeSize)
	b[0] = tagLeaf
	if !n.Leaf {
		b[0] = tagInternal
	}
	binary.LittleEndian.PutUint16(b[1:3], uint16(len(n.Keys)))

	for _, k := range n.Keys {
		if l.KeyKind == KeyBounded {
			b = binary.LittleEndian.AppendUint16(b, uint16(len(k)))
		}
		b = append(b, k...)
	}
	for _, v := range n.Values {
		if l.ValueKind == ValueInline {
			b = binary.LittleEndian.AppendUint32(b, uint32(len(v)))
		}
		b = append(b, v...)
	}
	if !n.Leaf {
		for _, c := range n.Children {
			b = binary.LittleEndian.AppendUint32(b, uint32(c/refPageSize))
			b = binary.LittleEndian.AppendUint32(b, uint32(c%refPageSize))
		}
	}
	return b
}

// DecodeNode parses a node. The returned slices do not alias b.
func DecodeNode(l Layout, b []byte) (*Node, error) {
	r := reader{buf: b}

	tag := r.u8()
	count := int(r.u16())
	if r.err != nil {
		return nil, r.err
	}
	if tag != tagLeaf && tag != tagInternal {
		return nil, fmt.Errorf("%w: unknown node tag %d", ErrCorruptTree, tag)
	}
	if count > l.MaxEntries() {
		return nil, fmt.Errorf("%w: node holds %d entries, max is %d", ErrCorruptTree, count, l.MaxEntries())
	}

	n := &Node{Leaf: tag == tagLeaf, Keys: make([][]byte, count), Values: make([][]byte, count)}
	for i := range n.Keys {
		size := l.KeyMaxSize
		if l.KeyKind == KeyBounded {
			size = uint32(r.u16())
			if size > l.KeyMaxSize {
				return nil, fmt.Errorf("%w: key of %d bytes exceeds %d", ErrCorruptTree, size, l.KeyMaxSize)
			}
		}
		n.Keys[i] = r.bytes(size)
	}
	for i := range n.Values {
		var size uint32
		switch l.ValueKind {
		case ValueFixed:
			size = l.ValueMaxSize
		case ValueInline:
			size = r.u32()
			if size > l.ValueMaxSize {
				return nil, fmt.Errorf("%w: inline value of %d bytes exceeds %d", ErrCorruptTree, size, l.ValueMaxSize)
			}
		default:
			size = blobRefSize
		}
		n.Values[i] = r.bytes(size)
	}
	if !n.Leaf {
		n.Children = make([]uint64, count+1)
		for i := range n.Children {
			page, offset := r.u32(), r.u32()
			if offset >= refPageSize {
				return nil, fmt.Errorf("%w: child offset %d not inside its page", ErrCorruptTree, offset)
			}
			n.Children[i] = uint64(page)*refPageSize + uint64(offset)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return n, nil
}

// BlobRef returns the chunk offset stored in a blob value slot.
func BlobRef(slot []byte) uint64 { return binary.LittleEndian.Uint64(slot) }

// MakeBlobRef returns the value slot referencing the blob chunk at off.
func MakeBlobRef(off uint64) []byte { return binary.LittleEndian.AppendUint64(nil, off) }

// reader is a bounds checked little-endian cursor, the first overrun sticks in err.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("%w: node truncated at byte %d", ErrCorruptTree, r.pos)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) bytes(n uint32) []byte {
	return append([]byte{}, r.take(int(n))...)
}
