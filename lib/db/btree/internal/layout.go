// Package internal holds the byte-level pieces of the B-tree: the layout
// header, the double meta record, the node encoding and the chunk allocator.
// Nothing in here knows about key or value types; keys are raw encodings and
// values are raw slots (inline bytes or a blob reference).
package internal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/ValentinKolb/sKV/lib/codec"
)

// ErrCorruptTree is returned for persisted bytes that violate the tree format.
var ErrCorruptTree = errors.New("btree: corrupt tree")

// ErrLayoutMismatch is returned when a stored tree was created with other codecs or options.
var ErrLayoutMismatch = errors.New("btree: layout mismatch")

const (
	layoutMagic   = "BTR"
	layoutVersion = 1

	// LayoutSize is the space reserved for the layout header.
	LayoutSize = 64
	// MetaSize is the size of one meta record.
	MetaSize = 32
	// MetaA and MetaB are the offsets of the two meta records.
	MetaA = LayoutSize
	MetaB = MetaA + MetaSize
	// DataStart is where the first chunk begins.
	DataStart = MetaB + MetaSize

	// MaxInlineValue is the largest bound stored inside nodes, larger values become blobs.
	MaxInlineValue = 512
	// MaxKeySize is the largest key bound a tree accepts.
	MaxKeySize = 1024
	// MaxOrder is the largest supported order.
	MaxOrder = 256
)

// KeyKind describes how keys are laid out in a node.
type KeyKind uint8

const (
	KeyFixed   KeyKind = iota // raw bytes of the fixed size
	KeyBounded                // u16 length + bytes
)

func (k KeyKind) String() string {
	if k == KeyFixed {
		return "fixed"
	}
	return "bounded"
}

// ValueKind describes how values are laid out in a node.
type ValueKind uint8

const (
	ValueFixed  ValueKind = iota // raw bytes of the fixed size
	ValueInline                  // u32 length + bytes
	ValueBlob                    // 8-byte reference to a blob chunk
)

func (v ValueKind) String() string {
	switch v {
	case ValueFixed:
		return "fixed"
	case ValueInline:
		return "inline"
	default:
		return "blob"
	}
}

// --------------------------------------------------------------------------
// Layout
// --------------------------------------------------------------------------

// Layout is the geometry of a tree, derived from the codec bounds and the order.
//
// Persisted at offset 0 of the bucket:
//
//	[0:3]   "BTR"
//	[3]     version
//	[4]     key kind
//	[5]     value kind
//	[6:8]   order
//	[8:12]  key max size
//	[12:16] value max size (0 = unbounded)
//	[16:20] node size
//	[20:24] crc32 of [0:20]
type Layout struct {
	KeyKind      KeyKind
	ValueKind    ValueKind
	Order        uint16
	KeyMaxSize   uint32
	ValueMaxSize uint32
	NodeSize     uint32
}

// NewLayout derives the layout for the given bounds and order.
func NewLayout(key, value codec.Bound, order uint16) Layout {
	l := Layout{
		KeyKind:      KeyBounded,
		ValueKind:    ValueBlob,
		Order:        order,
		KeyMaxSize:   key.MaxSize,
		ValueMaxSize: value.MaxSize,
	}
	if key.IsFixedSize {
		l.KeyKind = KeyFixed
	}
	if !value.IsUnbounded() && value.MaxSize <= MaxInlineValue {
		l.ValueKind = ValueInline
		if value.IsFixedSize {
			l.ValueKind = ValueFixed
		}
	}
	l.NodeSize = l.maxNodeSize()
	return l
}

// MaxEntries is the largest number of entries in a node (2t-1).
func (l Layout) MaxEntries() int { return 2*int(l.Order) - 1 }

// MinEntries is the smallest number of entries in a non-root node (t-1).
func (l Layout) MinEntries() int { return int(l.Order) - 1 }

func (l Layout) keySlotSize() uint32 {
	if l.KeyKind == KeyFixed {
		return l.KeyMaxSize
	}
	return 2 + l.KeyMaxSize
}

func (l Layout) valueSlotSize() uint32 {
	switch l.ValueKind {
	case ValueFixed:
		return l.ValueMaxSize
	case ValueInline:
		return 4 + l.ValueMaxSize
	default:
		return 8
	}
}

func (l Layout) maxNodeSize() uint32 {
	n := uint32(l.MaxEntries())
	return nodeHeaderSize + n*(l.keySlotSize()+l.valueSlotSize()) + (n+1)*childRefSize
}

// Encode returns the persisted layout header.
func (l Layout) Encode() []byte {
	b := make([]byte, LayoutSize)
	copy(b, layoutMagic)
	b[3] = layoutVersion
	b[4] = byte(l.KeyKind)
	b[5] = byte(l.ValueKind)
	binary.LittleEndian.PutUint16(b[6:8], l.Order)
	binary.LittleEndian.PutUint32(b[8:12], l.KeyMaxSize)
	binary.LittleEndian.PutUint32(b[12:16], l.ValueMaxSize)
	binary.LittleEndian.PutUint32(b[16:20], l.NodeSize)
	binary.LittleEndian.PutUint32(b[20:24], crc32.ChecksumIEEE(b[:20]))
	return b
}

// DecodeLayout parses a persisted layout header.
func DecodeLayout(b []byte) (Layout, error) {
	if len(b) < LayoutSize || string(b[:3]) != layoutMagic {
		return Layout{}, fmt.Errorf("%w: bad layout magic", ErrCorruptTree)
	}
	if b[3] != layoutVersion {
		return Layout{}, fmt.Errorf("%w: unsupported layout version %d", ErrCorruptTree, b[3])
	}
	if crc32.ChecksumIEEE(b[:20]) != binary.LittleEndian.Uint32(b[20:24]) {
		return Layout{}, fmt.Errorf("%w: layout checksum mismatch", ErrCorruptTree)
	}
	l := Layout{
		KeyKind:      KeyKind(b[4]),
		ValueKind:    ValueKind(b[5]),
		Order:        binary.LittleEndian.Uint16(b[6:8]),
		KeyMaxSize:   binary.LittleEndian.Uint32(b[8:12]),
		ValueMaxSize: binary.LittleEndian.Uint32(b[12:16]),
		NodeSize:     binary.LittleEndian.Uint32(b[16:20]),
	}
	if l.KeyKind > KeyBounded || l.ValueKind > ValueBlob || l.Order < 2 || l.Order > MaxOrder {
		return Layout{}, fmt.Errorf("%w: invalid layout %+v", ErrCorruptTree, l)
	}
	if l.NodeSize != l.maxNodeSize() {
		return Layout{}, fmt.Errorf("%w: node size %d does not match the geometry", ErrCorruptTree, l.NodeSize)
	}
	return l, nil
}

// Compatible reports ErrLayoutMismatch if a stored layout cannot be read with want.
// An Order of 0 in want accepts any stored order.
func (l Layout) Compatible(want Layout) error {
	if l.KeyKind != want.KeyKind || l.KeyMaxSize != want.KeyMaxSize {
		return fmt.Errorf("%w: stored keys are %s(%d), codec declares %s(%d)",
			ErrLayoutMismatch, l.KeyKind, l.KeyMaxSize, want.KeyKind, want.KeyMaxSize)
	}
	if l.ValueKind != want.ValueKind || l.ValueMaxSize != want.ValueMaxSize {
		return fmt.Errorf("%w: stored values are %s(%d), codec declares %s(%d)",
			ErrLayoutMismatch, l.ValueKind, l.ValueMaxSize, want.ValueKind, want.ValueMaxSize)
	}
	if want.Order != 0 && l.Order != want.Order {
		return fmt.Errorf("%w: stored order %d, requested %d", ErrLayoutMismatch, l.Order, want.Order)
	}
	return nil
}

// --------------------------------------------------------------------------
// Meta
// --------------------------------------------------------------------------

// Meta is the commit record of the tree. Two copies alternate between MetaA
// and MetaB; the valid one with the highest generation is current.
//
//	[0:8]   generation
//	[8:16]  root chunk offset (0 = empty tree)
//	[16:24] number of entries
//	[24:28] bump offset (end of the chunk area)
//	[28:32] crc32 of [0:28]
type Meta struct {
	Generation uint64
	Root       uint64
	Length     uint64
	Bump       uint32
}

// Slot returns the offset the meta with this generation is stored at.
func (m Meta) Slot() uint64 {
	if m.Generation%2 == 0 {
		return MetaA
	}
	return MetaB
}

// Encode returns the persisted meta record.
func (m Meta) Encode() []byte {
	b := make([]byte, MetaSize)
	binary.LittleEndian.PutUint64(b[0:8], m.Generation)
	binary.LittleEndian.PutUint64(b[8:16], m.Root)
	binary.LittleEndian.PutUint64(b[16:24], m.Length)
	binary.LittleEndian.PutUint32(b[24:28], m.Bump)
	binary.LittleEndian.PutUint32(b[28:32], crc32.ChecksumIEEE(b[:28]))
	return b
}

// DecodeMeta parses a meta record, ok is false if the checksum does not match.
func DecodeMeta(b []byte) (m Meta, ok bool) {
	if len(b) < MetaSize || crc32.ChecksumIEEE(b[:28]) != binary.LittleEndian.Uint32(b[28:32]) {
		return Meta{}, false
	}
	return Meta{
		Generation: binary.LittleEndian.Uint64(b[0:8]),
		Root:       binary.LittleEndian.Uint64(b[8:16]),
		Length:     binary.LittleEndian.Uint64(b[16:24]),
		Bump:       binary.LittleEndian.Uint32(b[24:28]),
	}, true
}

// PickMeta returns the current meta out of the two stored records.
func PickMeta(a, b []byte) (Meta, error) {
	ma, okA := DecodeMeta(a)
	mb, okB := DecodeMeta(b)
	okA = okA && ma.Slot() == MetaA
	okB = okB && mb.Slot() == MetaB
	switch {
	case okA && okB:
		if mb.Generation > ma.Generation {
			return mb, nil
		}
		return ma, nil
	case okA:
		return ma, nil
	case okB:
		return mb, nil
	}
	return Meta{}, fmt.Errorf("%w: no valid meta record", ErrCorruptTree)
}
