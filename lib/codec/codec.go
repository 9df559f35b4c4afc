// Package codec defines the serialization contract every key and value stored
// in sKV must satisfy, together with a small set of builtin codecs.
//
// A Codec encodes deterministically (the same logical value always yields the
// same bytes) and decodes so that FromBytes(ToBytes(v)) is equivalent to v. It
// also declares a Bound: fixed-size encodings are laid out flat inside B-tree
// nodes, bounded encodings are length-prefixed inline, and unbounded encodings
// are stored out of line. Decoding failures wrap ErrDecode and concern only the
// entry being read.
//
// Keys are ordered by the byte order of their encodings, so a key codec must be
// order-preserving (the integer codecs here are big-endian for that reason).
package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is wrapped by every decoding failure.
	ErrDecode = errors.New("codec: decode error")

	// ErrEncode is wrapped by every encoding failure.
	ErrEncode = errors.New("codec: encode error")

	// ErrBoundExceeded is returned when an encoding is larger than its declared bound.
	ErrBoundExceeded = errors.New("codec: encoded size exceeds bound")
)

// Codec converts values of type T to and from bytes.
type Codec[T any] interface {
	// ToBytes returns the encoding of v. It must be deterministic.
	ToBytes(v T) []byte

	// FromBytes decodes b. Malformed input yields an error wrapping ErrDecode.
	FromBytes(b []byte) (T, error)

	// Bound declares the size class of every encoding this codec produces.
	Bound() Bound
}

// Encoder is implemented by codecs that cannot encode every value of T.
// Their ToBytes panics on such values, Encode reports them instead.
type Encoder[T any] interface {
	Encode(v T) ([]byte, error)
}

// Encode encodes v with c, returning an error wrapping ErrEncode if c
// implements Encoder and refuses v.
func Encode[T any](c Codec[T], v T) ([]byte, error) {
	if e, ok := c.(Encoder[T]); ok {
		return e.Encode(v)
	}
	return c.ToBytes(v), nil
}

// --------------------------------------------------------------------------
// Bound
// --------------------------------------------------------------------------

// Bound describes the size class of a codec's encodings.
// A MaxSize of 0 means unbounded.
type Bound struct {
	MaxSize     uint32 `json:"max_size"`
	IsFixedSize bool   `json:"is_fixed_size"`
}

// Unbounded is the bound of encodings without a size limit.
var Unbounded = Bound{}

// Bounded returns the bound of variable-size encodings of at most n bytes.
func Bounded(n uint32) Bound { return Bound{MaxSize: n} }

// Fixed returns the bound of encodings of exactly n bytes.
func Fixed(n uint32) Bound { return Bound{MaxSize: n, IsFixedSize: true} }

// IsUnbounded reports whether the bound has no size limit.
func (b Bound) IsUnbounded() bool { return b.MaxSize == 0 }

// Check verifies that encoded fits the bound.
func (b Bound) Check(encoded []byte) error {
	switch {
	case b.IsUnbounded():
		return nil
	case b.IsFixedSize && uint32(len(encoded)) != b.MaxSize:
		return fmt.Errorf("%w: fixed size %d, got %d bytes", ErrBoundExceeded, b.MaxSize, len(encoded))
	case uint64(len(encoded)) > uint64(b.MaxSize):
		return fmt.Errorf("%w: max %d, got %d bytes", ErrBoundExceeded, b.MaxSize, len(encoded))
	}
	return nil
}

func (b Bound) String() string {
	switch {
	case b.IsUnbounded():
		return "unbounded"
	case b.IsFixedSize:
		return fmt.Sprintf("fixed(%d)", b.MaxSize)
	default:
		return fmt.Sprintf("bounded(%d)", b.MaxSize)
	}
}

// --------------------------------------------------------------------------
// Func adapter
// --------------------------------------------------------------------------

// Funcs builds a Codec from plain functions.
type Funcs[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, error)
	Size   Bound
}

func (f Funcs[T]) ToBytes(v T) []byte            { return f.Encode(v) }
func (f Funcs[T]) FromBytes(b []byte) (T, error) { return f.Decode(b) }
func (f Funcs[T]) Bound() Bound                  { return f.Size }
