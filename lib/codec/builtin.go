package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Integers (big-endian, so byte order equals numeric order)
// --------------------------------------------------------------------------

type uint64Codec struct{}

// Uint64 returns a fixed 8-byte codec.
func Uint64() Codec[uint64] { return uint64Codec{} }

func (uint64Codec) ToBytes(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func (uint64Codec) FromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: uint64 needs 8 bytes, got %d", ErrDecode, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func (uint64Codec) Bound() Bound { return Fixed(8) }

type uint32Codec struct{}

// Uint32 returns a fixed 4-byte codec.
func Uint32() Codec[uint32] { return uint32Codec{} }

func (uint32Codec) ToBytes(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func (uint32Codec) FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: uint32 needs 4 bytes, got %d", ErrDecode, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func (uint32Codec) Bound() Bound { return Fixed(4) }

// --------------------------------------------------------------------------
// Strings & Bytes
// --------------------------------------------------------------------------

type stringCodec struct{ bound Bound }

// String returns an unbounded codec for Go strings. Any byte sequence
// round-trips, including invalid UTF-8.
func String() Codec[string] { return stringCodec{bound: Unbounded} }

// BoundedString returns a string codec for encodings of at most n bytes.
func BoundedString(n uint32) Codec[string] { return stringCodec{bound: Bounded(n)} }

func (c stringCodec) ToBytes(v string) []byte { return []byte(v) }

func (c stringCodec) FromBytes(b []byte) (string, error) {
	if err := c.bound.Check(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(b), nil
}

func (c stringCodec) Bound() Bound { return c.bound }

type bytesCodec struct{ bound Bound }

// Bytes returns an unbounded codec for raw bytes.
func Bytes() Codec[[]byte] { return bytesCodec{bound: Unbounded} }

// BoundedBytes returns a codec for raw byte strings of at most n bytes.
func BoundedBytes(n uint32) Codec[[]byte] { return bytesCodec{bound: Bounded(n)} }

func (c bytesCodec) ToBytes(v []byte) []byte { return append([]byte(nil), v...) }

func (c bytesCodec) FromBytes(b []byte) ([]byte, error) {
	if err := c.bound.Check(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return append([]byte{}, b...), nil
}

func (c bytesCodec) Bound() Bound { return c.bound }

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

type jsonCodec[T any] struct{ bound Bound }

// JSON returns a codec storing T as JSON. encoding/json sorts map keys, which
// keeps the encoding deterministic. Values that cannot be marshalled (NaN,
// channels, cyclic data) fail Encode with ErrEncode and make ToBytes panic.
func JSON[T any](bound Bound) Codec[T] { return jsonCodec[T]{bound: bound} }

func (c jsonCodec[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return b, nil
}

func (c jsonCodec[T]) ToBytes(v T) []byte {
	b, err := c.Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (c jsonCodec[T]) FromBytes(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

func (c jsonCodec[T]) Bound() Bound { return c.bound }
