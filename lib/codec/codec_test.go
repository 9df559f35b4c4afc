package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegerCodecs(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 1 << 32, math.MaxUint64}
	c := Uint64()
	assert.Equal(t, Fixed(8), c.Bound())

	for i, v := range values {
		enc := c.ToBytes(v)
		require.NoError(t, c.Bound().Check(enc))

		dec, err := c.FromBytes(enc)
		require.NoError(t, err)
		assert.Equal(t, v, dec)

		// byte order equals numeric order
		if i > 0 {
			assert.Equal(t, -1, bytes.Compare(c.ToBytes(values[i-1]), enc))
		}
	}

	_, err := c.FromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrDecode)

	c32 := Uint32()
	dec, err := c32.FromBytes(c32.ToBytes(0xCAFEBABE))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), dec)
	_, err = c32.FromBytes(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestStringCodecs(t *testing.T) {
	s := String()
	assert.True(t, s.Bound().IsUnbounded())

	// Go strings are byte strings, invalid UTF-8 round-trips too
	for _, v := range []string{"", "hello", "grüße", "\xff", "\xff\xfe", string(make([]byte, 10_000))} {
		dec, err := s.FromBytes(s.ToBytes(v))
		require.NoError(t, err)
		assert.Equal(t, v, dec)
	}

	bs := BoundedString(4)
	assert.Equal(t, Bounded(4), bs.Bound())
	assert.ErrorIs(t, bs.Bound().Check(bs.ToBytes("too long")), ErrBoundExceeded)
	_, err := bs.FromBytes([]byte("too long"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestBytesCodecs(t *testing.T) {
	c := Bytes()
	in := []byte{1, 2, 3}
	enc := c.ToBytes(in)
	in[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, enc, "encoding must not alias the input")

	dec, err := c.FromBytes(enc)
	require.NoError(t, err)
	enc[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, dec, "decoding must not alias the stored bytes")

	_, err = BoundedBytes(2).FromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestJSONCodec(t *testing.T) {
	type profile struct {
		Name  string            `json:"name"`
		Tags  map[string]string `json:"tags"`
		Score int               `json:"score"`
	}
	c := JSON[profile](Unbounded)

	v := profile{Name: "alice", Tags: map[string]string{"b": "2", "a": "1"}, Score: 7}
	enc := c.ToBytes(v)
	assert.Equal(t, enc, c.ToBytes(v), "encoding must be deterministic")

	dec, err := c.FromBytes(enc)
	require.NoError(t, err)
	assert.Equal(t, v, dec)

	_, err = c.FromBytes([]byte("{not json"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestJSONCodecRefusesUnencodable(t *testing.T) {
	c := JSON[float64](Unbounded)

	_, err := Encode(c, math.NaN())
	assert.ErrorIs(t, err, ErrEncode)
	assert.Panics(t, func() { c.ToBytes(math.Inf(1)) })

	enc, err := Encode(c, 1.5)
	require.NoError(t, err)
	dec, err := c.FromBytes(enc)
	require.NoError(t, err)
	assert.Equal(t, 1.5, dec)
}

func TestEncodeWithoutEncoder(t *testing.T) {
	enc, err := Encode(Uint32(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 7}, enc)
}

func TestBound(t *testing.T) {
	tests := []struct {
		bound Bound
		size  int
		ok    bool
		str   string
	}{
		{Unbounded, 1 << 20, true, "unbounded"},
		{Bounded(10), 10, true, "bounded(10)"},
		{Bounded(10), 11, false, "bounded(10)"},
		{Bounded(10), 0, true, "bounded(10)"},
		{Fixed(8), 8, true, "fixed(8)"},
		{Fixed(8), 7, false, "fixed(8)"},
	}
	for _, tt := range tests {
		err := tt.bound.Check(make([]byte, tt.size))
		if tt.ok && err != nil {
			t.Errorf("%s.Check(%d bytes) = %v, want nil", tt.bound, tt.size, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s.Check(%d bytes) = nil, want error", tt.bound, tt.size)
		}
		if tt.bound.String() != tt.str {
			t.Errorf("String() = %q, want %q", tt.bound.String(), tt.str)
		}
	}
}

func TestFuncs(t *testing.T) {
	c := Funcs[int]{
		Encode: func(v int) []byte { return []byte{byte(v)} },
		Decode: func(b []byte) (int, error) { return int(b[0]), nil },
		Size:   Fixed(1),
	}
	var _ Codec[int] = c

	dec, err := c.FromBytes(c.ToBytes(42))
	require.NoError(t, err)
	assert.Equal(t, 42, dec)
	assert.Equal(t, Fixed(1), c.Bound())
}
