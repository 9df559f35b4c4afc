// Package principal implements the identifier the store facade is keyed by: an
// opaque byte string of at most MaxLength bytes with a checksummed textual form
// such as "2vxsx-fae".
//
// The textual form is the lowercase, unpadded base32 encoding of a big-endian
// CRC-32 of the bytes followed by the bytes themselves, split into groups of
// five characters joined by dashes. FromText only accepts the canonical form.
package principal

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/ValentinKolb/sKV/lib/codec"
)

// MaxLength is the largest principal in bytes.
const MaxLength = 29

// ErrInvalidPrincipal is returned for malformed principals.
var ErrInvalidPrincipal = errors.New("principal: invalid principal")

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal identifies a caller. The zero value is the management principal
// (zero bytes). Principals are comparable and usable as map keys.
type Principal struct {
	raw string
}

// FromBytes returns the principal with the given bytes.
func FromBytes(b []byte) (Principal, error) {
	if len(b) > MaxLength {
		return Principal{}, fmt.Errorf("%w: %d bytes exceed the maximum of %d", ErrInvalidPrincipal, len(b), MaxLength)
	}
	return Principal{raw: string(b)}, nil
}

// FromText parses the canonical textual form.
func FromText(text string) (Principal, error) {
	lower := strings.ToLower(text)
	decoded, err := encoding.DecodeString(strings.ToUpper(strings.ReplaceAll(lower, "-", "")))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %q: %v", ErrInvalidPrincipal, text, err)
	}
	if len(decoded) < crc32.Size {
		return Principal{}, fmt.Errorf("%w: %q is too short", ErrInvalidPrincipal, text)
	}

	p, err := FromBytes(decoded[crc32.Size:])
	if err != nil {
		return Principal{}, err
	}
	if binary.BigEndian.Uint32(decoded) != crc32.ChecksumIEEE(decoded[crc32.Size:]) {
		return Principal{}, fmt.Errorf("%w: %q has a bad checksum", ErrInvalidPrincipal, text)
	}
	if p.String() != lower {
		return Principal{}, fmt.Errorf("%w: %q is not in canonical form", ErrInvalidPrincipal, text)
	}
	return p, nil
}

// MustFromText is FromText for constants. It panics on malformed input.
func MustFromText(text string) Principal {
	p, err := FromText(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Anonymous returns the principal of unauthenticated callers.
func Anonymous() Principal { return Principal{raw: "\x04"} }

// Management returns the principal with no bytes.
func Management() Principal { return Principal{} }

// Bytes returns a copy of the principal's bytes.
func (p Principal) Bytes() []byte { return []byte(p.raw) }

// Len returns the number of bytes.
func (p Principal) Len() int { return len(p.raw) }

// String returns the canonical textual form.
func (p Principal) String() string {
	buf := make([]byte, crc32.Size, crc32.Size+len(p.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(p.raw)))
	buf = append(buf, p.raw...)

	enc := strings.ToLower(encoding.EncodeToString(buf))
	var sb strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(enc[i:min(i+5, len(enc))])
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

type principalCodec struct{}

// Codec returns the bounded key codec for principals. Encodings are the raw
// bytes, so principals are ordered bytewise.
func Codec() codec.Codec[Principal] { return principalCodec{} }

func (principalCodec) ToBytes(p Principal) []byte { return []byte(p.raw) }

func (principalCodec) FromBytes(b []byte) (Principal, error) {
	p, err := FromBytes(b)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", codec.ErrDecode, err)
	}
	return p, nil
}

func (principalCodec) Bound() codec.Bound { return codec.Bounded(MaxLength) }
