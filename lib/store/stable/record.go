package stable

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/ValentinKolb/sKV/lib/codec"
)

const recordVersion = 0x01

// Record is the value stored per principal.
type Record struct {
	Data string `json:"data"`
}

// RecordCodec returns the codec used for records. Records are unbounded and
// therefore always stored out of line.
func RecordCodec() codec.Codec[Record] {
	return codec.Funcs[Record]{
		Encode: encodeRecord,
		Decode: decodeRecord,
		Size:   codec.Unbounded,
	}
}

func encodeRecord(r Record) []byte {
	b := make([]byte, 0, 1+binary.MaxVarintLen64+len(r.Data))
	b = append(b, recordVersion)
	b = binary.AppendUvarint(b, uint64(len(r.Data)))
	return append(b, r.Data...)
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) == 0 {
		return Record{}, fmt.Errorf("%w: empty record", codec.ErrDecode)
	}
	if b[0] != recordVersion {
		return Record{}, fmt.Errorf("%w: record version %d", codec.ErrDecode, b[0])
	}
	n, read := binary.Uvarint(b[1:])
	if read <= 0 {
		return Record{}, fmt.Errorf("%w: bad record length", codec.ErrDecode)
	}
	data := b[1+read:]
	if uint64(len(data)) != n {
		return Record{}, fmt.Errorf("%w: record length %d, have %d bytes", codec.ErrDecode, n, len(data))
	}
	if !utf8.Valid(data) {
		return Record{}, fmt.Errorf("%w: record is not valid utf-8", codec.ErrDecode)
	}
	return Record{Data: string(data)}, nil
}
