package principal

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextForm(t *testing.T) {
	tests := []struct {
		hex  string
		text string
	}{
		{"", "aaaaa-aa"},
		{"04", "2vxsx-fae"},
		{"abcd01", "em77e-bvlzu-aq"},
		{"00000000000000010101", "rrkah-fqaaa-aaaaa-aaaaq-cai"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			raw, err := hex.DecodeString(tt.hex)
			require.NoError(t, err)

			p, err := FromBytes(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.text, p.String())

			parsed, err := FromText(tt.text)
			require.NoError(t, err)
			assert.Equal(t, p, parsed)
			assert.Equal(t, raw, parsed.Bytes())
		})
	}

	assert.Equal(t, "2vxsx-fae", Anonymous().String())
	assert.Equal(t, "aaaaa-aa", Management().String())
}

func TestFromTextRejects(t *testing.T) {
	for _, text := range []string{
		"",
		"2vxsx-fab", // bad checksum
		"2vxsxfae",  // missing dash
		"2vx-sxfae", // misplaced dash
		"not a principal",
		"aaaa",
	} {
		_, err := FromText(text)
		assert.ErrorIs(t, err, ErrInvalidPrincipal, "input %q", text)
	}

	p, err := FromText("2VXSX-FAE")
	require.NoError(t, err, "uppercase input is accepted")
	assert.Equal(t, Anonymous(), p)
}

func TestLength(t *testing.T) {
	_, err := FromBytes(make([]byte, MaxLength))
	assert.NoError(t, err)

	_, err = FromBytes(make([]byte, MaxLength+1))
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	assert.Panics(t, func() { MustFromText("garbage") })
}

func TestCodec(t *testing.T) {
	c := Codec()
	assert.Equal(t, codec.Bounded(MaxLength), c.Bound())

	p := MustFromText("rrkah-fqaaa-aaaaa-aaaaq-cai")
	dec, err := c.FromBytes(c.ToBytes(p))
	require.NoError(t, err)
	assert.Equal(t, p, dec)

	_, err = c.FromBytes(make([]byte, MaxLength+1))
	assert.ErrorIs(t, err, codec.ErrDecode)
}

func TestJSON(t *testing.T) {
	in := map[string]Principal{"owner": Anonymous()}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"2vxsx-fae"}`, string(b))

	var out map[string]Principal
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
