package serializer

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// SetData request
		*common.NewSetDataRequest("rrkah-fqaaa-aaaaa-aaaaq-cai", "hello"),

		// GetData response
		{
			MsgType: common.MsgTGetData,
			Value:   []byte("No data found"),
		},

		// Error response with a return code
		{
			MsgType: common.MsgTGetData,
			Code:    3,
			Err:     "decode error",
		},

		// Info response
		{
			MsgType: common.MsgTInfo,
			Meta:    []byte(`{"memory":{}}`),
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTSetData,
			Key:     "2vxsx-fae",
			Value:   []byte("value"),
			Code:    1,
			Err:     "internal",
			Meta:    []byte("meta"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, "message %d", i)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), "message %d", i)
				assert.Equal(t, msg, result, "message %d", i)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTInfo; msgType++ {
				data, err := serializer.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, msgType.String())

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), msgType.String())
				assert.Equal(t, msgType, result.MsgType)
			}
		})
	}
}

// TestBinaryEmptyFields checks that present but empty byte fields survive
func TestBinaryEmptyFields(t *testing.T) {
	serializer := NewBinarySerializer()

	msg := common.Message{MsgType: common.MsgTGetData, Value: []byte{}, Meta: []byte{}}
	data, err := serializer.Serialize(msg)
	require.NoError(t, err)
	assert.Len(t, data, 2+4+4)

	var result common.Message
	require.NoError(t, serializer.Deserialize(data, &result))
	assert.NotNil(t, result.Value)
	assert.Empty(t, result.Value)
	assert.NotNil(t, result.Meta)

	// old fields are cleared by a new message
	result.Key = "stale"
	require.NoError(t, serializer.Deserialize([]byte{byte(common.MsgTSuccess), 0}, &result))
	assert.Equal(t, common.Message{MsgType: common.MsgTSuccess}, result)
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{"Empty data", []byte{}, true},
		{"Too short header", []byte{1}, true},
		{"Valid header only", []byte{1, 0}, false},
		{"Invalid length for key", []byte{1, hasKey, 0, 0, 0, 5, 'a', 'b', 'c'}, true},
		{"Invalid length for value", []byte{1, hasValue, 0, 0, 0, 10}, true},
		{"Short code", []byte{1, hasCode, 0, 0, 0}, true},
		{"Trailing bytes", []byte{1, 0, 42}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestTrailingData checks that every serializer rejects a payload holding more than one message
func TestTrailingData(t *testing.T) {
	msg := common.NewGetDataRequest("2vxsx-fae")
	for name, factory := range testSerializers {
		serializer := factory()
		t.Run(name, func(t *testing.T) {
			data, err := serializer.Serialize(*msg)
			require.NoError(t, err)

			var result common.Message
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, *msg, result)

			doubled := append(bytes.Clone(data), data...)
			assert.ErrorIs(t, serializer.Deserialize(doubled, &result), ErrTrailingData)
		})
	}
}

// TestStaleFieldsCleared checks that decoding into a used message does not keep old fields
func TestStaleFieldsCleared(t *testing.T) {
	for name, factory := range testSerializers {
		serializer := factory()
		t.Run(name, func(t *testing.T) {
			data, err := serializer.Serialize(*common.NewInfoRequest())
			require.NoError(t, err)

			result := common.Message{Key: "stale", Err: "stale", Code: 3}
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, *common.NewInfoRequest(), result)
		})
	}
}
