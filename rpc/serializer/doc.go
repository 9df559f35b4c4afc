// Package serializer converts RPC messages to bytes and back.
//
// Three formats implement IRPCSerializer:
//
//   - binary: a one byte message type, a one byte field bitmask and then only
//     the present fields, each length prefixed (the return code as a fixed
//     u64). Smallest and fastest, the default of the command line tools.
//
//   - json: the message as a JSON object with the message type by name.
//     Useful for debugging with curl against the http transport.
//
//   - gob: Go's gob encoding. Every payload carries its own type description,
//     which makes it the largest format.
//
// All formats decode strictly: unknown input, truncated fields and trailing
// bytes are errors, and decoding into a used Message clears it first. Store
// return codes (Message.Code) survive every format, so a client sees the same
// *store.Error the server produced.
//
// Serializers are stateless and safe for concurrent use:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewGetDataRequest("2vxsx-fae"))
//	...
//	var reply common.Message
//	err = s.Deserialize(received, &reply)
package serializer
