package serializer

import (
	"errors"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// ErrTrailingData is returned when a payload holds more than one message.
var ErrTrailingData = errors.New("serializer: trailing data after message")

// IRPCSerializer converts Messages to and from their wire form.
// Implementations are stateless and safe for concurrent use.
type IRPCSerializer interface {
	// Serialize encodes msg.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes exactly one message from b into msg. Payloads
	// that do not decode completely are rejected.
	Deserialize(b []byte, msg *common.Message) error
}
