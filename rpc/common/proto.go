package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   string `json:"key,omitempty"`   // Used for: SetData, GetData (textual principal)
	Value []byte `json:"value,omitempty"` // Used for: SetData (request), GetData (response)

	// Response only fields
	Code uint64 `json:"code,omitempty"` // store.RetCode of a failed operation
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info (response, json encoded)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetDataRequest creates a new SetData request
func NewSetDataRequest(principal string, data string) *Message {
	return &Message{
		MsgType: MsgTSetData,
		Key:     principal,
		Value:   []byte(data),
	}
}

// NewSetDataResponse creates a new SetData response
func NewSetDataResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTSetData,
	}
	setErr(msg, err)
	return msg
}

// NewGetDataRequest creates a new GetData request
func NewGetDataRequest(principal string) *Message {
	return &Message{
		MsgType: MsgTGetData,
		Key:     principal,
	}
}

// NewGetDataResponse creates a new GetData response
func NewGetDataResponse(data string, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetData,
		Value:   []byte(data),
	}
	setErr(msg, err)
	return msg
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTInfo,
	}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTInfo,
		Meta:    meta,
	}
	setErr(msg, err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// coded is implemented by errors carrying a return code (store.Error).
type coded interface {
	error
	RetCode() uint64
}

func setErr(msg *Message, err error) {
	if err == nil {
		return
	}
	msg.Err = err.Error()
	var c coded
	if errors.As(err, &c) {
		msg.Code = c.RetCode()
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSetData:
		return "setData"
	case MsgTGetData:
		return "getData"
	case MsgTInfo:
		return "info"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "setData":
		*t = MsgTSetData
	case "getData":
		*t = MsgTGetData
	case "info":
		*t = MsgTInfo
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTSetData // Store data for a principal (update turn)
	MsgTGetData // Read data of a principal (query turn)
	MsgTInfo    // Describe the memory manager and the stores (query turn)
)
