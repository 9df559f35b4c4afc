package store

import (
	"fmt"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/principal"
)

// NoDataFound is returned by GetDataForPrincipal for principals without data.
const NoDataFound = "No data found"

// DefaultBucket is the memory manager bucket reserved for the principal map.
const DefaultBucket = 0

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IReader is the read-only view of a store. Readers never write to memory.
type IReader interface {
	// GetDataForPrincipal returns the data stored for p, or NoDataFound if
	// nothing was ever stored for it.
	GetDataForPrincipal(p principal.Principal) (data string, err error)
	// GetDBInfo returns metadata about the map underlying the store.
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// IStore is the interface for stores that may be mutated.
// All methods return a *Error on failure.
type IStore interface {
	IReader
	// SetDataForPrincipal stores data for p, replacing any previous data.
	SetDataForPrincipal(p principal.Principal, data string) (err error)
}

// EmptyReader returns a reader over a store that holds no data.
func EmptyReader() IReader { return emptyReader{} }

type emptyReader struct{}

func (emptyReader) GetDataForPrincipal(principal.Principal) (string, error) { return NoDataFound, nil }

func (emptyReader) GetDBInfo() (db.DatabaseInfo, error) {
	return db.DatabaseInfo{DbType: db.ImplBTree}, nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// RetCode returns the return code as a plain integer, for transports.
func (e *Error) RetCode() uint64 { return uint64(e.Code) }

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidKey                      // 2: The key is not a valid principal.
	RetCDecodeError                     // 3: Stored data could not be decoded.
	RetCAllocationFailed                // 4: The memory region could not grow.
	RetCInvalidData                     // 5: The data is not valid UTF-8 text.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidKey:
		return "InvalidKey"
	case RetCDecodeError:
		return "DecodeError"
	case RetCAllocationFailed:
		return "AllocationFailed"
	case RetCInvalidData:
		return "InvalidData"
	default:
		return "Unknown"
	}
}
