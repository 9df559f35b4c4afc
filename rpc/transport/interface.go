package transport

import (
	"github.com/ValentinKolb/sKV/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one serialized request addressed to a shard and
// returns the serialized response. It is called concurrently.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport receives requests and hands them to the registered handler.
type IRPCServerTransport interface {
	// RegisterHandler sets the handler. It must be called before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves requests on config.Endpoint. It blocks until Close is
	// called, in which case it returns nil, or until serving fails.
	Listen(config common.ServerConfig) error
	// Close stops accepting requests and ends open connections. Calling it
	// before Listen makes Listen return immediately.
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport delivers requests to one of the configured endpoints.
type IRPCClientTransport interface {
	// Connect prepares the transport for config.Endpoints.
	Connect(config common.ClientConfig) error
	// Send delivers req to shardId and waits for the response, retrying up
	// to config.RetryCount times.
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close releases all connections.
	Close() error
}
