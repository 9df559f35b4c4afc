// Package rpc exposes the stores of one sKV process to remote clients. It is
// the communication layer between the cmd surface (or any Go program) and a
// server owning the process state.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, configuration structures, shard info and
//     logging setup shared by client and server.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPCStore, a store.IStore that forwards every call to a server.
//
//   - server: Maps shard ids to buckets of the process state and runs every
//     request as an update or query turn.
package rpc
