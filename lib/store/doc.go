// Package store provides the principal-keyed facade clients talk to.
//
// A store maps a principal to a piece of text. Reads of principals that never
// had data stored return the NoDataFound sentinel instead of an error, since
// absence is the normal steady state for most principals.
//
// Key Components:
//
//   - IReader / IStore: the read-only and the mutating view of a store. The
//     split mirrors how turns are executed by the state package: query turns
//     are handed an IReader, update turns an IStore.
//
//   - Error System: failures are reported as *Error values carrying a RetCode,
//     so that callers on the other side of an RPC boundary can tell a decode
//     failure of a single entry apart from an exhausted memory region.
//
// Implementations:
//
//   - Stable Store (stable): binds one memory manager bucket to a persistent
//     B-tree of principal -> Record. Available in the
//     "github.com/ValentinKolb/sKV/lib/store/stable" package.
//
//   - RPC Store: a client-side IStore forwarding every call to a server.
//     Available in the "github.com/ValentinKolb/sKV/rpc/client" package.
package store
