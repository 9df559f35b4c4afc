// Package memory provides the flat, growable, byte-addressable region that every
// other part of sKV is built on. A region behaves like the single durable memory
// an execution environment keeps across redeploys: it is addressed by absolute
// offset, it only ever grows, and it grows in whole pages of PageSize bytes.
//
// The package focuses on:
//   - A minimal interface (IMemory) that the memory manager and the B-tree consume
//   - Strict bounds checking: reads and writes past the current size fail with
//     ErrOutOfBounds instead of growing implicitly
//   - Explicit growth that reports ErrAllocationFailed when the backing refuses
//
// Implementations:
//
//   - VectorMemory: a heap-backed region. It is the default for tests and for
//     servers that only need durability through snapshots (Save/Load). A region
//     can be reattached from raw bytes with NewVectorMemoryFrom, which is how a
//     process restart is simulated.
//
//   - FileMemory: a region stored in a single file. The file is the durable
//     memory; reopening it after a restart yields the exact same bytes.
//
// Neither implementation is safe for concurrent mutation. sKV relies on the
// host running one turn at a time (see package state).
package memory
