// Package state owns the process-wide engine state: one memory region, the
// memory manager attached to it and the stores living in its buckets.
//
// A State is created once at startup and never torn down. All access goes
// through turns. Update turns may mutate a store, query turns only read.
// Turns are queued on an unbounded lock-free queue and executed one at a time,
// in submission order, on a single executor goroutine, so the memory manager
// and the trees never see interleaved mutations and need no locking of their
// own. A turn always runs to completion once started and its caller waits for
// that result, even if the caller's context ends meanwhile. A context that is
// done before the turn starts makes the turn fail without running.
//
// Stores are created lazily on the first update of their bucket and memoized.
// A query against a bucket that never held a store sees an empty store and
// causes no writes to the region.
package state
