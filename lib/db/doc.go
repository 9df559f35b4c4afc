// Package db provides a standardized interface for ordered key-value maps that
// live in a memory region.
//
// The package focuses on:
//   - A unified, generic interface for ordered map operations
//   - Feature discovery through capability flags
//   - Standardized metadata reporting
//
// Key Components:
//
//   - KVMap Interface: The core interface that all map implementations must satisfy.
//     It provides point operations (Insert, Get, ContainsKey, Remove), size
//     queries (Len, IsEmpty) and ordered access (First, Last, Iter, IterFrom).
//     Keys and values are typed; the conversion to bytes is done by codecs
//     (see package codec), so a map never stores references to caller memory.
//
//   - IIterator Interface: A lazy, ascending iterator. Every call to Iter or
//     IterFrom starts a fresh traversal. Iterators report ErrIteratorInvalidated
//     once the map has been mutated underneath them.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients (and
//     the conformance suite) to discover supported operations at runtime.
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on map state, including size, entry count, implementation type,
//     and implementation-specific metadata.
//
// Note on Errors:
//   - Absence is not an error: Get reports found=false for missing keys.
//   - A stored value that does not decode is reported for that key only.
//   - A failed write leaves the map exactly as it was before the call.
//
// Related Packages:
//
// The btree package (github.com/ValentinKolb/sKV/lib/db/btree) implements KVMap
// as a copy-on-write B-tree stored entirely inside one memory manager bucket.
//
// The util package (github.com/ValentinKolb/sKV/lib/db/util) provides statistics
// helpers used to report on map characteristics.
//
// The testing package (github.com/ValentinKolb/sKV/lib/db/testing) provides
// standardized tests and benchmarks for KVMap implementations.
//   - RunKVMapTests: Runs a standardized test suite to validate implementations
//   - RunKVMapBenchmarks: Provides performance benchmarks for comparing implementations
package db
