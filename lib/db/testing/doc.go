// Package testing provides standardised tests and benchmarks for
// map implementations that satisfy the db.KVMap interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the KVMap interface contract
//     (insert/get round trips, overwrite isolation, absence, ordering, removal, iterator
//     invalidation, persistence across a reattach and a randomized workload against a model)
//   - benchmark: Performance tests for measuring throughput of common map operations
//
// Maps that implement Check() error are validated structurally throughout the suite.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(tb testing.TB) (db.KVMap[uint64, string], func() db.KVMap[uint64, string]) {
//		mem := memory.NewVectorMemory(0)
//		m := NewMyMap(mem)
//		return m, func() db.KVMap[uint64, string] { return ReattachMyMap(mem) }
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVMapTests(t, "MyMap", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVMapBenchmarks(b, "MyMap", factory)
package testing
