// Package util provides statistics helpers for map implementations that
// satisfy the db.KVMap interface.
//
// The package contains:
//   - Stats: count, mean, deviation and range of a set of samples (used for node fill factors)
//   - SizeHistogram: a power-of-two histogram for key and value sizes
//
// Both are meant for reporting (DatabaseInfo metadata, the inspect command) and
// are not safe for concurrent use.
package util
