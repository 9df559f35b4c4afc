package db

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBTree Implementation = "btree"
)

// Feature represents map features as bit flags
type Feature uint64

const (
	FeatureInsert  Feature = 1 << iota // Support for Insert operations
	FeatureGet                         // Support for Get and ContainsKey operations
	FeatureRemove                      // Support for Remove operations
	FeatureIterate                     // Support for ordered iteration (Iter, IterFrom, First, Last)
	FeaturePersist                     // Content survives reattaching to the same memory
	FeatureCheck                       // Support for structural self checks
)

func (f Feature) String() string {
	switch f {
	case FeatureInsert:
		return "Insert"
	case FeatureGet:
		return "Get"
	case FeatureRemove:
		return "Remove"
	case FeatureIterate:
		return "Iterate"
	case FeaturePersist:
		return "Persist"
	case FeatureCheck:
		return "Check"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler, features are reported by name.
func (f Feature) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Feature) UnmarshalText(text []byte) error {
	for candidate := FeatureInsert; candidate <= FeatureCheck; candidate <<= 1 {
		if candidate.String() == string(text) {
			*f = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown feature %q", text)
}

type DatabaseInfo struct {
	SizeBytes         uint64         `json:"size_bytes"`
	Entries           uint64         `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ErrIteratorInvalidated is reported by iterators whose map was mutated after they were created.
var ErrIteratorInvalidated = errors.New("db: iterator invalidated by mutation")

// --------------------------------------------------------------------------
// Map Interface
// --------------------------------------------------------------------------

// KVMap defines an ordered map from K to V.
// Keys are ordered by the byte order of their encoding under the key codec.
// Values handed out are decoded copies, never references into the map's storage.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVMap[K any, V any] interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Insert inserts or overwrites the entry for key.
	// replaced reports whether an entry for key existed before.
	// An overwrite never rewrites the stored entry in place: the new value is
	// written to fresh space and the old space is released when the mutation
	// commits, so an interrupted overwrite leaves the old value readable.
	// On error the map is unchanged.
	Insert(key K, value V) (replaced bool, err error)

	// Remove deletes the entry for key and returns its previous value.
	// removed is false if there was no entry. If the old value cannot be decoded
	// the entry is still removed and the decode error is returned.
	Remove(key K) (old V, removed bool, err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the value stored for key.
	// found is false if there is no entry; a stored value that cannot be decoded
	// is reported as an error and affects no other key.
	Get(key K) (value V, found bool, err error)

	// ContainsKey reports whether an entry for key exists without decoding its value.
	ContainsKey(key K) (bool, error)

	// Len returns the number of entries.
	Len() uint64

	// IsEmpty reports whether the map has no entries.
	IsEmpty() bool

	// First returns the entry with the smallest key.
	First() (key K, value V, found bool, err error)

	// Last returns the entry with the largest key.
	Last() (key K, value V, found bool, err error)

	// Iter returns an iterator over all entries in ascending key order.
	Iter() IIterator[K, V]

	// IterFrom returns an iterator over all entries with key >= from in ascending order.
	IterFrom(from K) IIterator[K, V]

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the map.
	GetInfo() (info DatabaseInfo)
}

// IIterator walks map entries lazily in ascending key order.
//
// Usage:
//
//	it := m.Iter()
//	for it.Next() {
//		use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
type IIterator[K any, V any] interface {
	// Next advances to the next entry and reports whether there is one.
	// It returns false at the end or after an error.
	Next() bool

	// Key returns the key of the current entry.
	Key() K

	// Value returns the value of the current entry.
	Value() V

	// Err returns the error that stopped the iteration, if any.
	Err() error
}
