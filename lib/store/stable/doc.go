// Package stable implements store.IStore on top of a persistent B-tree living
// in one bucket of a memory manager.
//
// Entries map a principal to a Record. Records are encoded as a version byte
// followed by the uvarint length of the text and its UTF-8 bytes:
//
//	[0x01][uvarint len][data]
//
// Decoding is strict: an unknown version, a bad length or trailing bytes make
// the entry unreadable without affecting any other entry.
//
// The package carries no locking. Callers serialize access to a store, which
// the state package does by running every turn on a single goroutine.
package stable
