// Package btree implements db.KVMap as a B-tree stored entirely inside one
// memory.IMemory, normally a bucket handed out by the memory manager. No
// pointer survives a restart: nodes reference each other by bucket-relative
// offsets, and attaching to the same bytes again (Init or Load) yields the
// same map.
//
// Storage layout inside the bucket:
//
//	[0:64)    layout header: magic "BTR", version, key/value geometry, order, node size
//	[64:96)   meta record A
//	[96:128)  meta record B
//	[128:...) chunks: nodes and value blobs, each with an 8-byte header
//
// Keys are ordered by the byte order of their encodings and must come from a
// bounded codec. Values are stored according to their bound: fixed-size and
// small bounded values (up to 512 bytes) inline in the nodes, everything else
// in separate blob chunks referenced by offset.
//
// Atomicity:
//
// Every mutation is copy-on-write. Nodes reachable from the committed root are
// never overwritten; a mutation writes modified nodes (and new blobs) into
// unreachable chunks and finally writes a new meta record into the slot not
// holding the current one. The meta record is protected by a checksum, and on
// attach the valid record with the highest generation wins. A mutation that
// fails or is cut short at any write therefore leaves either the previous tree
// or the new one, never a mix. Chunks released by a mutation only become
// reusable after its meta record is written; the free lists themselves are
// never persisted and are rebuilt on attach from the chunks not reachable
// from the root.
//
// Operations:
//   - Get, ContainsKey: descent from the root, O(log n) node reads
//   - Insert: insert-or-update; full nodes split around their median, a split
//     of the root adds a level
//   - Remove: deletes and rebalances by borrowing from or merging with a
//     sibling; an empty root collapses into its only child
//   - First, Last, Iter, IterFrom: ordered access through lazy iterators that
//     report ErrIteratorInvalidated after a mutation
//   - Check, Info: full structural validation and shape statistics
//
// A BTreeMap holds no locks and must only be used by one goroutine at a time.
package btree
