// Package memmgr carves one durable memory region into up to MaxBuckets
// independent, growable buckets. Every bucket behaves like its own
// memory.IMemory, so higher layers (the B-tree in particular) never see
// absolute region offsets.
//
// Region layout (little-endian):
//
//	page 0        header: "SKV", version, bucket page geometry, directory root
//	pages 1-5     directory slot A
//	pages 6-10    directory slot B
//	pages 11..    bucket pages of BucketPageSize bytes each
//
// The directory maps every bucket id to the ordered list of bucket pages it
// owns. It is the only state needed to reconstruct all buckets after a
// restart. Exactly one slot is live at a time (the one the header root names).
// Growing a bucket encodes the new directory into the other slot and then
// rewrites the 8-byte root, so the header always names a complete directory:
// either the one before the growth or the one after it.
//
// Key Components:
//
//   - MemoryManager: created by Init, which either formats an empty region or
//     validates an existing one. A header with a bad magic, an unknown version,
//     an unexpected geometry, or a directory with a bad checksum fails with
//     ErrCorruptDirectory; the caller must not continue.
//
//   - Bucket: returned by GetBucket. The same *Bucket is returned for a given id
//     for the lifetime of the manager. A bucket that has never grown has size
//     zero and is not listed in the directory.
//
// The manager holds no locks. All calls must come from the single turn that
// currently owns the region (see package state).
package memmgr
