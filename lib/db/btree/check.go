package btree

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/db/btree/internal"
)

// Check validates the whole stored structure and returns the first violation
// found, wrapped in ErrCorruptTree:
//   - keys strictly increase within every node and respect the separators above them
//   - every node except the root holds between Order-1 and 2*Order-1 entries
//   - all leaves are at the same depth
//   - the number of entries matches the committed length
//   - every chunk in the chunk area is either reachable exactly once or free
//   - every key and value decodes with the map's codecs
func (m *BTreeMap[K, V]) Check() error {
	if err := m.t.check(); err != nil {
		return err
	}

	it := m.Iter()
	for it.Next() {
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTree, err)
	}
	return nil
}

func (t *tree) check() error {
	c := &checker{
		t:         t,
		leafDepth: -1,
		seen:      make(map[uint64]string),
	}
	if t.meta.Root != 0 {
		if err := c.node(t.meta.Root, keyBound{}, keyBound{}, 0); err != nil {
			return err
		}
	}
	if c.entries != t.meta.Length {
		return fmt.Errorf("%w: %d entries reachable, meta records %d", ErrCorruptTree, c.entries, t.meta.Length)
	}
	return c.chunks()
}

type checker struct {
	t         *tree
	leafDepth int
	entries   uint64
	seen      map[uint64]string // chunk offset -> what references it
}

func (c *checker) claim(off uint64, what string) error {
	if prev, ok := c.seen[off]; ok {
		return fmt.Errorf("%w: chunk %d referenced as %s and as %s", ErrCorruptTree, off, prev, what)
	}
	c.seen[off] = what
	return nil
}

func (c *checker) node(off uint64, lo, hi keyBound, depth int) error {
	if err := c.claim(off, "node"); err != nil {
		return err
	}
	n, err := c.t.readNode(off)
	if err != nil {
		return err
	}

	layout := c.t.layout
	switch {
	case len(n.Keys) > layout.MaxEntries():
		return fmt.Errorf("%w: node %d holds %d entries, max is %d", ErrCorruptTree, off, len(n.Keys), layout.MaxEntries())
	case depth == 0 && len(n.Keys) == 0:
		return fmt.Errorf("%w: empty root %d", ErrCorruptTree, off)
	case depth > 0 && len(n.Keys) < layout.MinEntries():
		return fmt.Errorf("%w: node %d holds %d entries, min is %d", ErrCorruptTree, off, len(n.Keys), layout.MinEntries())
	}

	for i, k := range n.Keys {
		if i > 0 && bytes.Compare(n.Keys[i-1], k) >= 0 {
			return fmt.Errorf("%w: keys of node %d are not strictly increasing at %d", ErrCorruptTree, off, i)
		}
		if !lo.above(k) || !hi.below(k) {
			return fmt.Errorf("%w: key %x of node %d violates the separators above it", ErrCorruptTree, k, off)
		}
	}
	c.entries += uint64(len(n.Keys))

	if layout.ValueKind == internal.ValueBlob {
		for _, slot := range n.Values {
			ref := internal.BlobRef(slot)
			if err := c.claim(ref, "blob"); err != nil {
				return err
			}
			if _, err := c.t.alloc.ReadChunk(ref, internal.KindBlob); err != nil {
				return err
			}
		}
	}

	if n.Leaf {
		if c.leafDepth == -1 {
			c.leafDepth = depth
		}
		if depth != c.leafDepth {
			return fmt.Errorf("%w: leaf %d at depth %d, expected %d", ErrCorruptTree, off, depth, c.leafDepth)
		}
		return nil
	}

	for i, child := range n.Children {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = keyBound{key: n.Keys[i-1], set: true}
		}
		if i < len(n.Keys) {
			childHi = keyBound{key: n.Keys[i], set: true}
		}
		if err := c.node(child, childLo, childHi, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// chunks verifies that reachable and free chunks partition the chunk area.
func (c *checker) chunks() error {
	free := c.t.alloc.FreeChunks()
	for off := range free {
		if what, ok := c.seen[off]; ok {
			return fmt.Errorf("%w: chunk %d is free and referenced as %s", ErrCorruptTree, off, what)
		}
	}

	scanned := 0
	err := c.t.alloc.Scan(func(ch internal.ChunkInfo) error {
		scanned++
		_, used := c.seen[ch.Offset]
		size, isFree := free[ch.Offset]
		switch {
		case !used && !isFree:
			return fmt.Errorf("%w: chunk %d is neither reachable nor free", ErrCorruptTree, ch.Offset)
		case isFree && size != ch.Size:
			return fmt.Errorf("%w: free chunk %d listed with size %d, stored size is %d", ErrCorruptTree, ch.Offset, size, ch.Size)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if want := len(c.seen) + len(free); scanned != want {
		return fmt.Errorf("%w: %d chunks in the chunk area, %d reachable or free", ErrCorruptTree, scanned, want)
	}
	return nil
}
