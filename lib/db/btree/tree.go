package btree

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/db/btree/internal"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/VictoriaMetrics/metrics"
)

var (
	nodeSplits = metrics.GetOrCreateCounter(`skv_btree_node_splits_total`)
	nodeMerges = metrics.GetOrCreateCounter(`skv_btree_node_merges_total`)
	commits    = metrics.GetOrCreateCounter(`skv_btree_commits_total`)
)

// tree is the untyped core of a BTreeMap. Keys are raw key encodings and
// values are raw value slots (see internal.Node).
type tree struct {
	mem     memory.IMemory
	layout  internal.Layout
	alloc   *internal.Allocator
	meta    internal.Meta
	version uint64 // bumped on every commit, invalidates iterators
}

// --------------------------------------------------------------------------
// Create & Open
// --------------------------------------------------------------------------

// createTree formats mem for an empty tree. The meta records are written
// before the layout header, so an interrupted create leaves a header of zeros
// and is simply repeated on the next attach.
func createTree(mem memory.IMemory, layout internal.Layout) (*tree, error) {
	if err := memory.EnsureSize(mem, internal.DataStart); err != nil {
		return nil, err
	}

	meta := internal.Meta{Bump: internal.DataStart}
	metas := make([]byte, 2*internal.MetaSize)
	copy(metas, meta.Encode())
	if err := mem.Write(internal.MetaA, metas); err != nil {
		return nil, err
	}
	if err := mem.Write(0, layout.Encode()); err != nil {
		return nil, err
	}

	log.Debugf("created tree (order %d, keys %s(%d), values %s(%d), node size %d)",
		layout.Order, layout.KeyKind, layout.KeyMaxSize, layout.ValueKind, layout.ValueMaxSize, layout.NodeSize)

	return &tree{
		mem:    mem,
		layout: layout,
		alloc:  internal.NewAllocator(mem, internal.DataStart),
		meta:   meta,
	}, nil
}

// openTree attaches to an existing tree and rebuilds the free lists from the
// chunks that are not reachable from the current root.
func openTree(mem memory.IMemory, header []byte, want internal.Layout) (*tree, error) {
	layout, err := internal.DecodeLayout(header)
	if err != nil {
		return nil, err
	}
	if err := layout.Compatible(want); err != nil {
		return nil, err
	}

	raw, err := memory.ReadBytes(mem, internal.MetaA, 2*internal.MetaSize)
	if err != nil {
		return nil, err
	}
	meta, err := internal.PickMeta(raw[:internal.MetaSize], raw[internal.MetaSize:])
	if err != nil {
		return nil, err
	}
	if meta.Bump < internal.DataStart || uint64(meta.Bump) > mem.Size() {
		return nil, fmt.Errorf("%w: bump offset %d outside [%d, %d]", ErrCorruptTree, meta.Bump, internal.DataStart, mem.Size())
	}

	t := &tree{
		mem:    mem,
		layout: layout,
		alloc:  internal.NewAllocator(mem, uint64(meta.Bump)),
		meta:   meta,
	}

	reachable := make(map[uint64]struct{})
	err = t.walk(func(off uint64, n *internal.Node, _ int) error {
		reachable[off] = struct{}{}
		if layout.ValueKind == internal.ValueBlob {
			for _, slot := range n.Values {
				reachable[internal.BlobRef(slot)] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := t.alloc.Rebuild(reachable); err != nil {
		return nil, err
	}

	log.Debugf("opened tree at generation %d with %d entries", meta.Generation, meta.Length)
	return t, nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (t *tree) readNode(off uint64) (*internal.Node, error) {
	payload, err := t.alloc.ReadChunk(off, internal.KindNode)
	if err != nil {
		return nil, err
	}
	return internal.DecodeNode(t.layout, payload)
}

// loadValue resolves a value slot to the encoded value.
func (t *tree) loadValue(slot []byte) ([]byte, error) {
	if t.layout.ValueKind != internal.ValueBlob {
		return slot, nil
	}
	return t.alloc.ReadChunk(internal.BlobRef(slot), internal.KindBlob)
}

// get returns the value slot stored for key.
func (t *tree) get(key []byte) ([]byte, bool, error) {
	off := t.meta.Root
	for off != 0 {
		n, err := t.readNode(off)
		if err != nil {
			return nil, false, err
		}
		i, found := n.Search(key)
		if found {
			return n.Values[i], true, nil
		}
		if n.Leaf {
			break
		}
		off = n.Children[i]
	}
	return nil, false, nil
}

// edge returns the smallest (last=false) or largest (last=true) entry.
func (t *tree) edge(last bool) (key, slot []byte, found bool, err error) {
	off := t.meta.Root
	for off != 0 {
		n, err := t.readNode(off)
		if err != nil {
			return nil, nil, false, err
		}
		if len(n.Keys) == 0 {
			return nil, nil, false, fmt.Errorf("%w: empty node %d", ErrCorruptTree, off)
		}
		i, c := 0, 0
		if last {
			i, c = len(n.Keys)-1, len(n.Children)-1
		}
		if n.Leaf {
			return n.Keys[i], n.Values[i], true, nil
		}
		off = n.Children[c]
	}
	return nil, nil, false, nil
}

// walk visits every reachable node in pre-order together with its depth.
func (t *tree) walk(fn func(off uint64, n *internal.Node, depth int) error) error {
	if t.meta.Root == 0 {
		return nil
	}
	var visit func(off uint64, depth int) error
	visit = func(off uint64, depth int) error {
		n, err := t.readNode(off)
		if err != nil {
			return err
		}
		if err := fn(off, n, depth); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(t.meta.Root, 0)
}

// --------------------------------------------------------------------------
// Mutation Bracket
// --------------------------------------------------------------------------

// txn is one copy-on-write mutation. Nodes reachable from the committed root
// are never written; they are copied into fresh chunks and released when the
// new meta record is in place. Chunks allocated by the txn itself are
// rewritten in place.
type txn struct {
	t     *tree
	meta  internal.Meta
	dirty bool
}

// update runs fn as one mutation. The meta record is written last; if fn or
// the meta write fails, the allocator is rolled back and the committed tree is
// the one from before the call.
func (t *tree) update(fn func(tx *txn) error) error {
	t.alloc.Begin()
	tx := &txn{t: t, meta: t.meta}

	if err := fn(tx); err != nil {
		t.alloc.Rollback()
		return err
	}
	if !tx.dirty {
		t.alloc.Rollback()
		return nil
	}

	tx.meta.Generation++
	tx.meta.Bump = uint32(t.alloc.Bump())
	if err := t.mem.Write(tx.meta.Slot(), tx.meta.Encode()); err != nil {
		t.alloc.Rollback()
		return err
	}

	t.alloc.Commit()
	t.meta = tx.meta
	t.version++
	commits.Inc()
	return nil
}

// writeNode stores n in place of the node at off and returns its new offset.
// off == 0 allocates a new node.
func (tx *txn) writeNode(off uint64, n *internal.Node) (uint64, error) {
	payload := internal.EncodeNode(tx.t.layout, n)
	tx.dirty = true

	if off != 0 && tx.t.alloc.IsFresh(off) {
		return off, tx.t.alloc.WriteChunk(off, internal.KindNode, payload)
	}

	newOff, err := tx.t.alloc.Alloc(uint64(tx.t.layout.NodeSize))
	if err != nil {
		return 0, err
	}
	if err := tx.t.alloc.WriteChunk(newOff, internal.KindNode, payload); err != nil {
		return 0, err
	}
	if off != 0 {
		if err := tx.t.alloc.Free(off); err != nil {
			return 0, err
		}
	}
	return newOff, nil
}

// makeSlot turns an encoded value into a value slot, writing a blob if needed.
func (tx *txn) makeSlot(value []byte) ([]byte, error) {
	if tx.t.layout.ValueKind != internal.ValueBlob {
		return append([]byte{}, value...), nil
	}
	off, err := tx.t.alloc.Alloc(uint64(len(value)))
	if err != nil {
		return nil, err
	}
	if err := tx.t.alloc.WriteChunk(off, internal.KindBlob, value); err != nil {
		return nil, err
	}
	tx.dirty = true
	return internal.MakeBlobRef(off), nil
}

// dropSlot releases the blob behind a value slot that is no longer referenced.
func (tx *txn) dropSlot(slot []byte) error {
	if tx.t.layout.ValueKind != internal.ValueBlob {
		return nil
	}
	return tx.t.alloc.Free(internal.BlobRef(slot))
}

// --------------------------------------------------------------------------
// Insert
// --------------------------------------------------------------------------

type split struct {
	key, slot []byte
	right     uint64
}

type insertResult struct {
	off      uint64
	split    *split
	old      []byte
	replaced bool
}

// insert stores key → value and reports whether an entry was replaced.
// A replaced blob value is always written to a new blob.
func (t *tree) insert(key, value []byte) (replaced bool, err error) {
	err = t.update(func(tx *txn) error {
		slot, err := tx.makeSlot(value)
		if err != nil {
			return err
		}

		if tx.meta.Root == 0 {
			root, err := tx.writeNode(0, &internal.Node{Leaf: true, Keys: [][]byte{key}, Values: [][]byte{slot}})
			if err != nil {
				return err
			}
			tx.meta.Root = root
			tx.meta.Length = 1
			return nil
		}

		res, err := tx.insert(tx.meta.Root, key, slot)
		if err != nil {
			return err
		}

		root := res.off
		if res.split != nil {
			root, err = tx.writeNode(0, &internal.Node{
				Keys:     [][]byte{res.split.key},
				Values:   [][]byte{res.split.slot},
				Children: []uint64{res.off, res.split.right},
			})
			if err != nil {
				return err
			}
		}
		tx.meta.Root = root

		if res.replaced {
			replaced = true
			return tx.dropSlot(res.old)
		}
		tx.meta.Length++
		return nil
	})
	return replaced, err
}

func (tx *txn) insert(off uint64, key, slot []byte) (insertResult, error) {
	var res insertResult

	n, err := tx.t.readNode(off)
	if err != nil {
		return res, err
	}

	i, found := n.Search(key)
	switch {
	case found:
		res.old, res.replaced = n.Values[i], true
		n.Values[i] = slot
	case n.Leaf:
		n.InsertAt(i, key, slot)
	default:
		child, err := tx.insert(n.Children[i], key, slot)
		if err != nil {
			return res, err
		}
		res.old, res.replaced = child.old, child.replaced
		n.Children[i] = child.off
		if child.split != nil {
			n.InsertAt(i, child.split.key, child.split.slot)
			n.InsertChild(i+1, child.split.right)
		}
	}

	if len(n.Keys) > tx.t.layout.MaxEntries() {
		if res.split, err = tx.split(n); err != nil {
			return res, err
		}
	}

	res.off, err = tx.writeNode(off, n)
	return res, err
}

// split moves the upper half of an overfull node into a new right sibling and
// returns the median to promote. n keeps Order entries, the sibling Order-1.
func (tx *txn) split(n *internal.Node) (*split, error) {
	mid := int(tx.t.layout.Order)

	right := &internal.Node{
		Leaf:   n.Leaf,
		Keys:   append([][]byte(nil), n.Keys[mid+1:]...),
		Values: append([][]byte(nil), n.Values[mid+1:]...),
	}
	if !n.Leaf {
		right.Children = append([]uint64(nil), n.Children[mid+1:]...)
		n.Children = n.Children[:mid+1]
	}
	s := &split{key: n.Keys[mid], slot: n.Values[mid]}
	n.Keys, n.Values = n.Keys[:mid], n.Values[:mid]

	var err error
	if s.right, err = tx.writeNode(0, right); err != nil {
		return nil, err
	}
	nodeSplits.Inc()
	return s, nil
}

// --------------------------------------------------------------------------
// Remove
// --------------------------------------------------------------------------

type removeResult struct {
	off   uint64
	node  *internal.Node
	old   []byte
	found bool
}

// remove deletes key and returns its encoded value.
func (t *tree) remove(key []byte) (old []byte, found bool, err error) {
	err = t.update(func(tx *txn) error {
		if tx.meta.Root == 0 {
			return nil
		}

		res, err := tx.remove(tx.meta.Root, key)
		if err != nil || !res.found {
			return err
		}

		// the blob stays intact until commit, read it before releasing it
		if old, err = t.loadValue(res.old); err != nil {
			return err
		}
		old = append([]byte{}, old...)
		if err := tx.dropSlot(res.old); err != nil {
			return err
		}

		root := res.off
		if len(res.node.Keys) == 0 {
			if err := tx.t.alloc.Free(root); err != nil {
				return err
			}
			root = 0
			if !res.node.Leaf {
				root = res.node.Children[0]
			}
		}
		tx.meta.Root = root
		tx.meta.Length--
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return old, found, nil
}

func (tx *txn) remove(off uint64, key []byte) (removeResult, error) {
	n, err := tx.t.readNode(off)
	if err != nil {
		return removeResult{}, err
	}

	i, found := n.Search(key)
	var old []byte

	switch {
	case n.Leaf && !found:
		return removeResult{off: off, node: n}, nil
	case n.Leaf:
		old = n.Values[i]
		n.RemoveAt(i)
	case found:
		// replace the separator with its in-order predecessor
		old = n.Values[i]
		key, slot, child, err := tx.removeMax(n.Children[i])
		if err != nil {
			return removeResult{}, err
		}
		n.Keys[i], n.Values[i], n.Children[i] = key, slot, child
		if err := tx.fixChild(n, i); err != nil {
			return removeResult{}, err
		}
	default:
		child, err := tx.remove(n.Children[i], key)
		if err != nil || !child.found {
			return removeResult{off: off, node: n}, err
		}
		old = child.old
		n.Children[i] = child.off
		if err := tx.fixChild(n, i); err != nil {
			return removeResult{}, err
		}
	}

	if off, err = tx.writeNode(off, n); err != nil {
		return removeResult{}, err
	}
	return removeResult{off: off, node: n, old: old, found: true}, nil
}

// removeMax removes the largest entry below off.
func (tx *txn) removeMax(off uint64) (key, slot []byte, newOff uint64, err error) {
	n, err := tx.t.readNode(off)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(n.Keys) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: empty node %d", ErrCorruptTree, off)
	}

	if n.Leaf {
		last := len(n.Keys) - 1
		key, slot = n.Keys[last], n.Values[last]
		n.RemoveAt(last)
	} else {
		last := len(n.Children) - 1
		var child uint64
		if key, slot, child, err = tx.removeMax(n.Children[last]); err != nil {
			return nil, nil, 0, err
		}
		n.Children[last] = child
		if err := tx.fixChild(n, last); err != nil {
			return nil, nil, 0, err
		}
	}

	newOff, err = tx.writeNode(off, n)
	return key, slot, newOff, err
}

// fixChild restores the minimum occupancy of child i of n by borrowing from a
// sibling or merging with one. n itself is modified but not written.
func (tx *txn) fixChild(n *internal.Node, i int) error {
	minEntries := tx.t.layout.MinEntries()

	child, err := tx.t.readNode(n.Children[i])
	if err != nil {
		return err
	}
	if len(child.Keys) >= minEntries {
		return nil
	}

	var left, right *internal.Node
	if i > 0 {
		if left, err = tx.t.readNode(n.Children[i-1]); err != nil {
			return err
		}
		if len(left.Keys) > minEntries {
			return tx.rotateRight(n, i, left, child)
		}
	}
	if i < len(n.Children)-1 {
		if right, err = tx.t.readNode(n.Children[i+1]); err != nil {
			return err
		}
		if len(right.Keys) > minEntries {
			return tx.rotateLeft(n, i, child, right)
		}
	}

	if left != nil {
		return tx.merge(n, i-1, left, child)
	}
	if right == nil {
		return fmt.Errorf("%w: node with a single child", ErrCorruptTree)
	}
	return tx.merge(n, i, child, right)
}

// rotateRight moves the last entry of left up into n and the separator down into child i.
func (tx *txn) rotateRight(n *internal.Node, i int, left, child *internal.Node) error {
	last := len(left.Keys) - 1
	child.InsertAt(0, n.Keys[i-1], n.Values[i-1])
	n.Keys[i-1], n.Values[i-1] = left.Keys[last], left.Values[last]
	left.RemoveAt(last)
	if !child.Leaf {
		child.InsertChild(0, left.Children[last+1])
		left.RemoveChild(last + 1)
	}
	return tx.writePair(n, i-1, left, child)
}

// rotateLeft moves the first entry of right up into n and the separator down into child i.
func (tx *txn) rotateLeft(n *internal.Node, i int, child, right *internal.Node) error {
	child.InsertAt(len(child.Keys), n.Keys[i], n.Values[i])
	n.Keys[i], n.Values[i] = right.Keys[0], right.Values[0]
	right.RemoveAt(0)
	if !child.Leaf {
		child.InsertChild(len(child.Children), right.Children[0])
		right.RemoveChild(0)
	}
	return tx.writePair(n, i, child, right)
}

// writePair writes the children i and i+1 of n.
func (tx *txn) writePair(n *internal.Node, i int, a, b *internal.Node) error {
	var err error
	if n.Children[i], err = tx.writeNode(n.Children[i], a); err != nil {
		return err
	}
	n.Children[i+1], err = tx.writeNode(n.Children[i+1], b)
	return err
}

// merge joins children i and i+1 of n around separator i into child i.
func (tx *txn) merge(n *internal.Node, i int, left, right *internal.Node) error {
	left.Keys = append(append(left.Keys, n.Keys[i]), right.Keys...)
	left.Values = append(append(left.Values, n.Values[i]), right.Values...)
	if !left.Leaf {
		left.Children = append(left.Children, right.Children...)
	}

	if err := tx.t.alloc.Free(n.Children[i+1]); err != nil {
		return err
	}
	n.RemoveAt(i)
	n.RemoveChild(i + 1)

	var err error
	if n.Children[i], err = tx.writeNode(n.Children[i], left); err != nil {
		return err
	}
	nodeMerges.Inc()
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// keyBound is an optional exclusive key bound used by Check.
type keyBound struct {
	key []byte
	set bool
}

func (b keyBound) below(key []byte) bool { return !b.set || bytes.Compare(key, b.key) < 0 }

func (b keyBound) above(key []byte) bool { return !b.set || bytes.Compare(key, b.key) > 0 }
