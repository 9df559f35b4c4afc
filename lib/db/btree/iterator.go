package btree

import (
	"github.com/ValentinKolb/sKV/lib/db/btree/internal"
)

// --------------------------------------------------------------------------
// Raw Iterator
// --------------------------------------------------------------------------

type frame struct {
	node *internal.Node
	pos  int // next entry to emit; for internal nodes child pos has been visited
}

// rawIter walks raw entries in key order. Nodes are read as the walk reaches
// them, the stack holds one frame per level.
type rawIter struct {
	t       *tree
	version uint64
	from    []byte
	started bool
	stack   []frame
	key     []byte
	slot    []byte
	err     error
}

// iter returns an iterator over all entries with key >= from (nil = all).
func (t *tree) iter(from []byte) *rawIter {
	return &rawIter{t: t, version: t.version, from: from}
}

func (it *rawIter) next() bool {
	if it.err != nil {
		return false
	}
	if it.version != it.t.version {
		it.err = ErrIteratorInvalidated
		return false
	}
	if !it.started {
		it.started = true
		if it.t.meta.Root != 0 {
			if it.err = it.descend(it.t.meta.Root, true); it.err != nil {
				return false
			}
		}
	}

	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.pos < len(top.node.Keys) {
			n, pos := top.node, top.pos
			it.key, it.slot = n.Keys[pos], n.Values[pos]
			top.pos++
			if !n.Leaf {
				if it.err = it.descend(n.Children[pos+1], false); it.err != nil {
					return false
				}
			}
			return true
		}
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false
}

// descend pushes the path from off down to the first entry to emit: the
// leftmost one, or with seek the first one >= it.from.
func (it *rawIter) descend(off uint64, seek bool) error {
	for {
		n, err := it.t.readNode(off)
		if err != nil {
			return err
		}

		i, found := 0, false
		if seek {
			i, found = n.Search(it.from)
		}
		it.stack = append(it.stack, frame{node: n, pos: i})
		if found || n.Leaf {
			return nil
		}
		off = n.Children[i]
	}
}

// --------------------------------------------------------------------------
// Typed Iterator
// --------------------------------------------------------------------------

// iterator implements db.IIterator on top of rawIter. A key or value that
// does not decode stops the iteration with that error.
type iterator[K any, V any] struct {
	m     *BTreeMap[K, V]
	raw   *rawIter
	key   K
	value V
	err   error
}

func (it *iterator[K, V]) Next() bool {
	if it.err != nil || it.raw == nil || !it.raw.next() {
		return false
	}

	key, err := it.m.keys.FromBytes(it.raw.key)
	if err != nil {
		it.err = err
		return false
	}
	value, err := it.m.decodeValue(it.raw.slot)
	if err != nil {
		it.err = err
		return false
	}

	it.key, it.value = key, value
	return true
}

func (it *iterator[K, V]) Key() K { return it.key }

func (it *iterator[K, V]) Value() V { return it.value }

func (it *iterator[K, V]) Err() error {
	if it.err != nil {
		return it.err
	}
	if it.raw != nil {
		return it.raw.err
	}
	return nil
}
