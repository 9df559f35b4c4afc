package btree

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/btree/internal"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("btree")

// DefaultOrder is the order used when Options leave it unset.
const DefaultOrder = 6

var (
	// ErrKeyTooLarge is returned for keys whose encoding violates the key bound.
	ErrKeyTooLarge = errors.New("btree: key too large")

	// ErrValueTooLarge is returned for values whose encoding violates the value bound.
	ErrValueTooLarge = errors.New("btree: value too large")

	// ErrUnboundedKey is returned by Init and Load for key codecs without a size bound.
	ErrUnboundedKey = errors.New("btree: key codec must be bounded")

	// ErrInvalidOptions is returned for an order outside [2, internal.MaxOrder].
	ErrInvalidOptions = errors.New("btree: invalid options")

	// ErrNotInitialized is returned by Load for memory that holds no tree.
	ErrNotInitialized = errors.New("btree: memory holds no tree")

	// ErrLayoutMismatch is returned when the stored tree was created with other codecs or another order.
	ErrLayoutMismatch = internal.ErrLayoutMismatch

	// ErrCorruptTree is returned when stored bytes violate the tree format.
	ErrCorruptTree = internal.ErrCorruptTree

	// ErrIteratorInvalidated is returned by iterators that outlived a mutation.
	ErrIteratorInvalidated = db.ErrIteratorInvalidated
)

// Options configures a tree. A nil *Options selects the defaults.
type Options struct {
	// Order is the minimum degree t: nodes hold at most 2t-1 and (except the
	// root) at least t-1 entries. 0 selects DefaultOrder for new trees and
	// accepts whatever order an existing tree was created with.
	Order uint16
}

// BTreeMap is an ordered map stored in a single memory (usually a memmgr
// bucket). Everything needed to rebuild it lives in that memory; attaching to
// the same bytes after a restart yields the same map.
//
// A BTreeMap is not safe for concurrent use.
type BTreeMap[K any, V any] struct {
	t      *tree
	keys   codec.Codec[K]
	values codec.Codec[V]
}

// Init attaches to the tree stored in mem, creating an empty one if mem holds none.
func Init[K any, V any](mem memory.IMemory, keys codec.Codec[K], values codec.Codec[V], opts *Options) (*BTreeMap[K, V], error) {
	return attach(mem, keys, values, opts, true)
}

// Load attaches to the tree stored in mem and fails with ErrNotInitialized if there is none.
func Load[K any, V any](mem memory.IMemory, keys codec.Codec[K], values codec.Codec[V], opts *Options) (*BTreeMap[K, V], error) {
	return attach(mem, keys, values, opts, false)
}

func attach[K any, V any](mem memory.IMemory, keys codec.Codec[K], values codec.Codec[V], opts *Options, create bool) (*BTreeMap[K, V], error) {
	kb := keys.Bound()
	if kb.IsUnbounded() {
		return nil, ErrUnboundedKey
	}
	if kb.MaxSize > internal.MaxKeySize {
		return nil, fmt.Errorf("%w: key bound %d exceeds %d", ErrKeyTooLarge, kb.MaxSize, internal.MaxKeySize)
	}

	var order uint16
	if opts != nil {
		order = opts.Order
	}
	if order != 0 && (order < 2 || order > internal.MaxOrder) {
		return nil, fmt.Errorf("%w: order %d", ErrInvalidOptions, order)
	}
	want := internal.NewLayout(kb, values.Bound(), order)

	var header []byte
	if mem.Size() >= internal.LayoutSize {
		var err error
		if header, err = memory.ReadBytes(mem, 0, internal.LayoutSize); err != nil {
			return nil, err
		}
	}

	var (
		t   *tree
		err error
	)
	switch {
	case header != nil && !bytes.Equal(header, make([]byte, internal.LayoutSize)):
		t, err = openTree(mem, header, want)
	case create:
		if order == 0 {
			want = internal.NewLayout(kb, values.Bound(), DefaultOrder)
		}
		t, err = createTree(mem, want)
	default:
		err = ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return &BTreeMap[K, V]{t: t, keys: keys, values: values}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVMap)
// --------------------------------------------------------------------------

func (m *BTreeMap[K, V]) Insert(key K, value V) (bool, error) {
	kb, err := m.encodeKey(key)
	if err != nil {
		return false, err
	}

	vb, err := codec.Encode(m.values, value)
	if err != nil {
		return false, err
	}
	if err := m.values.Bound().Check(vb); err != nil {
		return false, fmt.Errorf("%w: %v", ErrValueTooLarge, err)
	}
	if _, err := internal.ClassFor(uint64(len(vb))); err != nil {
		return false, fmt.Errorf("%w: %v", ErrValueTooLarge, err)
	}

	return m.t.insert(kb, vb)
}

func (m *BTreeMap[K, V]) Remove(key K) (V, bool, error) {
	var zero V

	kb, err := m.encodeKey(key)
	if err != nil {
		return zero, false, err
	}

	raw, found, err := m.t.remove(kb)
	if err != nil || !found {
		return zero, false, err
	}

	// the entry is gone even if its old value does not decode
	old, err := m.values.FromBytes(raw)
	if err != nil {
		return zero, true, fmt.Errorf("removed value: %w", err)
	}
	return old, true, nil
}

func (m *BTreeMap[K, V]) Get(key K) (V, bool, error) {
	var zero V

	kb, err := m.encodeKey(key)
	if err != nil {
		return zero, false, err
	}

	slot, found, err := m.t.get(kb)
	if err != nil || !found {
		return zero, false, err
	}
	v, err := m.decodeValue(slot)
	if err != nil {
		return zero, true, err
	}
	return v, true, nil
}

func (m *BTreeMap[K, V]) ContainsKey(key K) (bool, error) {
	kb, err := m.encodeKey(key)
	if err != nil {
		return false, err
	}
	_, found, err := m.t.get(kb)
	return found, err
}

func (m *BTreeMap[K, V]) Len() uint64 { return m.t.meta.Length }

func (m *BTreeMap[K, V]) IsEmpty() bool { return m.t.meta.Length == 0 }

func (m *BTreeMap[K, V]) First() (K, V, bool, error) { return m.edge(false) }

func (m *BTreeMap[K, V]) Last() (K, V, bool, error) { return m.edge(true) }

func (m *BTreeMap[K, V]) Iter() db.IIterator[K, V] {
	return &iterator[K, V]{m: m, raw: m.t.iter(nil)}
}

func (m *BTreeMap[K, V]) IterFrom(from K) db.IIterator[K, V] {
	kb, err := m.encodeKey(from)
	if err != nil {
		return &iterator[K, V]{m: m, err: err}
	}
	return &iterator[K, V]{m: m, raw: m.t.iter(kb)}
}

func (m *BTreeMap[K, V]) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureInsert | db.FeatureGet | db.FeatureRemove |
		db.FeatureIterate | db.FeaturePersist | db.FeatureCheck
	return feature&supported == feature
}

func (m *BTreeMap[K, V]) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		SizeBytes: m.t.mem.Size(),
		Entries:   m.Len(),
		DbType:    db.ImplBTree,
		SupportedFeatures: []db.Feature{
			db.FeatureInsert, db.FeatureGet, db.FeatureRemove,
			db.FeatureIterate, db.FeaturePersist, db.FeatureCheck,
		},
	}
	if meta, err := m.Info(); err != nil {
		info.Metadata = map[string]string{"error": err.Error()}
	} else {
		info.Metadata = meta
	}
	return info
}

// Generation returns the number of committed mutations.
func (m *BTreeMap[K, V]) Generation() uint64 { return m.t.meta.Generation }

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (m *BTreeMap[K, V]) encodeKey(key K) ([]byte, error) {
	kb, err := codec.Encode(m.keys, key)
	if err != nil {
		return nil, err
	}
	if err := m.keys.Bound().Check(kb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyTooLarge, err)
	}
	return kb, nil
}

func (m *BTreeMap[K, V]) decodeValue(slot []byte) (V, error) {
	raw, err := m.t.loadValue(slot)
	if err != nil {
		var zero V
		return zero, err
	}
	return m.values.FromBytes(raw)
}

func (m *BTreeMap[K, V]) edge(last bool) (K, V, bool, error) {
	var (
		zeroK K
		zeroV V
	)

	kb, slot, found, err := m.t.edge(last)
	if err != nil || !found {
		return zeroK, zeroV, false, err
	}

	key, err := m.keys.FromBytes(kb)
	if err != nil {
		return zeroK, zeroV, true, err
	}
	value, err := m.decodeValue(slot)
	if err != nil {
		return key, zeroV, true, err
	}
	return key, value, true, nil
}
