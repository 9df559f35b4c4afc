package btree

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/btree/internal"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/memory/memtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newMap(t *testing.T, opts *Options) (*BTreeMap[uint64, string], *memory.VectorMemory) {
	t.Helper()
	mem := memory.NewVectorMemory(0)
	m, err := Init(mem, codec.Uint64(), codec.String(), opts)
	require.NoError(t, err)
	return m, mem
}

func cloneMem(t *testing.T, mem *memory.VectorMemory) *memory.VectorMemory {
	t.Helper()
	copyOf, err := memory.NewVectorMemoryFrom(mem.Bytes(), 0)
	require.NoError(t, err)
	return copyOf
}

// reload attaches a new map to a copy of mem.
func reload(t *testing.T, mem *memory.VectorMemory, opts *Options) *BTreeMap[uint64, string] {
	t.Helper()
	m, err := Load(cloneMem(t, mem), codec.Uint64(), codec.String(), opts)
	require.NoError(t, err)
	return m
}

func contents[K comparable, V any](t *testing.T, m *BTreeMap[K, V]) map[K]V {
	t.Helper()
	out := make(map[K]V)
	it := m.Iter()
	for it.Next() {
		out[it.Key()] = it.Value()
	}
	require.NoError(t, it.Err())
	return out
}

// exerciseLayout runs a random workload against a model and reattaches at the end.
func exerciseLayout[V comparable](t *testing.T, values codec.Codec[V], gen func(rng *rand.Rand) V) {
	mem := memory.NewVectorMemory(0)
	m, err := Init(mem, codec.Uint64(), values, &Options{Order: 3})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	model := make(map[uint64]V)
	for i := 0; i < 2000; i++ {
		k := uint64(rng.Intn(400))
		if rng.Intn(3) == 0 {
			_, removed, err := m.Remove(k)
			require.NoError(t, err)
			_, existed := model[k]
			require.Equal(t, existed, removed)
			delete(model, k)
			continue
		}
		v := gen(rng)
		_, err := m.Insert(k, v)
		require.NoError(t, err)
		model[k] = v
	}
	require.NoError(t, m.Check())
	assert.Equal(t, model, contents(t, m))

	copyOf, err := memory.NewVectorMemoryFrom(mem.Bytes(), 0)
	require.NoError(t, err)
	reloaded, err := Load(copyOf, codec.Uint64(), values, nil)
	require.NoError(t, err)
	require.NoError(t, reloaded.Check())
	assert.Equal(t, model, contents(t, reloaded))
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestLayouts(t *testing.T) {
	t.Run("FixedValues", func(t *testing.T) {
		exerciseLayout(t, codec.Uint64(), func(rng *rand.Rand) uint64 { return rng.Uint64() })
	})
	t.Run("InlineValues", func(t *testing.T) {
		exerciseLayout(t, codec.BoundedString(64), func(rng *rand.Rand) string {
			return strings.Repeat("i", rng.Intn(65))
		})
	})
	t.Run("BlobValues", func(t *testing.T) {
		exerciseLayout(t, codec.String(), func(rng *rand.Rand) string {
			return strings.Repeat("b", rng.Intn(3000))
		})
	})
}

func TestInitErrors(t *testing.T) {
	mem := memory.NewVectorMemory(0)

	_, err := Init(mem, codec.String(), codec.String(), nil)
	assert.ErrorIs(t, err, ErrUnboundedKey)

	_, err = Init(mem, codec.BoundedBytes(internal.MaxKeySize+1), codec.String(), nil)
	assert.ErrorIs(t, err, ErrKeyTooLarge)

	_, err = Init(mem, codec.Uint64(), codec.String(), &Options{Order: 1})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Init(mem, codec.Uint64(), codec.String(), &Options{Order: internal.MaxOrder + 1})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Load(mem, codec.Uint64(), codec.String(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.Equal(t, uint64(0), mem.Size(), "failed attaches must not write")
}

func TestLayoutMismatch(t *testing.T) {
	m, mem := newMap(t, nil)
	_, err := m.Insert(1, "one")
	require.NoError(t, err)

	_, err = Load(mem, codec.Uint32(), codec.String(), nil)
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = Load(mem, codec.Uint64(), codec.BoundedString(10), nil)
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = Load(mem, codec.Uint64(), codec.String(), &Options{Order: 3})
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	same, err := Load(mem, codec.Uint64(), codec.String(), &Options{Order: DefaultOrder})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), same.Len())
}

func TestKeyAndValueBounds(t *testing.T) {
	mem := memory.NewVectorMemory(0)
	m, err := Init(mem, codec.BoundedString(4), codec.BoundedString(8), nil)
	require.NoError(t, err)

	_, err = m.Insert("toolong", "v")
	assert.ErrorIs(t, err, ErrKeyTooLarge)

	_, _, err = m.Get("toolong")
	assert.ErrorIs(t, err, ErrKeyTooLarge)

	_, err = m.Insert("k", "123456789")
	assert.ErrorIs(t, err, ErrValueTooLarge)

	assert.True(t, m.IsEmpty())
	assert.Equal(t, uint64(0), m.Generation(), "rejected inserts must not commit")

	// empty keys are valid and sort first
	_, err = m.Insert("", "empty")
	require.NoError(t, err)
	_, err = m.Insert("a", "a")
	require.NoError(t, err)
	k, v, found, err := m.First()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "", k)
	assert.Equal(t, "empty", v)

	it := m.IterFrom("")
	require.True(t, it.Next())
	assert.Equal(t, "", it.Key())
}

func TestArbitraryStringBytes(t *testing.T) {
	m, mem := newMap(t, nil)
	for k, v := range map[uint64]string{1: "\xff", 2: "\xff\xfe", 3: strings.Repeat("\x80", 600)} {
		_, err := m.Insert(k, v)
		require.NoError(t, err)
	}

	for _, tree := range []*BTreeMap[uint64, string]{m, reload(t, mem, nil)} {
		v, found, err := tree.Get(1)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "\xff", v)
		assert.Len(t, contents(t, tree), 3)
	}
}

func TestUnencodableValue(t *testing.T) {
	mem := memory.NewVectorMemory(0)
	m, err := Init(mem, codec.Uint64(), codec.JSON[float64](codec.Bounded(64)), nil)
	require.NoError(t, err)
	_, err = m.Insert(1, 2.5)
	require.NoError(t, err)
	before := mem.Bytes()

	replaced, err := m.Insert(1, math.NaN())
	assert.ErrorIs(t, err, codec.ErrEncode)
	assert.False(t, replaced)
	assert.Equal(t, before, mem.Bytes(), "a refused value must not touch the memory")

	v, found, err := m.Get(1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2.5, v)
}

func TestDecodeErrorIsLocal(t *testing.T) {
	picky := codec.Funcs[string]{
		Encode: func(s string) []byte { return []byte(s) },
		Decode: func(b []byte) (string, error) {
			if string(b) == "bad" {
				return "", fmt.Errorf("%w: poisoned entry", codec.ErrDecode)
			}
			return string(b), nil
		},
		Size: codec.Bounded(64),
	}

	m, err := Init(memory.NewVectorMemory(0), codec.Uint64(), codec.Codec[string](picky), nil)
	require.NoError(t, err)
	for k, v := range map[uint64]string{1: "good", 2: "bad", 3: "fine"} {
		_, err := m.Insert(k, v)
		require.NoError(t, err)
	}

	_, found, err := m.Get(2)
	assert.True(t, found)
	assert.ErrorIs(t, err, codec.ErrDecode)

	for k, want := range map[uint64]string{1: "good", 3: "fine"} {
		v, found, err := m.Get(k)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, v)
	}

	it := m.Iter()
	assert.True(t, it.Next())
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), codec.ErrDecode)

	// a poisoned entry can still be removed
	_, removed, err := m.Remove(2)
	assert.True(t, removed)
	assert.ErrorIs(t, err, codec.ErrDecode)
	assert.Equal(t, uint64(2), m.Len())
	require.NoError(t, m.Check())
}

func TestCorruptMeta(t *testing.T) {
	m, mem := newMap(t, nil)
	_, err := m.Insert(1, "first") // generation 1, slot B
	require.NoError(t, err)
	_, err = m.Insert(2, "second") // generation 2, slot A
	require.NoError(t, err)

	t.Run("NewestTorn", func(t *testing.T) {
		copyOf, err := memory.NewVectorMemoryFrom(mem.Bytes(), 0)
		require.NoError(t, err)
		require.NoError(t, copyOf.Write(internal.MetaA+3, []byte{0xAB}))

		older, err := Load(copyOf, codec.Uint64(), codec.String(), nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), older.Generation())
		assert.Equal(t, map[uint64]string{1: "first"}, contents(t, older))
		require.NoError(t, older.Check())
	})

	t.Run("BothTorn", func(t *testing.T) {
		copyOf, err := memory.NewVectorMemoryFrom(mem.Bytes(), 0)
		require.NoError(t, err)
		require.NoError(t, copyOf.Write(internal.MetaA+3, []byte{0xAB}))
		require.NoError(t, copyOf.Write(internal.MetaB+3, []byte{0xAB}))

		_, err = Load(copyOf, codec.Uint64(), codec.String(), nil)
		assert.ErrorIs(t, err, ErrCorruptTree)
	})

	t.Run("LayoutHeader", func(t *testing.T) {
		copyOf, err := memory.NewVectorMemoryFrom(mem.Bytes(), 0)
		require.NoError(t, err)
		require.NoError(t, copyOf.Write(0, []byte("XYZ")))

		_, err = Init(copyOf, codec.Uint64(), codec.String(), nil)
		assert.ErrorIs(t, err, ErrCorruptTree)
	})
}

func TestAbortedMutations(t *testing.T) {
	opts := &Options{Order: 2}

	base, baseMem := newMap(t, opts)
	for i := uint64(0); i < 200; i++ {
		_, err := base.Insert(i*2, fmt.Sprintf("value-%d", i))
		require.NoError(t, err)
	}
	pre := contents(t, base)

	rootKey := func(m *BTreeMap[uint64, string]) uint64 {
		n, err := m.t.readNode(m.t.meta.Root)
		require.NoError(t, err)
		k, err := codec.Uint64().FromBytes(n.Keys[0])
		require.NoError(t, err)
		return k
	}

	ops := []struct {
		name   string
		mutate func(m *BTreeMap[uint64, string]) error
	}{
		{"InsertNew", func(m *BTreeMap[uint64, string]) error {
			_, err := m.Insert(401, "new")
			return err
		}},
		{"Overwrite", func(m *BTreeMap[uint64, string]) error {
			_, err := m.Insert(100, strings.Repeat("o", 500))
			return err
		}},
		{"RemoveLeafKey", func(m *BTreeMap[uint64, string]) error {
			_, _, err := m.Remove(0)
			return err
		}},
		{"RemoveRootKey", func(m *BTreeMap[uint64, string]) error {
			_, _, err := m.Remove(rootKey(m))
			return err
		}},
	}

	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			// dry run to learn the outcome and the number of writes
			counter := memtest.Wrap(cloneMem(t, baseMem))
			dry, err := Load(counter, codec.Uint64(), codec.String(), opts)
			require.NoError(t, err)
			require.NoError(t, op.mutate(dry))
			post := contents(t, dry)
			writes := counter.Writes()
			require.Greater(t, writes, int64(1))

			for _, mode := range []memtest.Mode{memtest.Fail, memtest.Tear} {
				for k := int64(1); k <= writes; k++ {
					inner := cloneMem(t, baseMem)
					faulty := memtest.Wrap(inner)
					m, err := Load(faulty, codec.Uint64(), codec.String(), opts)
					require.NoError(t, err)

					faulty.Arm(k, mode)
					require.ErrorIs(t, op.mutate(m), memtest.ErrInjected, "write %d", k)

					// the bytes hold the tree from before the mutation
					restarted := reload(t, inner, opts)
					require.NoError(t, restarted.Check(), "write %d", k)
					require.Equal(t, pre, contents(t, restarted), "write %d", k)

					// the live map rolled back and can retry
					require.NoError(t, m.Check(), "write %d", k)
					require.Equal(t, pre, contents(t, m), "write %d", k)

					faulty.Disarm()
					require.NoError(t, op.mutate(m), "write %d", k)
					require.NoError(t, m.Check(), "write %d", k)
					require.Equal(t, post, contents(t, m), "write %d", k)
				}
			}
		})
	}
}

func TestReadsDoNotWrite(t *testing.T) {
	mem := memtest.Wrap(memory.NewVectorMemory(0))
	m, err := Init(mem, codec.Uint64(), codec.String(), nil)
	require.NoError(t, err)
	for i := uint64(0); i < 500; i++ {
		_, err := m.Insert(i, "v")
		require.NoError(t, err)
	}
	writes, generation := mem.Writes(), m.Generation()

	_, _, err = m.Get(10)
	require.NoError(t, err)
	_, err = m.ContainsKey(1000)
	require.NoError(t, err)
	_, _, _, err = m.First()
	require.NoError(t, err)
	_, _, _, err = m.Last()
	require.NoError(t, err)
	contents(t, m)
	require.NoError(t, m.Check())
	_, err = m.Info()
	require.NoError(t, err)
	_, removed, err := m.Remove(1000)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, writes, mem.Writes())
	assert.Equal(t, generation, m.Generation())
}

func TestSpaceIsReused(t *testing.T) {
	m, mem := newMap(t, nil)
	big := strings.Repeat("r", 10_000)

	for i := 0; i < 1000; i++ {
		_, err := m.Insert(uint64(i%4), big)
		require.NoError(t, err)
	}
	require.NoError(t, m.Check())
	assert.Less(t, mem.Size(), uint64(256*1024))

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), info.Entries)
	assert.Greater(t, info.FreeChunks, 0)
}

func TestRootGrowsAndCollapses(t *testing.T) {
	m, _ := newMap(t, &Options{Order: 2})

	depth := func() int {
		info, err := m.Info()
		require.NoError(t, err)
		return info.Depth
	}

	assert.Equal(t, 0, depth())
	for i := uint64(1); i <= 3; i++ {
		_, err := m.Insert(i, "v")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, depth())

	_, err := m.Insert(4, "v")
	require.NoError(t, err)
	assert.Equal(t, 2, depth(), "a full root splits")

	for i := uint64(1); i <= 3; i++ {
		_, _, err := m.Remove(i)
		require.NoError(t, err)
		require.NoError(t, m.Check())
	}
	assert.Equal(t, 1, depth(), "the root collapses into its last child")

	_, _, err = m.Remove(4)
	require.NoError(t, err)
	assert.Equal(t, 0, depth())
	assert.Equal(t, uint64(0), m.t.meta.Root)
	require.NoError(t, m.Check())
}

func TestInfo(t *testing.T) {
	m, _ := newMap(t, nil)
	for i := uint64(0); i < 1000; i++ {
		_, err := m.Insert(i, fmt.Sprintf("value-%04d", i))
		require.NoError(t, err)
	}

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), info.Entries)
	assert.GreaterOrEqual(t, info.Depth, 3)
	assert.Greater(t, info.Nodes, info.LeafNodes)
	assert.Equal(t, DefaultOrder, info.Order)
	assert.Equal(t, "fixed", info.KeyLayout)
	assert.Equal(t, "blob", info.ValueLayout)
	assert.Equal(t, int64(1000), info.KeySizes.Count)
	assert.Equal(t, 8, info.KeySizes.Max)
	assert.Equal(t, 10, info.ValueSizes.Max)
	assert.Equal(t, uint64(1000), info.Generation)

	dbInfo := m.GetInfo()
	assert.Equal(t, db.ImplBTree, dbInfo.DbType)
	assert.Equal(t, uint64(1000), dbInfo.Entries)
	assert.IsType(t, TreeInfo{}, dbInfo.Metadata)
	assert.True(t, m.SupportsFeature(db.FeatureRemove|db.FeatureIterate))
}
