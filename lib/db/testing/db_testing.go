package testing

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
)

// MapFactory creates an empty map for one test. reopen attaches a new map
// instance to the memory of m (simulating a process restart) and may be nil
// for implementations without persistence.
type MapFactory func(tb testing.TB) (m db.KVMap[uint64, string], reopen func() db.KVMap[uint64, string])

// checker is implemented by maps that can validate their own structure.
type checker interface {
	Check() error
}

// RunKVMapTests runs a comprehensive test suite for a KVMap implementation.
func RunKVMapTests(t *testing.T, name string, factory MapFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Insert&Get", func(t *testing.T) {
			testInsertGet(t, factory)
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, factory)
		})

		t.Run("Absence", func(t *testing.T) {
			testAbsence(t, factory)
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory)
		})

		t.Run("Ordering", func(t *testing.T) {
			testOrdering(t, factory)
		})

		t.Run("FirstLast", func(t *testing.T) {
			testFirstLast(t, factory)
		})

		t.Run("IteratorInvalidation", func(t *testing.T) {
			testIteratorInvalidation(t, factory)
		})

		t.Run("Persistence", func(t *testing.T) {
			testPersistence(t, factory)
		})

		t.Run("ManyKeys", func(t *testing.T) {
			testManyKeys(t, factory)
		})

		t.Run("RandomWorkload", func(t *testing.T) {
			testRandomWorkload(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the map supports the specified feature
// Skip the test if it is not supported
func requireFeature(tb testing.TB, m db.KVMap[uint64, string], feature db.Feature) {
	if !m.SupportsFeature(feature) {
		tb.Skip()
	}
}

func mustInsert(tb testing.TB, m db.KVMap[uint64, string], key uint64, value string) bool {
	tb.Helper()
	replaced, err := m.Insert(key, value)
	if err != nil {
		tb.Fatalf("Insert(%d) failed: %v", key, err)
	}
	return replaced
}

func mustGet(tb testing.TB, m db.KVMap[uint64, string], key uint64) (string, bool) {
	tb.Helper()
	value, found, err := m.Get(key)
	if err != nil {
		tb.Fatalf("Get(%d) failed: %v", key, err)
	}
	return value, found
}

// checkStructure runs the map's self check if it has one.
func checkStructure(tb testing.TB, m db.KVMap[uint64, string]) {
	tb.Helper()
	if c, ok := m.(checker); ok {
		if err := c.Check(); err != nil {
			tb.Fatalf("structure check failed: %v", err)
		}
	}
}

// collect drains an iterator.
func collect(tb testing.TB, it db.IIterator[uint64, string]) ([]uint64, []string) {
	tb.Helper()
	var keys []uint64
	var values []string
	for it.Next() {
		keys = append(keys, it.Key())
		values = append(values, it.Value())
	}
	if err := it.Err(); err != nil {
		tb.Fatalf("iteration failed: %v", err)
	}
	return keys, values
}

// verifyContent checks that m holds exactly the entries of model, in order.
func verifyContent(tb testing.TB, m db.KVMap[uint64, string], model map[uint64]string) {
	tb.Helper()

	if m.Len() != uint64(len(model)) {
		tb.Errorf("Expected %d entries, got %d", len(model), m.Len())
	}

	want := make([]uint64, 0, len(model))
	for k := range model {
		want = append(want, k)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	keys, values := collect(tb, m.Iter())
	if len(keys) != len(want) {
		tb.Fatalf("Iteration returned %d keys, expected %d", len(keys), len(want))
	}
	for i, k := range keys {
		if k != want[i] {
			tb.Fatalf("Iteration position %d: got key %d, expected %d", i, k, want[i])
		}
		if values[i] != model[k] {
			tb.Fatalf("Iteration key %d: got value %q, expected %q", k, values[i], model[k])
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertGet(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureInsert|db.FeatureGet)

	if !m.IsEmpty() {
		t.Errorf("Expected a new map to be empty")
	}

	if mustInsert(t, m, 42, "answer") {
		t.Errorf("Expected first insert to report replaced=false")
	}

	value, found := mustGet(t, m, 42)
	if !found {
		t.Errorf("Expected key 42 to exist after Insert")
	}
	if value != "answer" {
		t.Errorf("Expected value %q, got %q", "answer", value)
	}

	ok, err := m.ContainsKey(42)
	if err != nil || !ok {
		t.Errorf("Expected ContainsKey(42) to be true, got %v (err %v)", ok, err)
	}

	if m.Len() != 1 || m.IsEmpty() {
		t.Errorf("Expected one entry, got %d", m.Len())
	}
}

func testOverwrite(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureInsert|db.FeatureGet)

	for i := uint64(0); i < 100; i++ {
		mustInsert(t, m, i, fmt.Sprintf("value-%d", i))
	}

	if !mustInsert(t, m, 50, "v2") {
		t.Errorf("Expected overwrite to report replaced=true")
	}

	value, _ := mustGet(t, m, 50)
	if value != "v2" {
		t.Errorf("Expected overwritten value %q, got %q", "v2", value)
	}

	// no other key changed
	for i := uint64(0); i < 100; i++ {
		if i == 50 {
			continue
		}
		value, found := mustGet(t, m, i)
		if !found || value != fmt.Sprintf("value-%d", i) {
			t.Errorf("Key %d changed after overwriting key 50: %q (found=%v)", i, value, found)
		}
	}

	if m.Len() != 100 {
		t.Errorf("Expected overwrite to keep 100 entries, got %d", m.Len())
	}

	// overwrite with growing and shrinking values
	mustInsert(t, m, 7, strings.Repeat("x", 2000))
	mustInsert(t, m, 7, "small")
	if value, _ := mustGet(t, m, 7); value != "small" {
		t.Errorf("Expected %q, got %q", "small", value)
	}
	checkStructure(t, m)
}

func testAbsence(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureGet)

	if _, found := mustGet(t, m, 1); found {
		t.Errorf("Expected missing key in empty map")
	}

	for i := uint64(0); i < 50; i += 2 {
		mustInsert(t, m, i, "even")
	}
	for i := uint64(1); i < 50; i += 2 {
		if _, found := mustGet(t, m, i); found {
			t.Errorf("Expected odd key %d to be absent", i)
		}
		if ok, _ := m.ContainsKey(i); ok {
			t.Errorf("Expected ContainsKey(%d) to be false", i)
		}
	}
}

func testRemove(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureRemove)

	_, removed, err := m.Remove(1)
	if err != nil || removed {
		t.Errorf("Expected removing from an empty map to report removed=false, got %v (err %v)", removed, err)
	}

	model := make(map[uint64]string)
	for i := uint64(0); i < 500; i++ {
		mustInsert(t, m, i, fmt.Sprintf("v%d", i))
		model[i] = fmt.Sprintf("v%d", i)
	}

	// remove every third key, front to back
	for i := uint64(0); i < 500; i += 3 {
		old, removed, err := m.Remove(i)
		if err != nil {
			t.Fatalf("Remove(%d) failed: %v", i, err)
		}
		if !removed || old != model[i] {
			t.Errorf("Remove(%d) = %q, %v; expected %q, true", i, old, removed, model[i])
		}
		delete(model, i)
	}
	checkStructure(t, m)
	verifyContent(t, m, model)

	// removing twice is a no-op
	if _, removed, _ := m.Remove(0); removed {
		t.Errorf("Expected second Remove(0) to report removed=false")
	}

	// drain completely, back to front
	for i := int64(499); i >= 0; i-- {
		if _, ok := model[uint64(i)]; !ok {
			continue
		}
		if _, removed, err := m.Remove(uint64(i)); err != nil || !removed {
			t.Fatalf("Remove(%d) = %v (err %v)", i, removed, err)
		}
		delete(model, uint64(i))
	}
	if !m.IsEmpty() {
		t.Errorf("Expected map to be empty after removing every key, %d left", m.Len())
	}
	checkStructure(t, m)

	// the map is usable after being emptied
	mustInsert(t, m, 3, "again")
	if value, found := mustGet(t, m, 3); !found || value != "again" {
		t.Errorf("Expected reinserted key to be readable")
	}
}

func testOrdering(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureIterate)

	rng := rand.New(rand.NewSource(1))
	model := make(map[uint64]string)
	for i := 0; i < 1000; i++ {
		k := uint64(rng.Intn(5000))
		model[k] = fmt.Sprintf("%d", rng.Int())
		mustInsert(t, m, k, model[k])
	}
	verifyContent(t, m, model)

	// IterFrom starts at the first key >= from
	for _, from := range []uint64{0, 1, 2500, 4999, 5000, math.MaxUint64} {
		keys, _ := collect(t, m.IterFrom(from))
		expected := 0
		for k := range model {
			if k >= from {
				expected++
			}
		}
		if len(keys) != expected {
			t.Errorf("IterFrom(%d) returned %d keys, expected %d", from, len(keys), expected)
		}
		for i, k := range keys {
			if k < from {
				t.Errorf("IterFrom(%d) returned smaller key %d", from, k)
			}
			if i > 0 && keys[i-1] >= k {
				t.Errorf("IterFrom(%d) not strictly increasing at %d", from, i)
			}
		}
	}

	// every call starts a fresh traversal
	first, _ := collect(t, m.Iter())
	second, _ := collect(t, m.Iter())
	if len(first) != len(second) {
		t.Errorf("Expected restartable iteration, got %d and %d keys", len(first), len(second))
	}
}

func testFirstLast(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureIterate)

	if _, _, found, err := m.First(); found || err != nil {
		t.Errorf("Expected First on an empty map to find nothing (err %v)", err)
	}

	for _, k := range []uint64{500, 3, 999, 42, 7} {
		mustInsert(t, m, k, fmt.Sprintf("k%d", k))
	}
	for i := uint64(100); i < 300; i++ {
		mustInsert(t, m, i, "filler")
	}

	k, v, found, err := m.First()
	if err != nil || !found || k != 3 || v != "k3" {
		t.Errorf("First() = %d, %q, %v, %v; expected 3, k3", k, v, found, err)
	}
	k, v, found, err = m.Last()
	if err != nil || !found || k != 999 || v != "k999" {
		t.Errorf("Last() = %d, %q, %v, %v; expected 999, k999", k, v, found, err)
	}
}

func testIteratorInvalidation(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureIterate|db.FeatureInsert)

	for i := uint64(0); i < 10; i++ {
		mustInsert(t, m, i, "v")
	}

	it := m.Iter()
	if !it.Next() {
		t.Fatalf("Expected at least one entry")
	}
	mustInsert(t, m, 100, "mutation")

	if it.Next() {
		t.Errorf("Expected iterator to stop after a mutation")
	}
	if it.Err() == nil {
		t.Errorf("Expected an invalidation error after a mutation")
	}

	// a failed lookup is not a mutation
	it = m.Iter()
	_, _ = mustGet(t, m, 12345)
	keys, _ := collect(t, it)
	if len(keys) != 11 {
		t.Errorf("Expected 11 keys, got %d", len(keys))
	}
}

func testPersistence(t *testing.T, factory MapFactory) {
	m, reopen := factory(t)

	requireFeature(t, m, db.FeaturePersist)
	if reopen == nil {
		t.Skip()
	}

	model := make(map[uint64]string)
	for i := uint64(0); i < 300; i++ {
		model[i*7] = strings.Repeat("p", int(i))
		mustInsert(t, m, i*7, model[i*7])
	}

	restarted := reopen()
	verifyContent(t, restarted, model)
	checkStructure(t, restarted)

	// the reattached map keeps working
	mustInsert(t, restarted, 1, "after restart")
	model[1] = "after restart"
	verifyContent(t, reopen(), model)
}

func testManyKeys(t *testing.T, factory MapFactory) {
	m, reopen := factory(t)

	requireFeature(t, m, db.FeatureInsert|db.FeatureIterate)

	rng := rand.New(rand.NewSource(42))
	model := make(map[uint64]string)
	for len(model) < 10_000 {
		k := rng.Uint64()
		if _, ok := model[k]; ok {
			continue
		}
		model[k] = fmt.Sprintf("%x", rng.Uint64())
		mustInsert(t, m, k, model[k])
	}
	verifyContent(t, m, model)
	checkStructure(t, m)

	if reopen != nil {
		restarted := reopen()
		for k, v := range model {
			got, found := mustGet(t, restarted, k)
			if !found || got != v {
				t.Fatalf("Key %d after restart: got %q (found=%v), expected %q", k, got, found, v)
			}
		}
		verifyContent(t, restarted, model)
	}
}

func testRandomWorkload(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureInsert|db.FeatureGet|db.FeatureRemove)

	rng := rand.New(rand.NewSource(7))
	model := make(map[uint64]string)

	for step := 0; step < 5000; step++ {
		k := uint64(rng.Intn(300))
		switch op := rng.Intn(10); {
		case op < 5:
			v := strings.Repeat(string(rune('a'+rng.Intn(26))), rng.Intn(40))
			_, existed := model[k]
			if replaced := mustInsert(t, m, k, v); replaced != existed {
				t.Fatalf("step %d: Insert(%d) replaced=%v, expected %v", step, k, replaced, existed)
			}
			model[k] = v
		case op < 8:
			old, removed, err := m.Remove(k)
			if err != nil {
				t.Fatalf("step %d: Remove(%d) failed: %v", step, k, err)
			}
			want, existed := model[k]
			if removed != existed || old != want {
				t.Fatalf("step %d: Remove(%d) = %q, %v; expected %q, %v", step, k, old, removed, want, existed)
			}
			delete(model, k)
		default:
			got, found := mustGet(t, m, k)
			want, existed := model[k]
			if found != existed || got != want {
				t.Fatalf("step %d: Get(%d) = %q, %v; expected %q, %v", step, k, got, found, want, existed)
			}
		}

		if step%500 == 0 {
			checkStructure(t, m)
		}
	}
	checkStructure(t, m)
	verifyContent(t, m, model)
}

func testEdgeCases(t *testing.T, factory MapFactory) {
	m, _ := factory(t)

	requireFeature(t, m, db.FeatureInsert|db.FeatureGet)

	cases := []struct {
		key   uint64
		value string
	}{
		{0, ""},
		{math.MaxUint64, "max"},
		{1, strings.Repeat("large", 20_000)},
		{2, "unicode ✓ ключ 鍵"},
	}

	for _, c := range cases {
		mustInsert(t, m, c.key, c.value)
	}
	for _, c := range cases {
		value, found := mustGet(t, m, c.key)
		if !found || value != c.value {
			t.Errorf("Key %d: got %d bytes (found=%v), expected %d bytes", c.key, len(value), found, len(c.value))
		}
	}

	keys, _ := collect(t, m.Iter())
	if len(keys) != 4 || keys[0] != 0 || keys[3] != math.MaxUint64 {
		t.Errorf("Unexpected key order %v", keys)
	}
	checkStructure(t, m)
}
