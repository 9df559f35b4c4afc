package testing

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
)

// RunKVMapBenchmarks runs all benchmarks for a KVMap implementation
func RunKVMapBenchmarks(b *testing.B, name string, factory MapFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Insert", func(b *testing.B) {
			benchmarkInsert(b, factory)
		})

		b.Run("InsertExisting", func(b *testing.B) {
			benchmarkInsertExisting(b, factory)
		})

		b.Run("InsertLargeValue", func(b *testing.B) {
			benchmarkInsertLargeValue(b, factory)
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory)
		})

		b.Run("Get(missing)", func(b *testing.B) {
			benchmarkGetMissing(b, factory)
		})

		b.Run("Remove", func(b *testing.B) {
			benchmarkRemove(b, factory)
		})

		b.Run("Iterate", func(b *testing.B) {
			benchmarkIterate(b, factory)
		})

		b.Run("Reopen", func(b *testing.B) {
			benchmarkReopen(b, factory)
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const benchKeys = 10_000

// prefill inserts benchKeys sequential keys.
func prefill(b *testing.B, m db.KVMap[uint64, string]) {
	b.Helper()
	for i := uint64(0); i < benchKeys; i++ {
		if _, err := m.Insert(i, fmt.Sprintf("value-%d", i)); err != nil {
			b.Fatalf("prefill failed: %v", err)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Insert of new keys
func benchmarkInsert(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Insert(uint64(i), "value"); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for Insert of existing keys
func benchmarkInsertExisting(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert)
	prefill(b, m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Insert(uint64(i%benchKeys), "updated"); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for Insert with 64KiB values
func benchmarkInsertLargeValue(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert)
	value := strings.Repeat("x", 64*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Insert(uint64(i%128), value); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for Get of existing keys
func benchmarkGet(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert|db.FeatureGet)
	prefill(b, m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := m.Get(uint64(i % benchKeys)); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for Get of keys that do not exist
func benchmarkGetMissing(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert|db.FeatureGet)
	prefill(b, m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := m.Get(uint64(benchKeys + i)); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for Remove, keys are reinserted outside the timer
func benchmarkRemove(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert|db.FeatureRemove)
	prefill(b, m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := uint64(i % benchKeys)
		if _, _, err := m.Remove(k); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()
		if _, err := m.Insert(k, "value"); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
	}
}

// Benchmark for a full ordered scan
func benchmarkIterate(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert|db.FeatureIterate)
	prefill(b, m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it := m.Iter()
		for it.Next() {
		}
		if err := it.Err(); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for reattaching to the memory of a filled map
func benchmarkReopen(b *testing.B, factory MapFactory) {
	m, reopen := factory(b)
	requireFeature(b, m, db.FeatureInsert|db.FeaturePersist)
	if reopen == nil {
		b.Skip()
	}
	prefill(b, m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reopen()
	}
}

// Benchmark for mixed operations (70% get, 20% insert, 10% remove)
func benchmarkMixedUsage(b *testing.B, factory MapFactory) {
	m, _ := factory(b)
	requireFeature(b, m, db.FeatureInsert|db.FeatureGet|db.FeatureRemove)
	prefill(b, m)
	rng := rand.New(rand.NewSource(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := uint64(rng.Intn(2 * benchKeys))
		var err error
		switch op := rng.Intn(10); {
		case op < 7:
			_, _, err = m.Get(k)
		case op < 9:
			_, err = m.Insert(k, "mixed")
		default:
			_, _, err = m.Remove(k)
		}
		if err != nil {
			b.Fatal(err)
		}
	}
}
