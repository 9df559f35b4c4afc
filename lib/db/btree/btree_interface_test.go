package btree

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/db"
	dbtesting "github.com/ValentinKolb/sKV/lib/db/testing"
	"github.com/ValentinKolb/sKV/lib/memmgr"
	"github.com/ValentinKolb/sKV/lib/memory"
)

// vectorFactory stores the map directly in a heap region. reopen reattaches
// to a copy of the latest region bytes.
func vectorFactory(opts *Options) dbtesting.MapFactory {
	return func(tb testing.TB) (db.KVMap[uint64, string], func() db.KVMap[uint64, string]) {
		mem := memory.NewVectorMemory(0)
		m, err := Init(mem, codec.Uint64(), codec.String(), opts)
		if err != nil {
			tb.Fatalf("Init failed: %v", err)
		}

		current := mem
		reopen := func() db.KVMap[uint64, string] {
			next, err := memory.NewVectorMemoryFrom(current.Bytes(), 0)
			if err != nil {
				tb.Fatalf("copying memory failed: %v", err)
			}
			current = next
			m, err := Load(next, codec.Uint64(), codec.String(), opts)
			if err != nil {
				tb.Fatalf("Load failed: %v", err)
			}
			return m
		}
		return m, reopen
	}
}

// bucketFactory stores the map in bucket 0 of a memory manager. reopen
// reattaches the memory manager and the map to a copy of the region bytes.
func bucketFactory(tb testing.TB) (db.KVMap[uint64, string], func() db.KVMap[uint64, string]) {
	attach := func(region memory.IMemory) db.KVMap[uint64, string] {
		mm, err := memmgr.Init(region)
		if err != nil {
			tb.Fatalf("memmgr.Init failed: %v", err)
		}
		bucket, err := mm.GetBucket(0)
		if err != nil {
			tb.Fatalf("GetBucket failed: %v", err)
		}
		m, err := Init(bucket, codec.Uint64(), codec.String(), nil)
		if err != nil {
			tb.Fatalf("Init failed: %v", err)
		}
		return m
	}

	current := memory.NewVectorMemory(0)
	reopen := func() db.KVMap[uint64, string] {
		next, err := memory.NewVectorMemoryFrom(current.Bytes(), 0)
		if err != nil {
			tb.Fatalf("copying region failed: %v", err)
		}
		current = next
		return attach(next)
	}
	return attach(current), reopen
}

func Test(t *testing.T) {
	dbtesting.RunKVMapTests(t, "BTree", vectorFactory(nil))
	dbtesting.RunKVMapTests(t, "BTree(order=2)", vectorFactory(&Options{Order: 2}))
	dbtesting.RunKVMapTests(t, "BTree(bucket)", bucketFactory)
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVMapBenchmarks(b, "BTree", vectorFactory(nil))
	dbtesting.RunKVMapBenchmarks(b, "BTree(bucket)", bucketFactory)
}
