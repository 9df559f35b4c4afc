package inspect

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/db/btree"
	"github.com/ValentinKolb/sKV/lib/memmgr"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/lib/store/stable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedRegion(t *testing.T) (*memory.VectorMemory, *memmgr.MemoryManager) {
	t.Helper()
	region := memory.NewVectorMemory(0)
	mm, err := memmgr.Init(region)
	require.NoError(t, err)

	s, err := stable.New(mm, 0)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		p, err := principal.FromBytes([]byte(fmt.Sprintf("p-%03d", i)))
		require.NoError(t, err)
		require.NoError(t, s.SetDataForPrincipal(p, fmt.Sprintf("data-%d", i)))
	}
	return region, mm
}

func TestInspect(t *testing.T) {
	region, _ := populatedRegion(t)
	raw := region.Bytes()
	before := bytes.Clone(raw)

	report, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, before, raw, "inspect must not modify the region")

	require.Len(t, report.Buckets, 1)
	b := report.Buckets[0]
	assert.Equal(t, memmgr.BucketID(0), b.Bucket)
	assert.Equal(t, "ok", b.Check)
	assert.Empty(t, b.Error)
	require.NotNil(t, b.Tree)
	assert.EqualValues(t, 500, b.Tree.Entries)
	assert.True(t, report.Healthy())

	var out bytes.Buffer
	printReport(&out, report)
	assert.Contains(t, out.String(), "bucket 0: check ok")
	assert.Contains(t, out.String(), "entries:  500")
}

func TestInspectForeignLayout(t *testing.T) {
	region, mm := populatedRegion(t)

	// a bucket holding a tree that is not a principal store
	bucket, err := mm.GetBucket(2)
	require.NoError(t, err)
	other, err := btree.Init(bucket, codec.Uint64(), codec.Uint64(), nil)
	require.NoError(t, err)
	_, err = other.Insert(1, 2)
	require.NoError(t, err)

	report, err := Inspect(region.Bytes())
	require.NoError(t, err)
	require.Len(t, report.Buckets, 2)
	assert.Equal(t, "ok", report.Buckets[0].Check)
	assert.Equal(t, "failed", report.Buckets[1].Check)
	assert.NotEmpty(t, report.Buckets[1].Error)
	assert.False(t, report.Healthy())
}

func TestInspectGarbage(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, int(memory.PageSize))
	_, err := Inspect(raw)
	assert.Error(t, err)

	_, err = Inspect([]byte("not a multiple of the page size"))
	assert.Error(t, err)
}
