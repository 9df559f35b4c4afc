package btree

import (
	"github.com/ValentinKolb/sKV/lib/db/btree/internal"
	"github.com/ValentinKolb/sKV/lib/db/util"
)

// TreeInfo describes the shape and space usage of a tree.
type TreeInfo struct {
	Generation  uint64 `json:"generation"`
	Entries     uint64 `json:"entries"`
	Depth       int    `json:"depth"`
	Nodes       int    `json:"nodes"`
	LeafNodes   int    `json:"leaf_nodes"`
	Order       int    `json:"order"`
	KeyLayout   string `json:"key_layout"`
	ValueLayout string `json:"value_layout"`
	NodeSize    uint32 `json:"node_size"`

	MemoryBytes uint64 `json:"memory_bytes"`
	ChunkBytes  uint64 `json:"chunk_bytes"`
	FreeChunks  int    `json:"free_chunks"`
	FreeBytes   uint64 `json:"free_bytes"`

	NodeFill   util.Stats            `json:"node_fill"`
	KeySizes   util.HistogramSummary `json:"key_sizes"`
	ValueSizes util.HistogramSummary `json:"value_sizes"`
}

// Info walks the tree and reports its shape. It reads every node (and every
// blob), so it is meant for diagnostics rather than hot paths.
func (m *BTreeMap[K, V]) Info() (TreeInfo, error) {
	t := m.t
	info := TreeInfo{
		Generation:  t.meta.Generation,
		Entries:     t.meta.Length,
		Order:       int(t.layout.Order),
		KeyLayout:   t.layout.KeyKind.String(),
		ValueLayout: t.layout.ValueKind.String(),
		NodeSize:    t.layout.NodeSize,
		MemoryBytes: t.mem.Size(),
		ChunkBytes:  t.alloc.Bump() - internal.DataStart,
	}

	for _, size := range t.alloc.FreeChunks() {
		info.FreeChunks++
		info.FreeBytes += size
	}

	var fill []float64
	keys, values := util.NewSizeHistogram(), util.NewSizeHistogram()
	maxEntries := float64(t.layout.MaxEntries())

	err := t.walk(func(_ uint64, n *internal.Node, depth int) error {
		info.Nodes++
		info.Depth = max(info.Depth, depth+1)
		if n.Leaf {
			info.LeafNodes++
		}
		fill = append(fill, float64(len(n.Keys))/maxEntries)

		for i, k := range n.Keys {
			keys.AddSample(len(k))
			raw, err := t.loadValue(n.Values[i])
			if err != nil {
				return err
			}
			values.AddSample(len(raw))
		}
		return nil
	})
	if err != nil {
		return info, err
	}

	info.NodeFill = util.NewStats(fill)
	info.KeySizes = keys.Summary()
	info.ValueSizes = values.Summary()
	return info, nil
}
