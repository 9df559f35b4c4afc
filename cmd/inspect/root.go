package inspect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/db/btree"
	"github.com/ValentinKolb/sKV/lib/memmgr"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/lib/store/stable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	InspectCmd = &cobra.Command{
		Use:   "inspect [memory-file]",
		Short: "Print the directory and the store trees of a region file",
		Long:  `Inspect a region file written by "skv serve --memory=file" without modifying it. The file is read into memory, the directory is attached and every bucket holding a store is loaded and checked for structural consistency.`,
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
)

func init() {
	key := "json"
	InspectCmd.Flags().Bool(key, false, cmdUtil.WrapString("Print the report as JSON"))
}

// BucketReport describes the store held by one bucket.
type BucketReport struct {
	Bucket memmgr.BucketID `json:"bucket"`
	Tree   *btree.TreeInfo `json:"tree,omitempty"`
	Check  string          `json:"check"`
	Error  string          `json:"error,omitempty"`
}

// Report is the result of inspecting a region.
type Report struct {
	Memory  memmgr.Info    `json:"memory"`
	Buckets []BucketReport `json:"buckets"`
}

// Healthy reports whether every bucket passed the check.
func (r Report) Healthy() bool {
	for _, b := range r.Buckets {
		if b.Error != "" {
			return false
		}
	}
	return true
}

func run(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s is empty", args[0])
	}

	report, err := Inspect(raw)
	if err != nil {
		return err
	}

	if viper.GetBool("json") {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		printReport(os.Stdout, report)
	}

	if !report.Healthy() {
		return errors.New("region is inconsistent")
	}
	return nil
}

// Inspect attaches to a copy of the region bytes and reports on every bucket.
// The raw bytes are never modified.
func Inspect(raw []byte) (Report, error) {
	region, err := memory.NewVectorMemoryFrom(raw, 0)
	if err != nil {
		return Report{}, err
	}
	mm, err := memmgr.Init(region)
	if err != nil {
		return Report{}, err
	}

	report := Report{Memory: mm.Info()}
	for _, b := range report.Memory.Buckets {
		report.Buckets = append(report.Buckets, inspectBucket(mm, b.ID))
	}
	return report, nil
}

func inspectBucket(mm *memmgr.MemoryManager, id memmgr.BucketID) BucketReport {
	report := BucketReport{Bucket: id, Check: "failed"}

	bucket, err := mm.GetBucket(id)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	tree, err := btree.Load(bucket, principal.Codec(), stable.RecordCodec(), nil)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	info, err := tree.Info()
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Tree = &info

	if err := tree.Check(); err != nil {
		report.Error = err.Error()
		return report
	}
	report.Check = "ok"
	return report
}

func printReport(w io.Writer, r Report) {
	m := r.Memory
	fmt.Fprintf(w, "region:     %d bytes (%d pages)\n", m.RegionBytes, m.RegionPages)
	fmt.Fprintf(w, "directory:  generation %d, live slot %s\n", m.Generation, m.LiveSlot)
	fmt.Fprintf(w, "buckets:    %d bucket pages, %d free\n", m.BucketPages, m.FreeBucketPages)

	for _, b := range r.Buckets {
		fmt.Fprintf(w, "\nbucket %d: check %s\n", b.Bucket, b.Check)
		if b.Error != "" {
			fmt.Fprintf(w, "  error:    %s\n", b.Error)
		}
		if t := b.Tree; t != nil {
			fmt.Fprintf(w, "  entries:  %d (generation %d)\n", t.Entries, t.Generation)
			fmt.Fprintf(w, "  layout:   order %d, keys %s, values %s, node size %d\n", t.Order, t.KeyLayout, t.ValueLayout, t.NodeSize)
			fmt.Fprintf(w, "  shape:    depth %d, %d nodes (%d leaves), fill mean %.2f\n", t.Depth, t.Nodes, t.LeafNodes, t.NodeFill.Mean)
			fmt.Fprintf(w, "  space:    %d bytes memory, %d bytes chunks, %d free chunks (%d bytes)\n", t.MemoryBytes, t.ChunkBytes, t.FreeChunks, t.FreeBytes)
		}
	}
}
