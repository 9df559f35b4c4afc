package data

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for sKV servers",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// latency timers, one per test
	perfRegistry = gometrics.NewRegistry()
)

// perfPrefix marks the principals used by the perf command so they do not
// collide with real data.
var perfPrefix = []byte{0xfe, 0x70}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different principals to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for sKV servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	principals := perfPrincipals()
	principalAt := func(i int) principal.Principal { return principals[i%len(principals)] }

	tests := []struct {
		name    string
		prepare func()
		op      func(i int) error
	}{
		{
			name: "set",
			op: func(i int) error {
				return rpcStore.SetDataForPrincipal(principalAt(i), "test")
			},
		},
		{
			name: "set-large",
			op: func() func(int) error {
				largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
				return func(i int) error {
					return rpcStore.SetDataForPrincipal(principalAt(i), largeValue)
				}
			}(),
		},
		{
			name: "get",
			prepare: func() {
				for _, p := range principals {
					if err := rpcStore.SetDataForPrincipal(p, "test"); err != nil {
						log.Printf("(get) - error setting data: %v\n", err)
					}
				}
			},
			op: func(i int) error {
				_, err := rpcStore.GetDataForPrincipal(principalAt(i))
				return err
			},
		},
		{
			name: "get-missing",
			op: func(i int) error {
				// principals outside the prepared range are never written
				p, _ := principal.FromBytes(binary.BigEndian.AppendUint32(append([]byte{}, perfPrefix...), uint32(perfKeySpread+i)))
				_, err := rpcStore.GetDataForPrincipal(p)
				return err
			},
		},
		{
			name: "mixed",
			op: func(i int) error {
				if i%2 == 0 {
					return rpcStore.SetDataForPrincipal(principalAt(i), "test")
				}
				_, err := rpcStore.GetDataForPrincipal(principalAt(i))
				return err
			},
		},
	}

	results := make(map[string]testing.BenchmarkResult)
	for _, test := range tests {
		if shouldSkip(test.name) {
			printResult(test.name, testing.BenchmarkResult{}, nil)
			continue
		}
		if test.prepare != nil {
			test.prepare()
		}

		timer := gometrics.GetOrRegisterTimer(test.name, perfRegistry)
		result := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := test.op(counter); err != nil {
						log.Printf("(%s) - error: %v\n", test.name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[test.name] = result
		printResult(test.name, result, timer)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// perfPrincipals returns the principals used by the tests
func perfPrincipals() []principal.Principal {
	principals := make([]principal.Principal, perfKeySpread)
	for i := range principals {
		b := binary.BigEndian.AppendUint32(append([]byte{}, perfPrefix...), uint32(i))
		principals[i], _ = principal.FromBytes(b)
	}
	return principals
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 || timer == nil {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	snapshot := timer.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.95, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s max=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), time.Duration(snapshot.Max()))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Principals",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		opsPerSec := 1.0 / (nsPerOp / 1e9)
		ps := gometrics.GetOrRegisterTimer(test, perfRegistry).Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
