package util

import (
	"math"
	"math/bits"
)

// ----------------------------------------------------------------------------
// Stats
// ----------------------------------------------------------------------------

type Stats struct {
	Count        int     `json:"count"`
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
}

// NewStats computes count, mean, standard deviation, minimum and maximum of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Count: len(values), Min: values[0], Max: values[0]}

	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	// population standard deviation
	var squared float64
	for _, v := range values {
		squared += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(squared / float64(len(values)))

	return s
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// histogramBuckets covers sizes up to 2^31 bytes, the last bucket takes everything larger.
const histogramBuckets = 33

// SizeHistogram tracks the distribution of sizes in power-of-two buckets:
// bucket i counts sizes in (2^(i-1), 2^i], bucket 0 counts sizes 0 and 1.
// It is not safe for concurrent use.
type SizeHistogram struct {
	buckets [histogramBuckets]int64
	count   int64
	sum     int64
	max     int
}

// NewSizeHistogram creates an empty histogram.
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{}
}

// AddSample adds a size sample to the histogram.
func (h *SizeHistogram) AddSample(size int) {
	if size < 0 {
		size = 0
	}
	h.buckets[bucketOf(size)]++
	h.count++
	h.sum += int64(size)
	h.max = max(h.max, size)
}

// Count returns the total number of samples.
func (h *SizeHistogram) Count() int64 { return h.count }

// Sum returns the sum of all samples.
func (h *SizeHistogram) Sum() int64 { return h.sum }

// AverageSize returns the average size across all samples.
func (h *SizeHistogram) AverageSize() int {
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Percentile returns the upper bound of the bucket holding the given percentile (0-100).
// The estimate never exceeds the largest sample.
func (h *SizeHistogram) Percentile(p int) int {
	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}
	target := max(int64(math.Ceil(float64(h.count)*float64(p)/100.0)), 1)

	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative >= target {
			return min(upperBound(i), h.max)
		}
	}
	return h.max
}

// Distribution returns the non-empty buckets as upper bound → sample count.
func (h *SizeHistogram) Distribution() map[int]int64 {
	out := make(map[int]int64)
	for i, n := range h.buckets {
		if n > 0 {
			out[upperBound(i)] = n
		}
	}
	return out
}

// HistogramSummary is a JSON friendly digest of a SizeHistogram.
type HistogramSummary struct {
	Count   int64 `json:"count"`
	Average int   `json:"average"`
	P50     int   `json:"p50"`
	P99     int   `json:"p99"`
	Max     int   `json:"max"`
}

// Summary returns count, average, median, 99th percentile and maximum.
func (h *SizeHistogram) Summary() HistogramSummary {
	return HistogramSummary{
		Count:   h.count,
		Average: h.AverageSize(),
		P50:     h.Percentile(50),
		P99:     h.Percentile(99),
		Max:     h.max,
	}
}

func bucketOf(size int) int {
	if size <= 1 {
		return 0
	}
	return min(bits.Len(uint(size-1)), histogramBuckets-1)
}

func upperBound(bucket int) int {
	if bucket >= histogramBuckets-1 {
		return math.MaxInt
	}
	return 1 << bucket
}
