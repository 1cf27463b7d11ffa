package latency

import (
	"math"
	"slices"
)

// Mean is 0 for an empty sequence.
func Mean(s Samples) float64 {
	if s.Len() == 0 {
		return 0
	}
	var sum float64
	s.Each(func(ms float64) bool {
		sum += ms
		return true
	})
	return sum / float64(s.Len())
}

func Max(s Samples) float64 {
	if s.Len() == 0 {
		return 0
	}
	max := math.Inf(-1)
	s.Each(func(ms float64) bool {
		if ms > max {
			max = ms
		}
		return true
	})
	return max
}

// Percentile returns the nearest-rank p'th percentile, p in [0, 100]. The
// samples are copied into scratch and sorted there, so a scratch with
// capacity for s.Len() samples keeps the call allocation free.
func Percentile(s Samples, p float64, scratch []float64) float64 {
	if s.Len() == 0 {
		return 0
	}
	sorted := s.CopyTo(scratch[:0])
	slices.Sort(sorted)
	return rank(sorted, p)
}

func rank(sorted []float64, p float64) float64 {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	i := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if i < 0 {
		i = 0
	}
	return sorted[i]
}

// Summary is a rolling statistics snapshot in milliseconds.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// Summarize sorts once for all percentiles.
func Summarize(s Samples, scratch []float64) Summary {
	if s.Len() == 0 {
		return Summary{}
	}
	sorted := s.CopyTo(scratch[:0])
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return Summary{
		Count: len(sorted),
		Mean:  sum / float64(len(sorted)),
		P50:   rank(sorted, 50),
		P95:   rank(sorted, 95),
		P99:   rank(sorted, 99),
		Max:   sorted[len(sorted)-1],
	}
}
