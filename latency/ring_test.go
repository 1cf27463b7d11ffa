package latency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(s Samples) []float64 {
	var out []float64
	s.Each(func(ms float64) bool {
		out = append(out, ms)
		return true
	})
	return out
}

func TestRingPartial(t *testing.T) {
	r := NewRing(5)
	assert.Empty(t, collect(r.Snapshot()))
	for i := 1; i <= 3; i++ {
		r.Record(float64(i))
	}
	s := r.Snapshot()
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2, 3}, collect(s))
	assert.Equal(t, 3.0, s.At(2))
}

func TestRingWraps(t *testing.T) {
	r := NewRing(4)
	for i := 1; i <= 10; i++ {
		r.Record(float64(i))
	}
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 4, r.Cap())
	s := r.Snapshot()
	want := []float64{7, 8, 9, 10}
	assert.Equal(t, want, collect(s))
	// restartable
	assert.Equal(t, want, collect(s))
	assert.Equal(t, want, s.CopyTo(nil))
	for i, v := range want {
		assert.Equal(t, v, s.At(i))
	}
	assert.Panics(t, func() { s.At(4) })
}

func TestRingExactlyFull(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 3; i++ {
		r.Record(float64(i))
	}
	assert.Equal(t, []float64{1, 2, 3}, collect(r.Snapshot()))
	r.Record(4)
	assert.Equal(t, []float64{2, 3, 4}, collect(r.Snapshot()))
}

func TestRingProperty(t *testing.T) {
	for capacity := 1; capacity <= 7; capacity++ {
		for n := 0; n <= 3*capacity; n++ {
			r := NewRing(capacity)
			var all []float64
			for i := 0; i < n; i++ {
				r.Record(float64(i))
				all = append(all, float64(i))
			}
			if n > capacity {
				all = all[n-capacity:]
			}
			got := collect(r.Snapshot())
			if len(all) == 0 {
				assert.Empty(t, got)
				continue
			}
			assert.Equal(t, all, got, "capacity=%d n=%d", capacity, n)
		}
	}
}

func TestEachStops(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 6; i++ {
		r.Record(float64(i))
	}
	var seen int
	r.Snapshot().Each(func(float64) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestReset(t *testing.T) {
	r := NewRing(2)
	r.Record(1)
	r.Reset()
	assert.Zero(t, r.Len())
	r.Record(5)
	assert.Equal(t, []float64{5}, collect(r.Snapshot()))
}

func TestNewRingPanics(t *testing.T) {
	assert.Panics(t, func() { NewRing(0) })
}

func TestStats(t *testing.T) {
	r := NewRing(100)
	for i := 1; i <= 100; i++ {
		r.Record(float64(i))
	}
	s := r.Snapshot()
	scratch := make([]float64, 0, 100)
	assert.Equal(t, 50.5, Mean(s))
	assert.Equal(t, 100.0, Max(s))
	assert.Equal(t, 50.0, Percentile(s, 50, scratch))
	assert.Equal(t, 99.0, Percentile(s, 99, scratch))
	assert.Equal(t, 1.0, Percentile(s, 0, scratch))
	assert.Equal(t, 100.0, Percentile(s, 100, scratch))

	sum := Summarize(s, scratch)
	assert.Equal(t, Summary{Count: 100, Mean: 50.5, P50: 50, P95: 95, P99: 99, Max: 100}, sum)

	// the ring itself is untouched by sorting
	assert.Equal(t, 1.0, s.At(0))
	assert.Equal(t, Summary{}, Summarize(NewRing(1).Snapshot(), nil))
}

func TestZeroAlloc(t *testing.T) {
	r := NewRing(256)
	scratch := make([]float64, 0, 256)
	allocs := testing.AllocsPerRun(100, func() {
		for i := 0; i < 300; i++ {
			r.Record(float64(i))
		}
		s := r.Snapshot()
		_ = Mean(s)
		_ = Percentile(s, 99, scratch)
	})
	assert.Zero(t, allocs)
}

func TestSyncRing(t *testing.T) {
	r := NewSyncRing(64)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Record(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 64, r.Len())
	sum := r.Summarize()
	assert.Equal(t, 64, sum.Count)
	assert.Equal(t, 1.0, sum.Mean)
	assert.Len(t, r.CopyTo(nil), 64)
	r.Reset()
	assert.Zero(t, r.Len())
}

func BenchmarkRecord(b *testing.B) {
	r := NewRing(1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Record(float64(i))
	}
}

func BenchmarkSummarize(b *testing.B) {
	r := NewRing(1024)
	for i := 0; i < 1024; i++ {
		r.Record(float64(i % 97))
	}
	scratch := make([]float64, 0, 1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Summarize(r.Snapshot(), scratch)
	}
}
