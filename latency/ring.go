// Package latency keeps a fixed window of recent per-event latency samples
// and computes rolling statistics over it.
package latency

import "sync"

// Ring is a fixed-capacity circular store of samples in milliseconds. It
// does not allocate after NewRing and is meant for a single writer; use
// SyncRing when several goroutines record.
type Ring struct {
	buf    []float64
	cursor int // next write position, in [0, len(buf))
	filled int // in [0, len(buf)]
}

// NewRing allocates a ring holding the capacity most recent samples. It
// panics if capacity is not positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("latency: capacity must be > 0")
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Record overwrites the oldest sample once the ring is full.
func (r *Ring) Record(ms float64) {
	r.buf[r.cursor] = ms
	r.cursor++
	if r.cursor == len(r.buf) {
		r.cursor = 0
	}
	if r.filled < len(r.buf) {
		r.filled++
	}
}

func (r *Ring) Len() int { return r.filled }
func (r *Ring) Cap() int { return len(r.buf) }

// Reset forgets every sample.
func (r *Ring) Reset() {
	r.cursor, r.filled = 0, 0
}

// Snapshot returns a view of the current samples, oldest to newest. The view
// shares the ring's storage and is invalidated by the next Record.
func (r *Ring) Snapshot() Samples {
	start := r.cursor - r.filled
	if start < 0 {
		start += len(r.buf)
	}
	return Samples{buf: r.buf, start: start, n: r.filled}
}

// Samples is a finite, restartable sequence over a ring. It is a value and
// iterating it allocates nothing.
type Samples struct {
	buf   []float64
	start int
	n     int
}

func (s Samples) Len() int { return s.n }

// At returns the i'th oldest sample.
func (s Samples) At(i int) float64 {
	if i < 0 || i >= s.n {
		panic("latency: index out of range")
	}
	j := s.start + i
	if j >= len(s.buf) {
		j -= len(s.buf)
	}
	return s.buf[j]
}

// Each calls fn for every sample, oldest first, until fn returns false.
func (s Samples) Each(fn func(ms float64) bool) {
	head := s.buf[s.start:]
	if len(head) > s.n {
		head = head[:s.n]
	}
	for _, v := range head {
		if !fn(v) {
			return
		}
	}
	for _, v := range s.buf[:s.n-len(head)] {
		if !fn(v) {
			return
		}
	}
}

// CopyTo appends the samples to dst in order.
func (s Samples) CopyTo(dst []float64) []float64 {
	head := s.buf[s.start:]
	if len(head) > s.n {
		head = head[:s.n]
	}
	dst = append(dst, head...)
	return append(dst, s.buf[:s.n-len(head)]...)
}

// SyncRing is a Ring guarded by a mutex.
type SyncRing struct {
	mu      sync.Mutex
	r       *Ring
	scratch []float64
}

func NewSyncRing(capacity int) *SyncRing {
	return &SyncRing{r: NewRing(capacity), scratch: make([]float64, 0, capacity)}
}

func (s *SyncRing) Record(ms float64) {
	s.mu.Lock()
	s.r.Record(ms)
	s.mu.Unlock()
}

func (s *SyncRing) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Len()
}

// Summarize computes a Summary under the lock using a scratch buffer owned
// by the SyncRing.
func (s *SyncRing) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.r.Snapshot(), s.scratch)
}

// CopyTo appends the current samples to dst, oldest first.
func (s *SyncRing) CopyTo(dst []float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Snapshot().CopyTo(dst)
}

func (s *SyncRing) Reset() {
	s.mu.Lock()
	s.r.Reset()
	s.mu.Unlock()
}
