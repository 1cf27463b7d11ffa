package backpressure

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type target struct {
	calls []string
}

func (t *target) Pause()  { t.calls = append(t.calls, "pause") }
func (t *target) Resume() { t.calls = append(t.calls, "resume") }

func TestHysteresis(t *testing.T) {
	tg := &target{}
	c, err := New(tg, 100, 50)
	require.NoError(t, err)

	c.Report(100)
	assert.Equal(t, []string{"pause"}, tg.calls)
	assert.True(t, c.Paused())

	for _, n := range []int{99, 80, 60} {
		c.Report(n)
	}
	assert.Equal(t, []string{"pause"}, tg.calls)

	c.Report(50)
	assert.Equal(t, []string{"pause", "resume"}, tg.calls)
	assert.False(t, c.Paused())

	c.Report(75)
	assert.Equal(t, []string{"pause", "resume"}, tg.calls)

	assert.Equal(t, Stats{QueueSize: 75, Pauses: 1, Resumes: 1}, c.Stats())
}

func TestNoResumeBeforePause(t *testing.T) {
	tg := &target{}
	c, err := New(tg, 10, 0)
	require.NoError(t, err)
	c.Report(0)
	c.Report(-3)
	c.Report(9)
	assert.Empty(t, tg.calls)
	c.Report(250)
	c.Report(11)
	assert.Equal(t, []string{"pause"}, tg.calls)
	c.Report(0)
	assert.Equal(t, []string{"pause", "resume"}, tg.calls)
}

func TestWaterMarks(t *testing.T) {
	for _, marks := range [][2]int{{50, 50}, {10, 20}, {10, -1}} {
		_, err := New(&target{}, marks[0], marks[1])
		assert.ErrorIs(t, err, ErrWaterMarks)
	}
}

// gated holds Pause until release is closed.
type gated struct {
	mu      sync.Mutex
	paused  bool
	entered chan struct{}
	release chan struct{}
}

func (g *gated) Pause() {
	close(g.entered)
	<-g.release
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *gated) Resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
}

func (g *gated) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func TestSlowPauseNotOvertakenByResume(t *testing.T) {
	g := &gated{entered: make(chan struct{}), release: make(chan struct{})}
	c, err := New(g, 10, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Report(100)
	}()
	<-g.entered
	go func() {
		defer wg.Done()
		c.Report(0)
	}()
	time.Sleep(20 * time.Millisecond)
	close(g.release)
	wg.Wait()

	assert.False(t, c.Paused())
	assert.False(t, g.isPaused())
	assert.Equal(t, Stats{Pauses: 1, Resumes: 1}, c.Stats())
}

type state struct {
	mu     sync.Mutex
	paused bool
}

func (s *state) Pause()  { s.mu.Lock(); s.paused = true; s.mu.Unlock() }
func (s *state) Resume() { s.mu.Lock(); s.paused = false; s.mu.Unlock() }

func TestConcurrentReportsAgree(t *testing.T) {
	st := &state{}
	c, err := New(st, 8, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for j := 0; j < 1000; j++ {
				c.Report(r.Intn(12))
			}
		}(int64(i))
	}
	wg.Wait()
	for _, n := range []int{20, 0} {
		c.Report(n)
		st.mu.Lock()
		assert.Equal(t, c.Paused(), st.paused)
		st.mu.Unlock()
	}
	assert.False(t, c.Paused())
}
