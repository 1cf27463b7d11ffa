// Package backpressure couples a consumer's read loop to the depth of the
// downstream queue it feeds.
package backpressure

import (
	"errors"
	"fmt"
	"sync"

	"github.com/moontrade/backbone/logger"
)

var ErrWaterMarks = errors.New("high water mark must be greater than low water mark")

// Pausable is implemented by consumer.Consumer. Both calls must be
// idempotent and return promptly.
type Pausable interface {
	Pause()
	Resume()
}

// Controller is a hysteresis controller. It pauses the target when the
// reported queue size reaches the high water mark and resumes it when the
// size falls to the low water mark. Reports in between change nothing.
type Controller struct {
	mu      sync.Mutex
	target  Pausable
	high    int
	low     int
	paused  bool
	last    int
	pauses  uint64
	resumes uint64
	log     *logger.Logger
}

// Stats are transition counters.
type Stats struct {
	Paused    bool   `json:"paused"`
	QueueSize int    `json:"queue_size"`
	Pauses    uint64 `json:"pauses"`
	Resumes   uint64 `json:"resumes"`
}

// New requires high > low >= 0.
func New(target Pausable, high, low int) (*Controller, error) {
	if low < 0 || high <= low {
		return nil, fmt.Errorf("%w: high=%d low=%d", ErrWaterMarks, high, low)
	}
	return &Controller{target: target, high: high, low: low, log: logger.Nop()}, nil
}

// WithLogger sets the logger transitions are reported to.
func (c *Controller) WithLogger(l *logger.Logger) *Controller {
	c.log = logger.OrNop(l)
	return c
}

// Report is called every time the owner's queue depth changes. Transitions
// and the target calls they make are serialized, so the target always ends
// in the state Paused reports. Pause and Resume run under the controller's
// lock and must not block or call back into it.
func (c *Controller) Report(queueSize int) {
	if queueSize < 0 {
		queueSize = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = queueSize
	switch {
	case !c.paused && queueSize >= c.high:
		c.paused = true
		c.pauses++
		c.log.Debug("backpressure: pause at queue size %d (high %d)", queueSize, c.high)
		c.target.Pause()
	case c.paused && queueSize <= c.low:
		c.paused = false
		c.resumes++
		c.log.Debug("backpressure: resume at queue size %d (low %d)", queueSize, c.low)
		c.target.Resume()
	}
}

func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Paused: c.paused, QueueSize: c.last, Pauses: c.pauses, Resumes: c.resumes}
}
