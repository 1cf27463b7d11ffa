// Package producer batches outbound messages per stream and appends each
// batch to the log in one round trip.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moontrade/backbone/logger"
	"github.com/moontrade/backbone/transport"
)

var (
	ErrClosed = errors.New("batcher closed")
	// ErrFlush matches every *FlushError.
	ErrFlush = errors.New("batch flush failed")
)

// Appender is the part of transport.Transport a Batcher needs.
type Appender interface {
	Append(ctx context.Context, stream string, maxLen int64, batch []transport.Fields) ([]string, error)
}

type Config struct {
	// MaxBatchSize cuts a batch as soon as a stream buffers this many
	// messages. Default 100.
	MaxBatchSize int
	// MaxLinger cuts a batch this long after its oldest message was
	// enqueued. Default 5ms.
	MaxLinger time.Duration
	// MaxLength is the approximate trim hint sent with every append. Zero
	// sends none.
	MaxLength int64
	// RetryAttempts is how many times a batch that failed because the log
	// was unavailable is retried. Default 0, failures are reported at once.
	RetryAttempts int
	RetryBackoff  time.Duration // default 50ms, doubled per attempt
	// OnFlushError receives batches that failed outside of an explicit
	// Flush. It runs on the flusher goroutine.
	OnFlushError func(err *FlushError)
}

func (c *Config) def() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.MaxLinger <= 0 {
		c.MaxLinger = 5 * time.Millisecond
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
}

// BatchError is one batch that could not be appended.
type BatchError struct {
	Stream   string
	Messages []transport.Fields
	Err      error
}

// FlushError lists the batches that failed. errors.Is matches ErrFlush and
// the underlying append errors.
type FlushError struct {
	Batches []BatchError
}

func (e *FlushError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrFlush.Error())
	for i, b := range e.Batches {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s (%d messages): %v", b.Stream, len(b.Messages), b.Err)
	}
	return sb.String()
}

func (e *FlushError) Is(target error) bool {
	return target == ErrFlush
}

func (e *FlushError) Unwrap() []error {
	errs := make([]error, len(e.Batches))
	for i, b := range e.Batches {
		errs[i] = b.Err
	}
	return errs
}

// Messages counts the failed messages.
func (e *FlushError) Messages() int {
	var n int
	for _, b := range e.Batches {
		n += len(b.Messages)
	}
	return n
}

type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Appends  uint64 `json:"appends"`
	Appended uint64 `json:"appended"`
	Failed   uint64 `json:"failed"`
	Retries  uint64 `json:"retries"`
	Buffered int    `json:"buffered"`
	Queued   int    `json:"queued"`
}

type buffer struct {
	stream string
	msgs   []transport.Fields
	timer  *time.Timer
	gen    uint64
}

// job is either a cut batch or, when msgs is nil, a barrier closing wait.
type job struct {
	stream string
	msgs   []transport.Fields
	wait   *waiter
}

type waiter struct {
	done   chan struct{}
	failed []BatchError
}

// Batcher accumulates messages per stream. Size or linger cuts a stream's
// buffer into a batch; a single flusher goroutine appends batches strictly
// in the order they were cut, so a stream's messages reach the log in
// enqueue order.
type Batcher struct {
	app  Appender
	conf Config
	log  *logger.Logger

	mu      sync.Mutex
	buffers map[string]*buffer
	queue   []job
	closed  bool // no more Enqueue
	stopped bool // flusher told to exit
	stats   Stats

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}
}

// NewBatcher starts the flusher goroutine. Close stops it.
func NewBatcher(app Appender, conf Config, log *logger.Logger) *Batcher {
	conf.def()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Batcher{
		app:     app,
		conf:    conf,
		log:     logger.OrNop(log),
		buffers: make(map[string]*buffer),
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		exited:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Enqueue buffers fields for stream. It never performs I/O.
func (b *Batcher) Enqueue(stream string, fields transport.Fields) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	buf := b.buffers[stream]
	if buf == nil {
		buf = &buffer{stream: stream}
		b.buffers[stream] = buf
	}
	buf.msgs = append(buf.msgs, fields)
	b.stats.Enqueued++
	switch {
	case len(buf.msgs) >= b.conf.MaxBatchSize:
		b.cutLocked(buf, nil)
	case len(buf.msgs) == 1:
		gen := buf.gen
		buf.timer = time.AfterFunc(b.conf.MaxLinger, func() {
			b.lingerExpired(buf, gen)
		})
	}
	return nil
}

func (b *Batcher) lingerExpired(buf *buffer, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf.gen == gen && len(buf.msgs) > 0 {
		b.cutLocked(buf, nil)
	}
}

// cutLocked moves the buffer's messages into the flush queue.
func (b *Batcher) cutLocked(buf *buffer, w *waiter) {
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	buf.gen++
	b.queue = append(b.queue, job{stream: buf.stream, msgs: buf.msgs, wait: w})
	buf.msgs = nil
	b.notify()
}

func (b *Batcher) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Flush cuts every buffer and waits until everything enqueued before the
// call has been appended or has failed. Failures of batches cut by this call
// are returned as a *FlushError.
func (b *Batcher) Flush(ctx context.Context) error {
	w := &waiter{done: make(chan struct{})}
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrClosed
	}
	streams := make([]string, 0, len(b.buffers))
	for stream, buf := range b.buffers {
		if len(buf.msgs) > 0 {
			streams = append(streams, stream)
		}
	}
	sort.Strings(streams)
	for _, stream := range streams {
		b.cutLocked(b.buffers[stream], w)
	}
	b.queue = append(b.queue, job{wait: w})
	b.notify()
	b.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if len(w.failed) > 0 {
		return &FlushError{Batches: w.failed}
	}
	return nil
}

// Close rejects further messages, flushes what is buffered and stops the
// flusher. If ctx expires first, in-flight appends are cancelled.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.exited
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.Flush(ctx)
	if err != nil && ctx.Err() != nil {
		b.cancel()
	}
	b.mu.Lock()
	b.stopped = true
	b.queue = append(b.queue, job{})
	b.notify()
	b.mu.Unlock()
	<-b.exited
	b.cancel()
	return err
}

func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	for _, buf := range b.buffers {
		s.Buffered += len(buf.msgs)
	}
	for _, j := range b.queue {
		s.Queued += len(j.msgs)
	}
	return s
}

func (b *Batcher) run() {
	defer close(b.exited)
	for range b.signal {
		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			j := b.queue[0]
			b.queue[0] = job{}
			b.queue = b.queue[1:]
			b.mu.Unlock()

			switch {
			case j.msgs != nil:
				b.flush(j)
			case j.wait != nil:
				close(j.wait.done)
			default:
				return
			}
		}
	}
}

func (b *Batcher) flush(j job) {
	var err error
	for attempt := 0; ; attempt++ {
		_, err = b.app.Append(b.ctx, j.stream, b.conf.MaxLength, j.msgs)
		b.mu.Lock()
		b.stats.Appends++
		if err == nil {
			b.stats.Appended += uint64(len(j.msgs))
		}
		b.mu.Unlock()
		if err == nil || attempt >= b.conf.RetryAttempts || !transport.IsUnavailable(err) {
			break
		}
		b.mu.Lock()
		b.stats.Retries++
		b.mu.Unlock()
		select {
		case <-time.After(b.conf.RetryBackoff << attempt):
		case <-b.ctx.Done():
		}
		if b.ctx.Err() != nil {
			break
		}
	}
	if err == nil {
		return
	}
	b.mu.Lock()
	b.stats.Failed += uint64(len(j.msgs))
	b.mu.Unlock()
	failed := BatchError{Stream: j.stream, Messages: j.msgs, Err: err}
	if j.wait != nil {
		j.wait.failed = append(j.wait.failed, failed)
		return
	}
	b.log.Error(err, "append of %d messages to %s failed", len(j.msgs), j.stream)
	if b.conf.OnFlushError != nil {
		b.conf.OnFlushError(&FlushError{Batches: []BatchError{failed}})
	}
}
