// Package consumer runs a consumer-group read loop against one stream and
// dispatches entries to a handler, one at a time, in delivery order.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/moontrade/backbone/logger"
	"github.com/moontrade/backbone/transport"
)

var (
	ErrNotIdle  = errors.New("consumer already started")
	ErrNoStream = errors.New("stream and group are required")
)

// State of a Consumer. Idle -> Running <-> Paused -> Stopped.
type State int32

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handler processes one entry. A nil error means success. Entries are
// redelivered after a failure, so handlers must be idempotent.
type Handler interface {
	Handle(ctx context.Context, e transport.Entry) error
}

type HandlerFunc func(ctx context.Context, e transport.Entry) error

func (f HandlerFunc) Handle(ctx context.Context, e transport.Entry) error {
	return f(ctx, e)
}

// HandlerError is reported to Config.OnError when a handler fails. The entry
// stays pending.
type HandlerError struct {
	Stream string
	ID     string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed for %s %s: %v", e.Stream, e.ID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type Config struct {
	Stream string
	Group  string
	// Consumer is this identity within the group. Restarting with the same
	// name recovers its pending entries. Default "consumer-<uuid>".
	Consumer string
	// Block bounds each blocking read. Default 1s.
	Block time.Duration
	// Count bounds the entries per read. Default 10.
	Count int64
	// AutoAck acknowledges every entry its handler succeeded on. Otherwise
	// the handler acknowledges with Ack.
	AutoAck bool
	// StartID positions a group created by Start. Default "$".
	StartID string
	// SkipRecovery skips re-reading this consumer's pending entries when the
	// loop starts.
	SkipRecovery bool
	// ClaimMinIdle enables reclaim: entries pending longer than this, for
	// any consumer, are claimed and handled again. Zero disables it.
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration // default ClaimMinIdle
	ClaimCount    int64         // default 100
	// OnError receives handler failures as *HandlerError and the transport
	// error that stopped the loop.
	OnError func(err error)
}

func (c *Config) def() {
	if c.Consumer == "" {
		c.Consumer = "consumer-" + uuid.NewString()
	}
	if c.Block <= 0 {
		c.Block = time.Second
	}
	if c.Count <= 0 {
		c.Count = 10
	}
	if c.StartID == "" {
		c.StartID = "$"
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = c.ClaimMinIdle
	}
	if c.ClaimCount <= 0 {
		c.ClaimCount = 100
	}
}

type Stats struct {
	Reads      uint64 `json:"reads"`
	EmptyReads uint64 `json:"empty_reads"`
	Delivered  uint64 `json:"delivered"`
	Handled    uint64 `json:"handled"`
	Failed     uint64 `json:"failed"`
	Acked      uint64 `json:"acked"`
	Recovered  uint64 `json:"recovered"`
	Claimed    uint64 `json:"claimed"`
}

// Consumer owns one read loop. Pause and Stop are cooperative: a blocking
// read already issued completes or times out before they take effect.
type Consumer struct {
	tr      transport.Transport
	conf    Config
	handler Handler
	log     *logger.Logger

	state    atomic.Int32
	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	reads, emptyReads, delivered, handled atomic.Uint64
	failed, acked, recovered, claimed     atomic.Uint64
}

// New validates conf and returns an Idle consumer.
func New(tr transport.Transport, conf Config, h Handler, log *logger.Logger) (*Consumer, error) {
	if conf.Stream == "" || conf.Group == "" {
		return nil, ErrNoStream
	}
	conf.def()
	c := &Consumer{
		tr:      tr,
		conf:    conf,
		handler: h,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.log = logger.OrNop(log).With("stream", conf.Stream, "consumer", conf.Consumer)
	return c, nil
}

// Name is the consumer identity within its group.
func (c *Consumer) Name() string   { return c.conf.Consumer }
func (c *Consumer) Stream() string { return c.conf.Stream }

func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Start creates the group when it does not exist and starts the loop. It
// fails if the consumer is not Idle or the group cannot be created.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	err := c.tr.CreateGroup(ctx, c.conf.Stream, c.conf.Group, c.conf.StartID)
	if err != nil && !errors.Is(err, transport.ErrGroupExists) {
		c.state.Store(int32(Stopped))
		c.err = err
		close(c.done)
		return err
	}
	go c.run(ctx)
	return nil
}

// Pause stops issuing reads. It is a no-op unless Running.
func (c *Consumer) Pause() {
	if c.state.CompareAndSwap(int32(Running), int32(Paused)) {
		c.log.Debug("paused")
	}
}

// Resume is a no-op unless Paused.
func (c *Consumer) Resume() {
	if c.state.CompareAndSwap(int32(Paused), int32(Running)) {
		c.log.Debug("resumed")
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Stop is terminal. The loop exits after the in-flight read and the entry
// being handled, if any.
func (c *Consumer) Stop() {
	prev := State(c.state.Swap(int32(Stopped)))
	c.stopOnce.Do(func() { close(c.stopCh) })
	if prev == Idle {
		close(c.done)
	}
}

// Wait blocks until the loop exits and returns the transport error that
// stopped it, if any.
func (c *Consumer) Wait() error {
	<-c.done
	return c.err
}

// Done is closed when the loop has exited.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Ack acknowledges ids for deferred-ack handlers.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	n, err := c.tr.Ack(ctx, c.conf.Stream, c.conf.Group, ids...)
	c.acked.Add(uint64(n))
	return err
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Reads:      c.reads.Load(),
		EmptyReads: c.emptyReads.Load(),
		Delivered:  c.delivered.Load(),
		Handled:    c.handled.Load(),
		Failed:     c.failed.Load(),
		Acked:      c.acked.Load(),
		Recovered:  c.recovered.Load(),
		Claimed:    c.claimed.Load(),
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	c.log.Info("consuming %s as %s/%s", c.conf.Stream, c.conf.Group, c.conf.Consumer)
	err := c.loop(ctx)
	c.state.Store(int32(Stopped))
	if err != nil {
		c.err = err
		c.log.Error(err, "consumer stopped")
		if c.conf.OnError != nil {
			c.conf.OnError(err)
		}
		return
	}
	c.log.Info("consumer stopped")
}

func (c *Consumer) loop(ctx context.Context) error {
	if !c.conf.SkipRecovery {
		if err := c.recoverPending(ctx); err != nil {
			return c.fatal(ctx, err)
		}
	}
	var nextClaim time.Time
	if c.conf.ClaimMinIdle > 0 {
		nextClaim = time.Now()
	}
	for {
		switch c.State() {
		case Stopped:
			return nil
		case Paused:
			select {
			case <-c.wake:
			case <-c.stopCh:
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !nextClaim.IsZero() && !time.Now().Before(nextClaim) {
			if err := c.reclaim(ctx); err != nil {
				return c.fatal(ctx, err)
			}
			nextClaim = time.Now().Add(c.conf.ClaimInterval)
		}
		block := c.conf.Block
		if !nextClaim.IsZero() {
			if until := time.Until(nextClaim); until < block {
				block = until
			}
			if block < time.Millisecond {
				block = time.Millisecond
			}
		}
		entries, err := c.tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream:   c.conf.Stream,
			Group:    c.conf.Group,
			Consumer: c.conf.Consumer,
			Block:    block,
			Count:    c.conf.Count,
		})
		if err != nil {
			return c.fatal(ctx, err)
		}
		c.reads.Add(1)
		if len(entries) == 0 {
			c.emptyReads.Add(1)
			continue
		}
		c.delivered.Add(uint64(len(entries)))
		if err := c.dispatch(ctx, entries); err != nil {
			return c.fatal(ctx, err)
		}
	}
}

// fatal drops errors caused by the loop's own cancellation.
func (c *Consumer) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// recoverPending re-reads this consumer's own pending history, which is
// what a restarted identity left unacknowledged.
func (c *Consumer) recoverPending(ctx context.Context) error {
	cursor := "0"
	for c.State() != Stopped {
		entries, err := c.tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream:   c.conf.Stream,
			Group:    c.conf.Group,
			Consumer: c.conf.Consumer,
			Block:    -1,
			Count:    c.conf.Count,
			ID:       cursor,
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		c.recovered.Add(uint64(len(entries)))
		var live []transport.Entry
		var gone []string
		for _, e := range entries {
			if e.Fields == nil {
				// trimmed from the stream while pending
				gone = append(gone, e.ID)
			} else {
				live = append(live, e)
			}
		}
		if len(gone) > 0 {
			if err := c.Ack(ctx, gone...); err != nil {
				return err
			}
		}
		if err := c.dispatch(ctx, live); err != nil {
			return err
		}
		cursor = entries[len(entries)-1].ID
	}
	return nil
}

// reclaim runs one XAUTOCLAIM pass over the group's pending list.
func (c *Consumer) reclaim(ctx context.Context) error {
	start := "0-0"
	for c.State() != Stopped {
		entries, next, err := c.tr.AutoClaim(ctx, transport.AutoClaimArgs{
			Stream:   c.conf.Stream,
			Group:    c.conf.Group,
			Consumer: c.conf.Consumer,
			MinIdle:  c.conf.ClaimMinIdle,
			Start:    start,
			Count:    c.conf.ClaimCount,
		})
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			c.claimed.Add(uint64(len(entries)))
			c.log.Debug("claimed %d idle entries", len(entries))
			if err := c.dispatch(ctx, entries); err != nil {
				return err
			}
		}
		if next == "" || next == "0-0" {
			return nil
		}
		start = next
	}
	return nil
}

// dispatch hands entries to the handler sequentially. The returned error
// is a transport failure while acknowledging; handler failures are only
// reported.
func (c *Consumer) dispatch(ctx context.Context, entries []transport.Entry) error {
	for _, e := range entries {
		if c.State() == Stopped {
			// the rest stays pending for recovery
			return nil
		}
		if err := c.handle(ctx, e); err != nil {
			c.failed.Add(1)
			herr := &HandlerError{Stream: c.conf.Stream, ID: e.ID, Err: err}
			c.log.WarnErr(herr)
			if c.conf.OnError != nil {
				c.conf.OnError(herr)
			}
			continue
		}
		c.handled.Add(1)
		if c.conf.AutoAck {
			if err := c.Ack(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, e transport.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.handler.Handle(ctx, e)
}
