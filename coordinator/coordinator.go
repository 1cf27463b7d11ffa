// Package coordinator composes one consumer per stream into the aggregation
// layer: it decodes entries, keeps rolling state (active pairs, latency,
// counters) and feeds opportunities to an executor under backpressure.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/moontrade/backbone/backpressure"
	"github.com/moontrade/backbone/consumer"
	"github.com/moontrade/backbone/latency"
	"github.com/moontrade/backbone/logger"
	"github.com/moontrade/backbone/message"
	"github.com/moontrade/backbone/pairs"
	"github.com/moontrade/backbone/producer"
	"github.com/moontrade/backbone/transport"
)

var ErrNoStreams = errors.New("no streams configured")

// Executor acts on opportunities. It is outside of the backbone.
type Executor interface {
	Execute(ctx context.Context, opp *message.Opportunity) error
}

type ExecutorFunc func(ctx context.Context, opp *message.Opportunity) error

func (f ExecutorFunc) Execute(ctx context.Context, opp *message.Opportunity) error {
	return f(ctx, opp)
}

// Publisher is the part of producer.Batcher the coordinator republishes
// through.
type Publisher interface {
	Enqueue(stream string, fields transport.Fields) error
	Stats() producer.Stats
}

type Config struct {
	Streams  []string
	Group    string
	Consumer string // default per consumer.Config

	Block         time.Duration
	Count         int64
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration

	ActiveTTL     time.Duration // default 5m
	SweepInterval time.Duration // default 30s
	DedupeSize    int           // default 10000

	// QueueSize bounds the opportunity work queue. Default 1024.
	QueueSize int
	// Water marks of the queue depth. Defaults 3/4 and 1/4 of QueueSize.
	HighWaterMark int
	LowWaterMark  int

	LatencyCapacity int // default 1024
	PairsCapacity   int // default 4096

	// RepublishStream receives executed opportunities when set.
	RepublishStream string
	// QuarantineStream receives entries that failed to decode when set.
	QuarantineStream string
	Encode           message.Options

	// Now is the clock, for tests.
	Now func() time.Time
}

func (c *Config) def() {
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = 10000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = c.QueueSize * 3 / 4
		if c.HighWaterMark < 1 {
			c.HighWaterMark = 1
		}
	}
	if c.LowWaterMark <= 0 || c.LowWaterMark >= c.HighWaterMark {
		c.LowWaterMark = c.HighWaterMark / 3
	}
	if c.LatencyCapacity <= 0 {
		c.LatencyCapacity = 1024
	}
	if c.PairsCapacity <= 0 {
		c.PairsCapacity = 4096
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type work struct {
	c   *consumer.Consumer
	id  string
	opp *message.Opportunity
}

// Coordinator is safe for concurrent use. Its consumers run concurrently,
// so the shared rolling state is guarded by mu.
type Coordinator struct {
	tr   transport.Transport
	pub  Publisher
	exec Executor
	conf Config
	log  *logger.Logger

	consumers []*consumer.Consumer
	bp        *backpressure.Controller
	queue     chan work
	latency   *latency.SyncRing

	// depth is the queue depth as reported to bp. Sends count before they
	// happen so a report can never trail the drain.
	depthMu sync.Mutex
	depth   int

	mu sync.Mutex
	// seen holds completed entries, inflight the ones being handled or
	// waiting for the executor. An entry is in at most one of them.
	seen     *lru.Cache
	inflight map[string]struct{}
	pairs    *pairs.Cache
	active   *ActivePairs
	counts   map[message.Type]uint64
	totals   Totals
	started  bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopSweep chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

// Totals are counters outside the per-type breakdown.
type Totals struct {
	Duplicates uint64 `json:"duplicates"`
	// Redelivered counts deliveries of entries still in flight. They are
	// left pending for the first delivery to settle.
	Redelivered uint64 `json:"redelivered"`
	Malformed   uint64 `json:"malformed"`
	Executed    uint64 `json:"executed"`
	ExecFailed  uint64 `json:"exec_failed"`
	Expired     uint64 `json:"expired"`
	Republished uint64 `json:"republished"`
	Swept       uint64 `json:"swept"`
}

// New builds a consumer per stream. pub may be nil when neither
// republishing nor quarantine is configured.
func New(tr transport.Transport, pub Publisher, exec Executor, conf Config, log *logger.Logger) (*Coordinator, error) {
	if len(conf.Streams) == 0 {
		return nil, ErrNoStreams
	}
	if pub == nil && (conf.RepublishStream != "" || conf.QuarantineStream != "") {
		return nil, errors.New("republish and quarantine streams need a publisher")
	}
	conf.def()
	seen, err := lru.New(conf.DedupeSize)
	if err != nil {
		return nil, err
	}
	co := &Coordinator{
		tr:        tr,
		pub:       pub,
		exec:      exec,
		conf:      conf,
		log:       logger.OrNop(log).With("component", "coordinator"),
		queue:     make(chan work, conf.QueueSize),
		seen:      seen,
		inflight:  make(map[string]struct{}),
		stopSweep: make(chan struct{}),
		latency:   latency.NewSyncRing(conf.LatencyCapacity),
		pairs:     pairs.NewCache(conf.PairsCapacity),
		active:    NewActivePairs(conf.ActiveTTL),
		counts:    make(map[message.Type]uint64),
	}
	for _, stream := range conf.Streams {
		h := &handler{co: co, stream: stream}
		c, err := consumer.New(tr, consumer.Config{
			Stream:        stream,
			Group:         conf.Group,
			Consumer:      conf.Consumer,
			Block:         conf.Block,
			Count:         conf.Count,
			ClaimMinIdle:  conf.ClaimMinIdle,
			ClaimInterval: conf.ClaimInterval,
			OnError:       co.onError,
		}, h, log)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", stream, err)
		}
		h.c = c
		co.consumers = append(co.consumers, c)
	}
	co.bp, err = backpressure.New(pauser(co.consumers), conf.HighWaterMark, conf.LowWaterMark)
	if err != nil {
		return nil, err
	}
	co.bp.WithLogger(co.log)
	return co, nil
}

// pauser pauses every consumer together.
type pauser []*consumer.Consumer

func (p pauser) Pause() {
	for _, c := range p {
		c.Pause()
	}
}

func (p pauser) Resume() {
	for _, c := range p {
		c.Resume()
	}
}

// Start starts the executor worker, the sweeper and every consumer.
func (co *Coordinator) Start(ctx context.Context) error {
	co.mu.Lock()
	if co.started {
		co.mu.Unlock()
		return errors.New("coordinator already started")
	}
	co.started = true
	co.mu.Unlock()

	ctx, co.cancel = context.WithCancel(ctx)
	co.log.Info("coordinating %d streams as group %s", len(co.consumers), co.conf.Group)
	co.wg.Add(2)
	go co.runWorker(ctx)
	go co.runSweeper(ctx)
	for _, c := range co.consumers {
		if err := c.Start(ctx); err != nil {
			co.Stop(context.Background())
			return fmt.Errorf("start %s: %w", c.Stream(), err)
		}
	}
	return nil
}

// Stop stops the consumers, lets the worker drain the queue and waits for
// it until ctx expires. Later calls return the first result.
func (co *Coordinator) Stop(ctx context.Context) error {
	co.stopOnce.Do(func() { co.stopErr = co.stop(ctx) })
	return co.stopErr
}

func (co *Coordinator) stop(ctx context.Context) error {
	for _, c := range co.consumers {
		c.Stop()
	}
	var errs []error
	for _, c := range co.consumers {
		if err := c.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Stream(), err))
		}
	}
	close(co.stopSweep)
	close(co.queue)
	done := make(chan struct{})
	go func() {
		co.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if co.cancel != nil {
			co.cancel()
		}
		<-done
		errs = append(errs, ctx.Err())
	}
	if co.cancel != nil {
		co.cancel()
	}
	co.log.Info("coordinator stopped")
	return errors.Join(errs...)
}

// Consumers are the per-stream consumers in configuration order.
func (co *Coordinator) Consumers() []*consumer.Consumer {
	return co.consumers
}

// Wait returns when any consumer has stopped, with its error.
func (co *Coordinator) Wait(ctx context.Context) error {
	cases := make(chan error, len(co.consumers))
	for _, c := range co.consumers {
		c := c
		go func() {
			select {
			case <-c.Done():
				cases <- c.Wait()
			case <-ctx.Done():
			}
		}()
	}
	select {
	case err := <-cases:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (co *Coordinator) onError(err error) {
	var herr *consumer.HandlerError
	if errors.As(err, &herr) {
		return
	}
	co.log.Error(err, "consumer failed")
}

func (co *Coordinator) runSweeper(ctx context.Context) {
	defer co.wg.Done()
	t := time.NewTicker(co.conf.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-co.stopSweep:
			return
		case <-t.C:
			co.Sweep()
		}
	}
}

// Sweep evicts expired active pairs now.
func (co *Coordinator) Sweep() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	n := co.active.Sweep(co.conf.Now())
	co.totals.Swept += uint64(n)
	return n
}

func (co *Coordinator) runWorker(ctx context.Context) {
	defer co.wg.Done()
	for w := range co.queue {
		co.reportDepth(-1)
		co.execute(ctx, w)
	}
}

// reportDepth applies delta and reports the result, both under depthMu, so
// the controller sees depths in the order they happened.
func (co *Coordinator) reportDepth(delta int) {
	co.depthMu.Lock()
	co.depth += delta
	co.bp.Report(co.depth)
	co.depthMu.Unlock()
}

func (co *Coordinator) queueDepth() int {
	co.depthMu.Lock()
	defer co.depthMu.Unlock()
	return co.depth
}

// begin claims key for handling. It reports whether the entry is new, and
// for a completed one that it only needs an ack.
func (co *Coordinator) begin(key string) (fresh, completed bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if _, ok := co.inflight[key]; ok {
		co.totals.Redelivered++
		return false, false
	}
	if co.seen.Contains(key) {
		co.totals.Duplicates++
		return false, true
	}
	co.inflight[key] = struct{}{}
	return true, false
}

// finish releases key. A handled entry is remembered as completed; one that
// is left pending is forgotten so that its redelivery is handled again.
func (co *Coordinator) finish(key string, handled bool) {
	co.mu.Lock()
	if handled {
		co.seen.Add(key, nil)
	}
	delete(co.inflight, key)
	co.mu.Unlock()
}

func (co *Coordinator) execute(ctx context.Context, w work) {
	key := w.c.Stream() + "/" + w.id
	if w.opp.Expired(co.conf.Now().UnixMilli()) {
		co.count(func(t *Totals) { t.Expired++ })
		co.finish(key, true)
		co.ack(ctx, w.c, w.id)
		return
	}
	if co.exec != nil {
		if err := co.exec.Execute(ctx, w.opp); err != nil {
			co.finish(key, false)
			co.count(func(t *Totals) { t.ExecFailed++ })
			co.log.WarnErr(err, "execute %s: left pending", w.opp.ID)
			return
		}
	}
	co.count(func(t *Totals) { t.Executed++ })
	if co.conf.RepublishStream != "" {
		fields, err := message.Encode(w.opp, co.conf.Encode)
		if err == nil {
			err = co.pub.Enqueue(co.conf.RepublishStream, fields)
		}
		if err != nil {
			co.log.Error(err, "republish %s", w.opp.ID)
		} else {
			co.count(func(t *Totals) { t.Republished++ })
		}
	}
	co.finish(key, true)
	co.ack(ctx, w.c, w.id)
}

func (co *Coordinator) ack(ctx context.Context, c *consumer.Consumer, id string) {
	if err := c.Ack(ctx, id); err != nil {
		co.log.Error(err, "ack %s", id)
	}
}

func (co *Coordinator) count(fn func(t *Totals)) {
	co.mu.Lock()
	fn(&co.totals)
	co.mu.Unlock()
}

type handler struct {
	co     *Coordinator
	c      *consumer.Consumer
	stream string
}

// Handle runs for every delivered entry. Entries other than opportunities
// are acknowledged here; opportunities once executed. A redelivery of an
// entry still in flight is neither handled nor acknowledged.
func (h *handler) Handle(ctx context.Context, e transport.Entry) error {
	co := h.co
	key := h.stream + "/" + e.ID
	fresh, completed := co.begin(key)
	if completed {
		return h.c.Ack(ctx, e.ID)
	}
	if !fresh {
		return nil
	}
	env, err := message.Decode(e.Fields)
	if err != nil {
		if err := co.quarantine(h.stream, e, err); err != nil {
			co.finish(key, false)
			return err
		}
		co.finish(key, true)
		return h.c.Ack(ctx, e.ID)
	}
	now := co.conf.Now()
	if !env.Produced.IsZero() {
		co.latency.Record(float64(now.Sub(env.Produced).Microseconds()) / 1000)
	}
	raw, hasPair := message.PairOf(env.Body)
	co.mu.Lock()
	co.counts[env.Type]++
	if hasPair {
		co.active.Touch(co.pairs.Normalize(raw, pairs.Canonical), now)
	}
	co.mu.Unlock()

	if opp, ok := env.Message.(*message.Opportunity); ok {
		co.reportDepth(1)
		select {
		case co.queue <- work{c: h.c, id: e.ID, opp: opp}:
		case <-ctx.Done():
			co.reportDepth(-1)
			co.finish(key, false)
			return ctx.Err()
		}
		return nil
	}
	co.finish(key, true)
	return h.c.Ack(ctx, e.ID)
}

func (co *Coordinator) quarantine(stream string, e transport.Entry, cause error) error {
	co.count(func(t *Totals) { t.Malformed++ })
	co.log.WarnErr(cause, "malformed entry %s on %s", e.ID, stream)
	if co.conf.QuarantineStream == "" {
		return nil
	}
	fields := e.Fields.Clone().
		Set("source_stream", stream).
		Set("source_id", e.ID).
		Set("error", cause.Error())
	return co.pub.Enqueue(co.conf.QuarantineStream, fields)
}

// Snapshot is a point in time view of the rolling state.
type Snapshot struct {
	Counts       map[message.Type]uint64   `json:"counts"`
	Totals       Totals                    `json:"totals"`
	ActivePairs  []string                  `json:"active_pairs"`
	Latency      latency.Summary           `json:"latency_ms"`
	Pairs        pairs.Stats               `json:"pair_cache"`
	Queue        int                       `json:"queue"`
	Backpressure backpressure.Stats        `json:"backpressure"`
	Consumers    map[string]consumer.Stats `json:"consumers"`
	Publisher    *producer.Stats           `json:"publisher,omitempty"`
}

func (co *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		Counts:       make(map[message.Type]uint64),
		Latency:      co.latency.Summarize(),
		Queue:        co.queueDepth(),
		Backpressure: co.bp.Stats(),
		Consumers:    make(map[string]consumer.Stats, len(co.consumers)),
	}
	co.mu.Lock()
	for t, n := range co.counts {
		s.Counts[t] = n
	}
	s.Totals = co.totals
	s.ActivePairs = co.active.Keys()
	s.Pairs = co.pairs.Stats()
	co.mu.Unlock()
	for _, c := range co.consumers {
		s.Consumers[c.Stream()] = c.Stats()
	}
	if co.pub != nil {
		ps := co.pub.Stats()
		s.Publisher = &ps
	}
	return s
}
