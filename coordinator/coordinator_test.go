package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moontrade/backbone/consumer"
	"github.com/moontrade/backbone/message"
	"github.com/moontrade/backbone/producer"
	"github.com/moontrade/backbone/transport"
	"github.com/moontrade/backbone/transport/redistest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	prices = "md:prices"
	opps   = "md:opportunities"
)

type env struct {
	srv *redistest.Server
	tr  transport.Transport
	pub *producer.Batcher
}

func setup(t *testing.T) *env {
	t.Helper()
	srv, err := redistest.Start(redistest.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	tr := transport.NewRedis(transport.Options{Addr: srv.Addr()})
	t.Cleanup(func() { tr.Close() })
	pub := producer.NewBatcher(tr, producer.Config{MaxLinger: time.Millisecond}, nil)
	t.Cleanup(func() { pub.Close(context.Background()) })
	return &env{srv: srv, tr: tr, pub: pub}
}

func (e *env) start(t *testing.T, exec Executor, conf Config) *Coordinator {
	t.Helper()
	if conf.Streams == nil {
		conf.Streams = []string{prices, opps}
	}
	conf.Group = "backbone"
	conf.Block = 50 * time.Millisecond
	co, err := New(e.tr, e.pub, exec, conf, nil)
	require.NoError(t, err)
	require.NoError(t, co.Start(context.Background()))
	t.Cleanup(func() { co.Stop(context.Background()) })
	return co
}

func (e *env) publish(t *testing.T, stream string, msgs ...message.Message) []string {
	t.Helper()
	batch := make([]transport.Fields, len(msgs))
	for i, m := range msgs {
		fields, err := message.Encode(m, message.Options{})
		require.NoError(t, err)
		batch[i] = fields
	}
	ids, err := e.tr.Append(context.Background(), stream, 0, batch)
	require.NoError(t, err)
	return ids
}

func price(pair string) *message.PriceUpdate {
	return &message.PriceUpdate{
		Chain:     "eth",
		Dex:       "uniswap",
		Pair:      pair,
		Price:     decimal.RequireFromString("3012.55"),
		Liquidity: decimal.NewFromInt(1000000),
		Block:     19000000,
		Timestamp: time.Now().UnixMilli(),
	}
}

func opportunity(id string) *message.Opportunity {
	return &message.Opportunity{
		ID:        id,
		Chain:     "eth",
		Pair:      "weth/usdc",
		BuyDex:    "sushiswap",
		SellDex:   "uniswap",
		BuyPrice:  decimal.RequireFromString("3010.10"),
		SellPrice: decimal.RequireFromString("3019.90"),
		Amount:    decimal.NewFromInt(5),
		ProfitPct: decimal.RequireFromString("0.32"),
		Detected:  time.Now().UnixMilli(),
	}
}

type recorder struct {
	mu   sync.Mutex
	ids  []string
	fail error
}

func (r *recorder) Execute(_ context.Context, opp *message.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.ids = append(r.ids, opp.ID)
	return nil
}

func (r *recorder) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func pending(t *testing.T, tr transport.Transport, stream string) int {
	t.Helper()
	p, err := tr.Pending(context.Background(), stream, "backbone", 100)
	require.NoError(t, err)
	return len(p)
}

func TestRoutesAndExecutes(t *testing.T) {
	e := setup(t)
	rec := &recorder{}
	co := e.start(t, rec, Config{RepublishStream: "md:executed"})

	e.publish(t, prices, price("weth/usdc"), price("WBTC-usdt"))
	e.publish(t, opps, opportunity("o-1"), opportunity("o-2"))

	require.Eventually(t, func() bool {
		return co.Snapshot().Totals.Republished == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"o-1", "o-2"}, rec.executed())

	s := co.Snapshot()
	assert.Equal(t, uint64(2), s.Counts[message.TypePrice])
	assert.Equal(t, uint64(2), s.Counts[message.TypeOpportunity])
	assert.Equal(t, []string{
		"eth:sushiswap:USDC-WETH",
		"eth:uniswap:USDC-WETH",
		"eth:uniswap:USDT-WBTC",
	}, s.ActivePairs)
	assert.Equal(t, 4, s.Latency.Count)
	assert.Contains(t, s.Consumers, prices)

	require.NoError(t, e.pub.Flush(context.Background()))
	n, err := e.tr.Len(context.Background(), "md:executed")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, uint64(2), co.Snapshot().Totals.Executed)

	require.Eventually(t, func() bool {
		return pending(t, e.tr, opps) == 0 && pending(t, e.tr, prices) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestQuarantinesMalformed(t *testing.T) {
	e := setup(t)
	co := e.start(t, nil, Config{QuarantineStream: "md:quarantine"})

	_, err := e.tr.Append(context.Background(), prices, 0, []transport.Fields{
		transport.NewFields(message.FieldType, "price", message.FieldData, `{"pair":`),
		transport.NewFields(message.FieldType, "nope", message.FieldData, `{}`),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return co.Snapshot().Totals.Malformed == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.pub.Flush(context.Background()))

	n, err := e.tr.Len(context.Background(), "md:quarantine")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	r := e.srv.Monitor()
	assert.GreaterOrEqual(t, r.Count("xack"), int64(2))
	assert.Zero(t, pending(t, e.tr, prices))
	assert.Empty(t, co.Snapshot().Counts)
}

func TestExecutorFailureLeavesPending(t *testing.T) {
	e := setup(t)
	rec := &recorder{fail: errors.New("rpc down")}
	co := e.start(t, rec, Config{})

	e.publish(t, opps, opportunity("o-1"))
	require.Eventually(t, func() bool {
		return co.Snapshot().Totals.ExecFailed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pending(t, e.tr, opps))
	assert.Zero(t, co.Snapshot().Totals.Executed)
	assert.Equal(t, 0, co.seen.Len())
}

func TestExpiredOpportunitySkipped(t *testing.T) {
	e := setup(t)
	var calls atomic.Int32
	co := e.start(t, ExecutorFunc(func(context.Context, *message.Opportunity) error {
		calls.Add(1)
		return nil
	}), Config{})

	o := opportunity("stale")
	o.Detected = 1000
	o.ExpiresAt = 2000
	e.publish(t, opps, o)

	require.Eventually(t, func() bool {
		return co.Snapshot().Totals.Expired == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, calls.Load())
	require.Eventually(t, func() bool {
		return pending(t, e.tr, opps) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDuplicateAcked(t *testing.T) {
	e := setup(t)
	co, err := New(e.tr, nil, nil, Config{Streams: []string{prices}, Group: "backbone"}, nil)
	require.NoError(t, err)
	h := &handler{co: co, c: co.consumers[0], stream: prices}

	fields, err := message.Encode(price("weth/usdc"), message.Options{})
	require.NoError(t, err)
	entry := transport.Entry{ID: "1-1", Fields: fields}
	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, entry))
	require.NoError(t, h.Handle(ctx, entry))

	s := co.Snapshot()
	assert.Equal(t, uint64(1), s.Counts[message.TypePrice])
	assert.Equal(t, uint64(1), s.Totals.Duplicates)
	assert.Equal(t, int64(2), e.srv.Monitor().Count("xack"))
}

func TestSweepExpiresActivePairs(t *testing.T) {
	e := setup(t)
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	co, err := New(e.tr, nil, nil, Config{
		Streams:   []string{prices},
		Group:     "backbone",
		ActiveTTL: time.Minute,
		Now:       func() time.Time { return time.Unix(0, now.Load()) },
	}, nil)
	require.NoError(t, err)
	h := &handler{co: co, c: co.consumers[0], stream: prices}

	touch := func(id, pair string) {
		fields, err := message.Encode(price(pair), message.Options{})
		require.NoError(t, err)
		require.NoError(t, h.Handle(context.Background(), transport.Entry{ID: id, Fields: fields}))
	}
	touch("1-1", "weth/usdc")
	now.Add(int64(45 * time.Second))
	touch("2-1", "wbtc/usdt")

	assert.Zero(t, co.Sweep())
	now.Add(int64(30 * time.Second))
	assert.Equal(t, 1, co.Sweep())
	assert.Equal(t, []string{"eth:uniswap:USDT-WBTC"}, co.Snapshot().ActivePairs)
	assert.Equal(t, uint64(1), co.Snapshot().Totals.Swept)

	// seen again, the pair is active again
	touch("3-1", "weth/usdc")
	assert.Len(t, co.Snapshot().ActivePairs, 2)
	assert.Equal(t, uint64(1), co.Snapshot().Pairs.Hits)
}

func TestBackpressurePausesConsumers(t *testing.T) {
	e := setup(t)
	release := make(chan struct{})
	var executed atomic.Int32
	co := e.start(t, ExecutorFunc(func(ctx context.Context, _ *message.Opportunity) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		executed.Add(1)
		return nil
	}), Config{Streams: []string{opps}, QueueSize: 8, HighWaterMark: 2, LowWaterMark: 1})

	e.publish(t, opps, opportunity("a"), opportunity("b"), opportunity("c"), opportunity("d"))

	require.Eventually(t, func() bool {
		return co.Snapshot().Backpressure.Pauses >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, consumer.Paused, co.Consumers()[0].State())

	close(release)
	require.Eventually(t, func() bool {
		s := co.Snapshot()
		return executed.Load() == 4 && !s.Backpressure.Paused
	}, 2*time.Second, 5*time.Millisecond)
	s := co.Snapshot()
	assert.GreaterOrEqual(t, s.Backpressure.Resumes, uint64(1))
	assert.Equal(t, consumer.Running, co.Consumers()[0].State())
}

func TestStopDrainsQueue(t *testing.T) {
	e := setup(t)
	rec := &recorder{}
	co := e.start(t, rec, Config{Streams: []string{opps}})
	e.publish(t, opps, opportunity("a"), opportunity("b"))
	require.Eventually(t, func() bool {
		return len(rec.executed()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, co.Stop(context.Background()))
	require.NoError(t, co.Stop(context.Background()))
	for _, c := range co.Consumers() {
		assert.Equal(t, consumer.Stopped, c.State())
	}
}

func TestNewValidates(t *testing.T) {
	e := setup(t)
	_, err := New(e.tr, nil, nil, Config{Group: "g"}, nil)
	assert.ErrorIs(t, err, ErrNoStreams)
	_, err = New(e.tr, nil, nil, Config{Streams: []string{prices}, Group: "g", RepublishStream: "x"}, nil)
	assert.Error(t, err)
	_, err = New(e.tr, nil, nil, Config{Streams: []string{prices}}, nil)
	assert.Error(t, err)
}

func TestStopReturns(t *testing.T) {
	e := setup(t)
	co := e.start(t, &recorder{}, Config{})

	done := make(chan error, 1)
	go func() { done <- co.Stop(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRedeliveryWhileInFlight(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.tr.CreateGroup(ctx, opps, "backbone", "0"))
	e.publish(t, opps, opportunity("o-1"))
	entries, err := e.tr.ReadGroup(ctx, transport.ReadGroupArgs{
		Stream: opps, Group: "backbone", Consumer: "c1", Block: -1, Count: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]

	rec := &recorder{fail: errors.New("nonce too low")}
	co, err := New(e.tr, nil, rec, Config{Streams: []string{opps}, Group: "backbone", Consumer: "c1"}, nil)
	require.NoError(t, err)
	h := &handler{co: co, c: co.consumers[0], stream: opps}
	xacks := func() int64 { return e.srv.Monitor().Count("xack") }

	require.NoError(t, h.Handle(ctx, entry))
	require.Len(t, co.queue, 1)

	// reclaimed while still queued: neither handled nor acked
	require.NoError(t, h.Handle(ctx, entry))
	assert.Len(t, co.queue, 1)
	assert.Equal(t, uint64(1), co.Snapshot().Totals.Redelivered)
	assert.Zero(t, xacks())

	runOne := func() {
		w := <-co.queue
		co.reportDepth(-1)
		co.execute(ctx, w)
	}
	runOne()
	assert.Equal(t, uint64(1), co.Snapshot().Totals.ExecFailed)
	assert.Equal(t, 1, pending(t, e.tr, opps))
	assert.Zero(t, xacks())

	// the next delivery is handled again
	require.NoError(t, h.Handle(ctx, entry))
	require.Len(t, co.queue, 1)
	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()
	runOne()
	assert.Equal(t, []string{"o-1"}, rec.executed())
	assert.Zero(t, pending(t, e.tr, opps))

	// once completed, a late copy is only acked
	require.NoError(t, h.Handle(ctx, entry))
	assert.Empty(t, co.queue)
	assert.Equal(t, uint64(1), co.Snapshot().Totals.Duplicates)
	assert.Equal(t, int64(2), xacks())
	assert.Zero(t, co.Snapshot().Queue)
}

func TestReclaimedFailureRetried(t *testing.T) {
	e := setup(t)
	release := make(chan struct{})
	var calls atomic.Int32
	co := e.start(t, ExecutorFunc(func(ctx context.Context, _ *message.Opportunity) error {
		if calls.Add(1) == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return errors.New("rpc timeout")
		}
		return nil
	}), Config{Streams: []string{opps}, ClaimMinIdle: 100 * time.Millisecond})

	e.publish(t, opps, opportunity("o-1"))
	require.Eventually(t, func() bool {
		return co.Snapshot().Totals.Redelivered >= 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, pending(t, e.tr, opps))

	close(release)
	require.Eventually(t, func() bool {
		s := co.Snapshot().Totals
		return s.ExecFailed == 1 && s.Executed == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return pending(t, e.tr, opps) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, co.Snapshot().Totals.Duplicates)
}
