package transport

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
)

// Universal is the Transport backed by a go-redis UniversalClient. It talks
// to a single node, a sentinel group (MasterName set) or a cluster (several
// Addrs) with the same code.
//
// go-redis returns entry fields as a map, so fields arrive sorted by key
// rather than in append order.
type Universal struct {
	opts   Options
	client goredis.UniversalClient
	closed int32
}

var _ Transport = (*Universal)(nil)

// NewUniversal builds the client. Like NewRedis it does not dial eagerly.
func NewUniversal(opts Options) *Universal {
	opts.def()
	addrs := opts.Addrs
	if len(addrs) == 0 {
		addrs = []string{opts.Addr}
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:           addrs,
		MasterName:      opts.MasterName,
		Password:        opts.Auth,
		TLSConfig:       opts.TLS,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
		WriteTimeout:    opts.WriteTimeout,
		PoolSize:        opts.MaxActive,
		MaxIdleConns:    opts.MaxIdle,
		ConnMaxIdleTime: opts.IdleTimeout,
	})
	return &Universal{opts: opts, client: client}
}

// NewUniversalFromClient adopts an existing client.
func NewUniversalFromClient(client goredis.UniversalClient) *Universal {
	return &Universal{client: client}
}

// Client exposes the underlying go-redis client.
func (u *Universal) Client() goredis.UniversalClient {
	return u.client
}

func classifyGoRedis(cmd string, err error) error {
	if err == nil {
		return nil
	}
	var re goredis.Error
	if errors.As(err, &re) && !errors.Is(err, goredis.Nil) {
		return &CommandError{Cmd: cmd, Msg: re.Error()}
	}
	return unavailable(cmd, err)
}

func (u *Universal) check() error {
	if atomic.LoadInt32(&u.closed) != 0 {
		return ErrClosed
	}
	return nil
}

func toEntries(msgs []goredis.XMessage) []Entry {
	if len(msgs) == 0 {
		return nil
	}
	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		if m.Values == nil {
			entries = append(entries, Entry{ID: m.ID})
			continue
		}
		keys := make([]string, 0, len(m.Values))
		for k := range m.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(Fields, 0, len(keys)*2)
		for _, k := range keys {
			v, _ := m.Values[k].(string)
			fields = append(fields, k, v)
		}
		entries = append(entries, Entry{ID: m.ID, Fields: fields})
	}
	return entries
}

func (u *Universal) Append(ctx context.Context, stream string, maxLen int64,
	batch []Fields,
) ([]string, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	cmds, err := u.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, f := range batch {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: stream,
				MaxLen: maxLen,
				Approx: maxLen > 0,
				ID:     "*",
				Values: []string(f),
			})
		}
		return nil
	})
	if err != nil {
		return nil, classifyGoRedis("XADD", err)
	}
	ids := make([]string, 0, len(cmds))
	for _, c := range cmds {
		sc, ok := c.(*goredis.StringCmd)
		if !ok {
			return nil, unexpected("XADD", c)
		}
		ids = append(ids, sc.Val())
	}
	return ids, nil
}

func (u *Universal) ReadGroup(ctx context.Context, a ReadGroupArgs) ([]Entry, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	id := a.ID
	if id == "" {
		id = ">"
	}
	streams, err := u.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    a.Group,
		Consumer: a.Consumer,
		Streams:  []string{a.Stream, id},
		Count:    a.Count,
		Block:    a.Block,
	}).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, classifyGoRedis("XREADGROUP", err)
	}
	var entries []Entry
	for _, s := range streams {
		entries = append(entries, toEntries(s.Messages)...)
	}
	return entries, nil
}

func (u *Universal) Ack(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := u.client.XAck(ctx, stream, group, ids...).Result()
	return n, classifyGoRedis("XACK", err)
}

func (u *Universal) CreateGroup(ctx context.Context, stream, group, start string) error {
	if err := u.check(); err != nil {
		return err
	}
	if start == "" {
		start = "$"
	}
	err := u.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	return classifyGoRedis("XGROUP", err)
}

func (u *Universal) AutoClaim(ctx context.Context, a AutoClaimArgs) ([]Entry, string, error) {
	if err := u.check(); err != nil {
		return nil, "", err
	}
	start := a.Start
	if start == "" {
		start = "0-0"
	}
	msgs, next, err := u.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   a.Stream,
		Group:    a.Group,
		Consumer: a.Consumer,
		MinIdle:  a.MinIdle,
		Start:    start,
		Count:    a.Count,
	}).Result()
	if err != nil {
		return nil, "", classifyGoRedis("XAUTOCLAIM", err)
	}
	entries := toEntries(msgs)
	live := entries[:0]
	for _, e := range entries {
		if e.Fields != nil {
			live = append(live, e)
		}
	}
	return live, next, nil
}

func (u *Universal) Pending(ctx context.Context, stream, group string, count int64) ([]PendingEntry, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 100
	}
	items, err := u.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, classifyGoRedis("XPENDING", err)
	}
	out := make([]PendingEntry, 0, len(items))
	for _, p := range items {
		out = append(out, PendingEntry{
			ID:         p.ID,
			Consumer:   p.Consumer,
			Idle:       p.Idle,
			Deliveries: p.RetryCount,
		})
	}
	return out, nil
}

func (u *Universal) Len(ctx context.Context, stream string) (int64, error) {
	if err := u.check(); err != nil {
		return 0, err
	}
	n, err := u.client.XLen(ctx, stream).Result()
	return n, classifyGoRedis("XLEN", err)
}

func (u *Universal) Exists(ctx context.Context, key string) (bool, error) {
	if err := u.check(); err != nil {
		return false, err
	}
	n, err := u.client.Exists(ctx, key).Result()
	if err != nil {
		return false, classifyGoRedis("EXISTS", err)
	}
	return n > 0, nil
}

func (u *Universal) Scan(ctx context.Context, cursor uint64, match string,
	count int64,
) ([]string, uint64, error) {
	if err := u.check(); err != nil {
		return nil, 0, err
	}
	keys, next, err := u.client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return nil, 0, classifyGoRedis("SCAN", err)
	}
	return keys, next, nil
}

func (u *Universal) Close() error {
	if !atomic.CompareAndSwapInt32(&u.closed, 0, 1) {
		return nil
	}
	return u.client.Close()
}
