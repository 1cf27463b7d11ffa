package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Options configure the Redis clients.
type Options struct {
	Addr string
	// Addrs is used by the Universal client for cluster and sentinel
	// deployments. When empty, Addr is used.
	Addrs      []string
	MasterName string
	Auth       string
	TLS        *tls.Config

	DialTimeout  time.Duration // default 5s
	ReadTimeout  time.Duration // default 3s, blocking reads add their block time
	WriteTimeout time.Duration // default 3s
	MaxIdle      int           // default 8
	MaxActive    int           // default 0, unlimited
	IdleTimeout  time.Duration // default 5m
}

func (opts *Options) def() {
	if opts.Addr == "" && len(opts.Addrs) == 0 {
		opts.Addr = "127.0.0.1:6379"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.MaxIdle == 0 {
		opts.MaxIdle = 8
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
}

// Dial connects to a Redis compatible server using the provided TLS config
// and auth token. The TLS/Auth must be correct in order to establish a
// connection.
func Dial(addr, auth string, tlscfg *tls.Config, options ...redis.DialOption) (redis.Conn, error) {
	if tlscfg != nil {
		options = append(options,
			redis.DialUseTLS(true), redis.DialTLSConfig(tlscfg))
	}
	conn, err := redis.Dial("tcp", addr, options...)
	if err != nil {
		return nil, err
	}
	if auth != "" {
		res, err := redis.String(conn.Do("auth", auth))
		if err != nil {
			conn.Close()
			return nil, err
		}
		if res != "OK" {
			conn.Close()
			return nil, fmt.Errorf("'OK', got '%s'", res)
		}
	}
	return conn, nil
}

// Redis is the Transport backed by a redigo connection pool.
type Redis struct {
	opts   Options
	pool   *redis.Pool
	closed int32
}

var _ Transport = (*Redis)(nil)

// NewRedis builds a pooled client. Connections are dialed lazily, so a down
// server surfaces as ErrUnavailable on first use rather than here.
func NewRedis(opts Options) *Redis {
	opts.def()
	r := &Redis{opts: opts}
	r.pool = &redis.Pool{
		MaxIdle:     opts.MaxIdle,
		MaxActive:   opts.MaxActive,
		IdleTimeout: opts.IdleTimeout,
		Wait:        opts.MaxActive > 0,
		Dial: func() (redis.Conn, error) {
			return Dial(opts.Addr, opts.Auth, opts.TLS,
				redis.DialConnectTimeout(opts.DialTimeout),
				redis.DialReadTimeout(opts.ReadTimeout),
				redis.DialWriteTimeout(opts.WriteTimeout))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return r
}

// Pool exposes the underlying pool, e.g. for pool statistics.
func (r *Redis) Pool() *redis.Pool {
	return r.pool
}

func (r *Redis) conn(ctx context.Context, cmd string) (redis.Conn, error) {
	if atomic.LoadInt32(&r.closed) != 0 {
		return nil, ErrClosed
	}
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable(cmd, err)
	}
	return conn, nil
}

func (r *Redis) do(ctx context.Context, timeout time.Duration, cmd string,
	args ...interface{},
) (interface{}, error) {
	conn, err := r.conn(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	reply, err := redis.DoWithTimeout(conn, timeout, cmd, args...)
	return reply, classify(cmd, err)
}

func classify(cmd string, err error) error {
	if err == nil {
		return nil
	}
	var re redis.Error
	if errors.As(err, &re) {
		return &CommandError{Cmd: cmd, Msg: string(re)}
	}
	return unavailable(cmd, err)
}

func appendXAdd(args []interface{}, stream string, maxLen int64, f Fields) []interface{} {
	args = append(args, stream)
	if maxLen > 0 {
		args = append(args, "MAXLEN", "~", maxLen)
	}
	args = append(args, "*")
	for _, s := range f {
		args = append(args, s)
	}
	return args
}

// Append sends the batch as XADD commands inside MULTI/EXEC so the entries
// land contiguously and in order.
func (r *Redis) Append(ctx context.Context, stream string, maxLen int64,
	batch []Fields,
) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	conn, err := r.conn(ctx, "XADD")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return nil, classify("MULTI", err)
	}
	var args []interface{}
	for _, f := range batch {
		args = appendXAdd(args[:0], stream, maxLen, f)
		if err := conn.Send("XADD", args...); err != nil {
			return nil, classify("XADD", err)
		}
	}
	replies, err := redis.Values(redis.DoWithTimeout(conn, r.opts.ReadTimeout, "EXEC"))
	if err != nil {
		if err == redis.ErrNil {
			return nil, &CommandError{Cmd: "EXEC", Msg: "transaction aborted"}
		}
		return nil, classify("EXEC", err)
	}
	if len(replies) != len(batch) {
		return nil, unexpected("EXEC", replies)
	}
	ids := make([]string, len(replies))
	for i, reply := range replies {
		switch v := reply.(type) {
		case []byte:
			ids[i] = string(v)
		case redis.Error:
			return nil, &CommandError{Cmd: "XADD", Msg: string(v)}
		default:
			return nil, unexpected("XADD", v)
		}
	}
	return ids, nil
}

func (r *Redis) ReadGroup(ctx context.Context, a ReadGroupArgs) ([]Entry, error) {
	id := a.ID
	if id == "" {
		id = ">"
	}
	args := []interface{}{"GROUP", a.Group, a.Consumer}
	if a.Count > 0 {
		args = append(args, "COUNT", a.Count)
	}
	timeout := r.opts.ReadTimeout
	if a.Block >= 0 {
		args = append(args, "BLOCK", a.Block.Milliseconds())
		if a.Block == 0 {
			timeout = 0
		} else {
			timeout += a.Block
		}
	}
	args = append(args, "STREAMS", a.Stream, id)
	reply, err := r.do(ctx, timeout, "XREADGROUP", args...)
	if err != nil || reply == nil {
		return nil, err
	}
	streams, err := redis.Values(reply, nil)
	if err != nil {
		return nil, unexpected("XREADGROUP", reply)
	}
	var entries []Entry
	for _, s := range streams {
		kv, err := redis.Values(s, nil)
		if err != nil || len(kv) != 2 {
			return nil, unexpected("XREADGROUP", s)
		}
		if entries, err = appendEntries(entries, "XREADGROUP", kv[1]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func appendEntries(dst []Entry, cmd string, reply interface{}) ([]Entry, error) {
	items, err := redis.Values(reply, nil)
	if err != nil {
		return nil, unexpected(cmd, reply)
	}
	for _, item := range items {
		parts, err := redis.Values(item, nil)
		if err != nil || len(parts) != 2 {
			return nil, unexpected(cmd, item)
		}
		id, err := redis.String(parts[0], nil)
		if err != nil {
			return nil, unexpected(cmd, parts[0])
		}
		var fields Fields
		if parts[1] != nil {
			strs, err := redis.Strings(parts[1], nil)
			if err != nil {
				return nil, unexpected(cmd, parts[1])
			}
			fields = Fields(strs)
		}
		dst = append(dst, Entry{ID: id, Fields: fields})
	}
	return dst, nil
}

func (r *Redis) Ack(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, 2+len(ids))
	args = append(args, stream, group)
	for _, id := range ids {
		args = append(args, id)
	}
	n, err := redis.Int64(r.do(ctx, r.opts.ReadTimeout, "XACK", args...))
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Redis) CreateGroup(ctx context.Context, stream, group, start string) error {
	if start == "" {
		start = "$"
	}
	_, err := r.do(ctx, r.opts.ReadTimeout, "XGROUP", "CREATE", stream, group, start, "MKSTREAM")
	return err
}

func (r *Redis) AutoClaim(ctx context.Context, a AutoClaimArgs) ([]Entry, string, error) {
	start := a.Start
	if start == "" {
		start = "0-0"
	}
	args := []interface{}{a.Stream, a.Group, a.Consumer, a.MinIdle.Milliseconds(), start}
	if a.Count > 0 {
		args = append(args, "COUNT", a.Count)
	}
	reply, err := redis.Values(r.do(ctx, r.opts.ReadTimeout, "XAUTOCLAIM", args...))
	if err != nil {
		return nil, "", err
	}
	if len(reply) < 2 {
		return nil, "", unexpected("XAUTOCLAIM", reply)
	}
	next, err := redis.String(reply[0], nil)
	if err != nil {
		return nil, "", unexpected("XAUTOCLAIM", reply[0])
	}
	entries, err := appendEntries(nil, "XAUTOCLAIM", reply[1])
	if err != nil {
		return nil, "", err
	}
	// Entries deleted while pending come back without fields; they were
	// already removed from the pending list by the server.
	live := entries[:0]
	for _, e := range entries {
		if e.Fields != nil {
			live = append(live, e)
		}
	}
	return live, next, nil
}

func (r *Redis) Pending(ctx context.Context, stream, group string, count int64) ([]PendingEntry, error) {
	if count <= 0 {
		count = 100
	}
	items, err := redis.Values(r.do(ctx, r.opts.ReadTimeout, "XPENDING", stream, group, "-", "+", count))
	if err != nil {
		return nil, err
	}
	out := make([]PendingEntry, 0, len(items))
	for _, item := range items {
		parts, err := redis.Values(item, nil)
		if err != nil || len(parts) != 4 {
			return nil, unexpected("XPENDING", item)
		}
		var p PendingEntry
		var idle int64
		if _, err := redis.Scan(parts, &p.ID, &p.Consumer, &idle, &p.Deliveries); err != nil {
			return nil, unexpected("XPENDING", item)
		}
		p.Idle = time.Duration(idle) * time.Millisecond
		out = append(out, p)
	}
	return out, nil
}

func (r *Redis) Len(ctx context.Context, stream string) (int64, error) {
	return redis.Int64(r.do(ctx, r.opts.ReadTimeout, "XLEN", stream))
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := redis.Int64(r.do(ctx, r.opts.ReadTimeout, "EXISTS", key))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Scan(ctx context.Context, cursor uint64, match string,
	count int64,
) ([]string, uint64, error) {
	args := []interface{}{cursor}
	if match != "" {
		args = append(args, "MATCH", match)
	}
	if count > 0 {
		args = append(args, "COUNT", count)
	}
	reply, err := redis.Values(r.do(ctx, r.opts.ReadTimeout, "SCAN", args...))
	if err != nil {
		return nil, 0, err
	}
	if len(reply) != 2 {
		return nil, 0, unexpected("SCAN", reply)
	}
	cur, err := redis.String(reply[0], nil)
	if err != nil {
		return nil, 0, unexpected("SCAN", reply[0])
	}
	next, err := strconv.ParseUint(cur, 10, 64)
	if err != nil {
		return nil, 0, unexpected("SCAN", reply[0])
	}
	keys, err := redis.Strings(reply[1], nil)
	if err != nil {
		return nil, 0, unexpected("SCAN", reply[1])
	}
	return keys, next, nil
}

func (r *Redis) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	return r.pool.Close()
}
