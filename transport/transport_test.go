package transport_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/moontrade/backbone/transport"
	"github.com/moontrade/backbone/transport/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type factory func(addr string) transport.Transport

var clients = map[string]factory{
	"redigo": func(addr string) transport.Transport {
		return transport.NewRedis(transport.Options{Addr: addr})
	},
	"goredis": func(addr string) transport.Transport {
		return transport.NewUniversal(transport.Options{Addr: addr})
	},
}

func each(t *testing.T, fn func(t *testing.T, srv *redistest.Server, tr transport.Transport)) {
	for name, newClient := range clients {
		newClient := newClient
		t.Run(name, func(t *testing.T) {
			srv, err := redistest.Start(redistest.Options{})
			require.NoError(t, err)
			defer srv.Close()
			tr := newClient(srv.Addr())
			defer tr.Close()
			fn(t, srv, tr)
		})
	}
}

func TestAppendSingleRoundTrip(t *testing.T) {
	each(t, func(t *testing.T, srv *redistest.Server, tr transport.Transport) {
		ctx := context.Background()
		batch := []transport.Fields{
			transport.NewFields("n", "1"),
			transport.NewFields("n", "2"),
			transport.NewFields("n", "3"),
		}
		ids, err := tr.Append(ctx, "md:s", 0, batch)
		require.NoError(t, err)
		require.Len(t, ids, 3)
		for i := 1; i < len(ids); i++ {
			prev, _ := transport.ParseID(ids[i-1])
			cur, _ := transport.ParseID(ids[i])
			assert.True(t, prev.Less(cur))
		}
		assert.EqualValues(t, 1, srv.Monitor().Count("exec"))
		assert.EqualValues(t, 3, srv.Monitor().Count("xadd"))

		n, err := tr.Len(ctx, "md:s")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		ids, err = tr.Append(ctx, "md:s", 0, nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestAppendTrim(t *testing.T) {
	each(t, func(t *testing.T, _ *redistest.Server, tr transport.Transport) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := tr.Append(ctx, "md:s", 2, []transport.Fields{transport.NewFields("n", "x")})
			require.NoError(t, err)
		}
		n, err := tr.Len(ctx, "md:s")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})
}

func TestReadGroupAck(t *testing.T) {
	each(t, func(t *testing.T, _ *redistest.Server, tr transport.Transport) {
		ctx := context.Background()
		require.NoError(t, tr.CreateGroup(ctx, "md:s", "g", "0"))
		err := tr.CreateGroup(ctx, "md:s", "g", "0")
		assert.ErrorIs(t, err, transport.ErrGroupExists)

		// An empty stream times out with nothing and no error.
		entries, err := tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream: "md:s", Group: "g", Consumer: "c", Block: 20 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.Empty(t, entries)

		_, err = tr.Append(ctx, "md:s", 0, []transport.Fields{
			transport.NewFields("a", "1"),
			transport.NewFields("a", "2"),
		})
		require.NoError(t, err)

		entries, err = tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream: "md:s", Group: "g", Consumer: "c", Block: time.Second, Count: 10,
		})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "1", entries[0].Fields.Value("a"))
		assert.Equal(t, "2", entries[1].Fields.Value("a"))

		pending, err := tr.Pending(ctx, "md:s", "g", 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "c", pending[0].Consumer)
		assert.EqualValues(t, 1, pending[0].Deliveries)

		n, err := tr.Ack(ctx, "md:s", "g", entries[0].ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		// Re-reading history returns only the unacknowledged entry.
		entries, err = tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream: "md:s", Group: "g", Consumer: "c", Block: -1, ID: "0",
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "2", entries[0].Fields.Value("a"))
	})
}

func TestReadGroupMissingGroup(t *testing.T) {
	each(t, func(t *testing.T, _ *redistest.Server, tr transport.Transport) {
		_, err := tr.ReadGroup(context.Background(), transport.ReadGroupArgs{
			Stream: "md:none", Group: "g", Consumer: "c", Block: -1,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrNoGroup)
		assert.False(t, transport.IsUnavailable(err))
	})
}

func TestReadGroupWakesOnAppend(t *testing.T) {
	each(t, func(t *testing.T, _ *redistest.Server, tr transport.Transport) {
		ctx := context.Background()
		require.NoError(t, tr.CreateGroup(ctx, "md:s", "g", "$"))
		go func() {
			time.Sleep(20 * time.Millisecond)
			tr.Append(ctx, "md:s", 0, []transport.Fields{transport.NewFields("a", "1")})
		}()
		entries, err := tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream: "md:s", Group: "g", Consumer: "c", Block: 2 * time.Second,
		})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestAutoClaim(t *testing.T) {
	each(t, func(t *testing.T, srv *redistest.Server, tr transport.Transport) {
		ctx := context.Background()
		now := time.Now()
		srv.SetNow(func() time.Time { return now })
		require.NoError(t, tr.CreateGroup(ctx, "md:s", "g", "0"))
		_, err := tr.Append(ctx, "md:s", 0, []transport.Fields{
			transport.NewFields("a", "1"),
			transport.NewFields("a", "2"),
		})
		require.NoError(t, err)
		_, err = tr.ReadGroup(ctx, transport.ReadGroupArgs{
			Stream: "md:s", Group: "g", Consumer: "dead", Block: -1,
		})
		require.NoError(t, err)

		args := transport.AutoClaimArgs{
			Stream: "md:s", Group: "g", Consumer: "live", MinIdle: time.Second, Count: 10,
		}
		entries, next, err := tr.AutoClaim(ctx, args)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Equal(t, "0-0", next)

		now = now.Add(time.Minute)
		entries, next, err = tr.AutoClaim(ctx, args)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, "0-0", next)

		pending, err := tr.Pending(ctx, "md:s", "g", 10)
		require.NoError(t, err)
		for _, p := range pending {
			assert.Equal(t, "live", p.Consumer)
			assert.EqualValues(t, 2, p.Deliveries)
		}
	})
}

func TestExistsScan(t *testing.T) {
	each(t, func(t *testing.T, _ *redistest.Server, tr transport.Transport) {
		ctx := context.Background()
		ok, err := tr.Exists(ctx, "md:a")
		require.NoError(t, err)
		assert.False(t, ok)

		for _, key := range []string{"md:a", "md:b", "md:c", "alerts"} {
			_, err := tr.Append(ctx, key, 0, []transport.Fields{transport.NewFields("a", "1")})
			require.NoError(t, err)
		}
		ok, err = tr.Exists(ctx, "md:a")
		require.NoError(t, err)
		assert.True(t, ok)

		var keys []string
		err = transport.ScanAll(ctx, tr, "md:*", 1, func(key string) bool {
			keys = append(keys, key)
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"md:a", "md:b", "md:c"}, keys)
	})
}

func TestUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	for name, newClient := range clients {
		t.Run(name, func(t *testing.T) {
			tr := newClient(addr)
			defer tr.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			ok, err := tr.Exists(ctx, "md:a")
			assert.False(t, ok)
			assert.True(t, transport.IsUnavailable(err), "%v", err)

			_, err = tr.Append(ctx, "md:a", 0, []transport.Fields{transport.NewFields("a", "1")})
			assert.True(t, transport.IsUnavailable(err), "%v", err)
		})
	}
}

func TestClosed(t *testing.T) {
	each(t, func(t *testing.T, _ *redistest.Server, tr transport.Transport) {
		require.NoError(t, tr.Close())
		_, err := tr.Len(context.Background(), "md:a")
		assert.True(t, errors.Is(err, transport.ErrClosed))
	})
}
