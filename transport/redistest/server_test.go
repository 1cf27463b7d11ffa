package redistest

import (
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, s *Server) redis.Conn {
	t.Helper()
	conn, err := redis.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func start(t *testing.T, opts Options) *Server {
	t.Helper()
	s, err := Start(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPing(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)

	pong, err := redis.String(conn.Do("PING"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	_, err = conn.Do("NOPE")
	assert.EqualError(t, err, "ERR unknown command 'nope'")
	assert.EqualValues(t, 1, s.Monitor().Count("PING"))
}

func TestAuth(t *testing.T) {
	s := start(t, Options{Auth: "secret"})
	conn := dial(t, s)

	_, err := conn.Do("XLEN", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOAUTH")

	_, err = conn.Do("AUTH", "wrong")
	assert.Contains(t, err.Error(), "WRONGPASS")

	ok, err := redis.String(conn.Do("AUTH", "secret"))
	require.NoError(t, err)
	assert.Equal(t, "OK", ok)

	n, err := redis.Int64(conn.Do("XLEN", "s"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestXAddRange(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)

	id, err := redis.String(conn.Do("XADD", "s", "5-1", "a", "1"))
	require.NoError(t, err)
	assert.Equal(t, "5-1", id)

	_, err = conn.Do("XADD", "s", "5-1", "a", "2")
	assert.Contains(t, err.Error(), "equal or smaller")
	_, err = conn.Do("XADD", "s", "0-0", "a", "2")
	assert.Error(t, err)

	id, err = redis.String(conn.Do("XADD", "s", "*", "a", "2"))
	require.NoError(t, err)
	assert.NotEqual(t, "5-1", id)

	items, err := redis.Values(conn.Do("XRANGE", "s", "-", "+"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	first, _ := redis.Values(items[0], nil)
	assert.Equal(t, "5-1", string(first[0].([]byte)))
	fields, _ := redis.Strings(first[1], nil)
	assert.Equal(t, []string{"a", "1"}, fields)

	items, err = redis.Values(conn.Do("XRANGE", "s", "5", "5"))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = redis.String(conn.Do("XADD", "missing", "NOMKSTREAM", "*", "a", "1"))
	assert.Equal(t, redis.ErrNil, err)
	n, _ := redis.Int64(conn.Do("EXISTS", "missing"))
	assert.Zero(t, n)
}

func TestXAddTrim(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)
	for i := 0; i < 10; i++ {
		_, err := conn.Do("XADD", "s", "MAXLEN", "~", 4, "*", "i", i)
		require.NoError(t, err)
	}
	n, err := redis.Int64(conn.Do("XLEN", "s"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestMultiExec(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)

	require.NoError(t, conn.Send("MULTI"))
	require.NoError(t, conn.Send("XADD", "s", "*", "a", "1"))
	require.NoError(t, conn.Send("XADD", "s", "*", "a", "2"))
	replies, err := redis.Strings(conn.Do("EXEC"))
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.NotEqual(t, replies[0], replies[1])
	assert.EqualValues(t, 1, s.Monitor().Count("exec"))

	require.NoError(t, conn.Send("MULTI"))
	require.NoError(t, conn.Send("NOPE"))
	_, err = conn.Do("EXEC")
	assert.Contains(t, err.Error(), "EXECABORT")

	n, _ := redis.Int64(conn.Do("XLEN", "s"))
	assert.EqualValues(t, 2, n)
}

func TestGroups(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)

	_, err := conn.Do("XGROUP", "CREATE", "s", "g", "$")
	assert.Contains(t, err.Error(), "requires the key to exist")

	_, err = conn.Do("XGROUP", "CREATE", "s", "g", "$", "MKSTREAM")
	require.NoError(t, err)
	_, err = conn.Do("XGROUP", "CREATE", "s", "g", "$", "MKSTREAM")
	assert.Contains(t, err.Error(), "BUSYGROUP")

	_, err = conn.Do("XREADGROUP", "GROUP", "nope", "c", "STREAMS", "s", ">")
	assert.Contains(t, err.Error(), "NOGROUP")

	// Nothing new and no BLOCK returns a null array.
	v, err := conn.Do("XREADGROUP", "GROUP", "g", "c", "STREAMS", "s", ">")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = conn.Do("XADD", "s", "*", "a", "1")
	require.NoError(t, err)
	_, err = conn.Do("XADD", "s", "*", "a", "2")
	require.NoError(t, err)

	streams, err := redis.Values(conn.Do("XREADGROUP", "GROUP", "g", "c", "COUNT", 1, "STREAMS", "s", ">"))
	require.NoError(t, err)
	require.Len(t, streams, 1)
	kv, _ := redis.Values(streams[0], nil)
	items, _ := redis.Values(kv[1], nil)
	require.Len(t, items, 1)
	item, _ := redis.Values(items[0], nil)
	firstID := string(item[0].([]byte))

	// History read returns the consumer's own pending entries.
	streams, err = redis.Values(conn.Do("XREADGROUP", "GROUP", "g", "c", "STREAMS", "s", "0"))
	require.NoError(t, err)
	kv, _ = redis.Values(streams[0], nil)
	items, _ = redis.Values(kv[1], nil)
	assert.Len(t, items, 1)

	streams, err = redis.Values(conn.Do("XREADGROUP", "GROUP", "g", "other", "STREAMS", "s", "0"))
	require.NoError(t, err)
	kv, _ = redis.Values(streams[0], nil)
	items, _ = redis.Values(kv[1], nil)
	assert.Len(t, items, 0)

	n, err := redis.Int64(conn.Do("XACK", "s", "g", firstID, firstID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	summary, err := redis.Values(conn.Do("XPENDING", "s", "g"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary[0])
}

func TestBlockingRead(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)
	_, err := conn.Do("XGROUP", "CREATE", "s", "g", "$", "MKSTREAM")
	require.NoError(t, err)

	begin := time.Now()
	v, err := conn.Do("XREADGROUP", "GROUP", "g", "c", "BLOCK", 50, "STREAMS", "s", ">")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		w, err := redis.Dial("tcp", s.Addr())
		if err != nil {
			return
		}
		defer w.Close()
		w.Do("XADD", "s", "*", "a", "1")
	}()
	streams, err := redis.Values(conn.Do("XREADGROUP", "GROUP", "g", "c", "BLOCK", 0, "STREAMS", "s", ">"))
	require.NoError(t, err)
	assert.Len(t, streams, 1)
}

func TestAutoClaim(t *testing.T) {
	s := start(t, Options{})
	now := time.Unix(1000, 0)
	s.SetNow(func() time.Time { return now })
	conn := dial(t, s)

	_, err := conn.Do("XGROUP", "CREATE", "s", "g", "0", "MKSTREAM")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = conn.Do("XADD", "s", "*", "i", i)
		require.NoError(t, err)
	}
	_, err = conn.Do("XREADGROUP", "GROUP", "g", "dead", "STREAMS", "s", ">")
	require.NoError(t, err)

	reply, err := redis.Values(conn.Do("XAUTOCLAIM", "s", "g", "live", 1000, "0-0"))
	require.NoError(t, err)
	claimed, _ := redis.Values(reply[1], nil)
	assert.Len(t, claimed, 0)

	now = now.Add(2 * time.Second)
	reply, err = redis.Values(conn.Do("XAUTOCLAIM", "s", "g", "live", 1000, "0-0", "COUNT", 2))
	require.NoError(t, err)
	require.Len(t, reply, 3)
	claimed, _ = redis.Values(reply[1], nil)
	assert.Len(t, claimed, 2)
	assert.NotEqual(t, "0-0", string(reply[0].([]byte)))

	reply, err = redis.Values(conn.Do("XAUTOCLAIM", "s", "g", "live", 1000, reply[0]))
	require.NoError(t, err)
	claimed, _ = redis.Values(reply[1], nil)
	assert.Len(t, claimed, 1)
	assert.Equal(t, "0-0", string(reply[0].([]byte)))

	pending, err := redis.Values(conn.Do("XPENDING", "s", "g", "-", "+", 10, "live"))
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestScan(t *testing.T) {
	s := start(t, Options{})
	conn := dial(t, s)
	for _, key := range []string{"md:a", "md:b", "md:c", "other"} {
		_, err := conn.Do("XADD", key, "*", "a", "1")
		require.NoError(t, err)
	}
	var keys []string
	cursor := "0"
	for {
		reply, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", "md:*", "COUNT", 2))
		require.NoError(t, err)
		page, _ := redis.Strings(reply[1], nil)
		keys = append(keys, page...)
		cursor = string(reply[0].([]byte))
		if cursor == "0" {
			break
		}
	}
	assert.Equal(t, []string{"md:a", "md:b", "md:c"}, keys)

	typ, _ := redis.String(conn.Do("TYPE", "md:a"))
	assert.Equal(t, "stream", typ)
	n, _ := redis.Int64(conn.Do("DEL", "md:a", "nope"))
	assert.EqualValues(t, 1, n)
}
