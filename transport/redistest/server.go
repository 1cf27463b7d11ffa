// Package redistest runs an in-process server that speaks the Redis Streams
// subset the transport package relies on. It keeps everything in memory and
// is meant for tests and local development, not production.
package redistest

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/redcon"
)

// Options configure a Server.
type Options struct {
	// Addr defaults to 127.0.0.1:0, a random loopback port.
	Addr string
	// Auth, when set, must be sent with AUTH before any other command.
	Auth string
}

// Server is a Redis Streams compatible server.
type Server struct {
	ln   net.Listener
	auth string
	mon  *Monitor

	mu sync.Mutex // guards st
	st *store

	done      chan struct{}
	closeOnce sync.Once
	connsMu   sync.Mutex
	conns     map[redcon.Conn]struct{}
	served    chan struct{}
}

type client struct {
	authorized bool
	quit       bool
	multi      bool
	dirty      bool
	queued     [][]string
}

// nullArray is written as a RESP null array.
type nullArray struct{}

// Start listens on opts.Addr and serves in the background.
func Start(opts Options) (*Server, error) {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:     ln,
		auth:   opts.Auth,
		mon:    newMonitor(),
		st:     newStore(),
		done:   make(chan struct{}),
		conns:  make(map[redcon.Conn]struct{}),
		served: make(chan struct{}),
	}
	go func() {
		defer close(s.served)
		_ = redcon.Serve(ln, s.handle, s.opened, s.closed)
	}()
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Monitor allows for observing and counting the commands the server
// executes.
func (s *Server) Monitor() *Monitor {
	return s.mon
}

// SetNow replaces the clock used for entry IDs and idle times.
func (s *Server) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.st.now = now
	s.mu.Unlock()
}

// Close stops the listener, drops every connection and releases blocked
// readers.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ln.Close()
		s.connsMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connsMu.Unlock()
		<-s.served
	})
	return err
}

func (s *Server) opened(conn redcon.Conn) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	conn.SetContext(&client{authorized: s.auth == ""})
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
	return true
}

func (s *Server) closed(conn redcon.Conn, err error) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func commandToArgs(cmd redcon.Command) []string {
	args := make([]string, len(cmd.Args))
	args[0] = strings.ToLower(string(cmd.Args[0]))
	for i := 1; i < len(cmd.Args); i++ {
		args[i] = string(cmd.Args[i])
	}
	return args
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	c := conn.Context().(*client)
	var args [][]string
	args = append(args, commandToArgs(cmd))
	for _, cmd := range conn.ReadPipeline() {
		args = append(args, commandToArgs(cmd))
	}
	for _, a := range args {
		start := time.Now()
		v, err := s.dispatch(c, a)
		if err != nil {
			conn.WriteError(errMsg(err))
		} else {
			writeReply(conn, v)
		}
		s.mon.send(Message{
			Args:    a,
			Err:     err,
			Elapsed: time.Since(start),
			Addr:    conn.RemoteAddr(),
		})
		if c.quit {
			conn.Close()
			return
		}
	}
}

func (s *Server) dispatch(c *client, args []string) (interface{}, error) {
	switch args[0] {
	case "quit":
		c.quit = true
		return redcon.SimpleString("OK"), nil
	case "hello":
		// RESP3 is not spoken here; clients fall back to RESP2.
		return nil, errUnknown(args[0])
	case "auth":
		if len(args) < 2 || len(args) > 3 {
			return nil, errWrongArgs(args[0])
		}
		if args[len(args)-1] != s.auth {
			c.authorized = false
			return nil, errors.New("WRONGPASS invalid username-password pair")
		}
		c.authorized = true
		return redcon.SimpleString("OK"), nil
	}
	if !c.authorized {
		return nil, errors.New("NOAUTH Authentication required.")
	}
	switch args[0] {
	case "multi":
		if c.multi {
			return nil, errors.New("ERR MULTI calls can not be nested")
		}
		c.multi, c.dirty, c.queued = true, false, nil
		return redcon.SimpleString("OK"), nil
	case "discard":
		if !c.multi {
			return nil, errors.New("ERR DISCARD without MULTI")
		}
		c.multi, c.dirty, c.queued = false, false, nil
		return redcon.SimpleString("OK"), nil
	case "exec":
		if !c.multi {
			return nil, errors.New("ERR EXEC without MULTI")
		}
		queued, dirty := c.queued, c.dirty
		c.multi, c.dirty, c.queued = false, false, nil
		if dirty {
			return nil, errors.New("EXECABORT Transaction discarded because of previous errors.")
		}
		return s.execMulti(queued), nil
	}
	if c.multi {
		if !known(args[0]) {
			c.dirty = true
			return nil, errUnknown(args[0])
		}
		c.queued = append(c.queued, args)
		return redcon.SimpleString("QUEUED"), nil
	}
	if args[0] == "xreadgroup" {
		return s.xreadgroup(args, true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execLocked(args)
}

func (s *Server) execMulti(queued [][]string) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	replies := make([]interface{}, len(queued))
	for i, args := range queued {
		v, err := s.execLocked(args)
		if err != nil {
			replies[i] = err
		} else {
			replies[i] = v
		}
	}
	return replies
}

func (s *Server) execLocked(args []string) (interface{}, error) {
	if args[0] == "xreadgroup" {
		req, err := parseReadGroup(args)
		if err != nil {
			return nil, err
		}
		v, _, err := s.st.readGroup(req)
		return v, err
	}
	fn, ok := commands[args[0]]
	if !ok {
		return nil, errUnknown(args[0])
	}
	return fn(s.st, args)
}

// xreadgroup retries the read every time an entry is appended until it
// returns something, the block time elapses or the server closes.
func (s *Server) xreadgroup(args []string, canBlock bool) (interface{}, error) {
	req, err := parseReadGroup(args)
	if err != nil {
		return nil, err
	}
	var deadline <-chan time.Time
	for {
		s.mu.Lock()
		v, ok, err := s.st.readGroup(req)
		notify := s.st.notify
		s.mu.Unlock()
		if err != nil || ok || !canBlock || req.block < 0 {
			return v, err
		}
		if deadline == nil && req.block > 0 {
			t := time.NewTimer(time.Duration(req.block) * time.Millisecond)
			defer t.Stop()
			deadline = t.C
		}
		select {
		case <-notify:
		case <-deadline:
			return nullArray{}, nil
		case <-s.done:
			return nullArray{}, nil
		}
	}
}

func writeReply(conn redcon.Conn, v interface{}) {
	switch v := v.(type) {
	case nil:
		conn.WriteNull()
	case nullArray:
		conn.WriteRaw([]byte("*-1\r\n"))
	case error:
		conn.WriteError(errMsg(v))
	case redcon.SimpleString:
		conn.WriteString(string(v))
	case string:
		conn.WriteBulkString(v)
	case []byte:
		conn.WriteBulk(v)
	case int:
		conn.WriteInt(v)
	case int64:
		conn.WriteInt64(v)
	case []string:
		conn.WriteArray(len(v))
		for _, s := range v {
			conn.WriteBulkString(s)
		}
	case []interface{}:
		conn.WriteArray(len(v))
		for _, x := range v {
			writeReply(conn, x)
		}
	default:
		conn.WriteError(fmt.Sprintf("ERR unsupported reply type %T", v))
	}
}

// errMsg prefixes ERR unless the message already starts with an upper case
// error code such as NOGROUP or BUSYGROUP.
func errMsg(err error) string {
	msg := err.Error()
	code := msg
	if i := strings.IndexByte(msg, ' '); i != -1 {
		code = msg[:i]
	}
	if code != "" && strings.ToUpper(code) == code {
		return msg
	}
	return "ERR " + msg
}

func errUnknown(name string) error {
	return fmt.Errorf("ERR unknown command '%s'", name)
}

func errWrongArgs(name string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", name)
}

var errSyntax = errors.New("ERR syntax error")

var errNotInteger = errors.New("ERR value is not an integer or out of range")
