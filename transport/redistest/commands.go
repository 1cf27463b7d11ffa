package redistest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moontrade/backbone/transport"
	"github.com/tidwall/match"
	"github.com/tidwall/redcon"
)

type handler func(st *store, args []string) (interface{}, error)

var commands map[string]handler

func init() {
	commands = map[string]handler{
		"ping":       cmdPING,
		"echo":       cmdECHO,
		"client":     cmdCLIENT,
		"del":        cmdDEL,
		"exists":     cmdEXISTS,
		"type":       cmdTYPE,
		"scan":       cmdSCAN,
		"xadd":       cmdXADD,
		"xlen":       cmdXLEN,
		"xrange":     cmdXRANGE,
		"xack":       cmdXACK,
		"xgroup":     cmdXGROUP,
		"xpending":   cmdXPENDING,
		"xautoclaim": cmdXAUTOCLAIM,
	}
}

func known(name string) bool {
	_, ok := commands[name]
	return ok || name == "xreadgroup"
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errNotInteger
	}
	return n, nil
}

var errInvalidID = errors.New("ERR Invalid stream ID specified as stream command argument")

var maxID = transport.ID{Ms: math.MaxUint64, Seq: math.MaxUint64}

// parseRangeID parses a range bound. A bare millisecond end bound covers the
// whole millisecond.
func parseRangeID(s string, end bool) (transport.ID, error) {
	switch s {
	case "-":
		return transport.MinID, nil
	case "+":
		return maxID, nil
	}
	id, err := transport.ParseID(s)
	if err != nil {
		return transport.ID{}, errInvalidID
	}
	if end && !strings.Contains(s, "-") {
		id.Seq = math.MaxUint64
	}
	return id, nil
}

func entryReply(e entry) []interface{} {
	return []interface{}{e.id.String(), e.fields}
}

func errNoGroup(key, group string) error {
	return fmt.Errorf("NOGROUP No such key '%s' or consumer group '%s'", key, group)
}

func (st *store) group(key, name string) (*stream, *group) {
	s := st.stream(key)
	if s == nil {
		return nil, nil
	}
	return s, s.groups[name]
}

// PING [message]
func cmdPING(st *store, args []string) (interface{}, error) {
	switch len(args) {
	case 1:
		return redcon.SimpleString("PONG"), nil
	case 2:
		return args[1], nil
	}
	return nil, errWrongArgs(args[0])
}

// ECHO message
func cmdECHO(st *store, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongArgs(args[0])
	}
	return args[1], nil
}

// CLIENT subcommand ...
// help: accepted and ignored so client libraries can announce themselves.
func cmdCLIENT(st *store, args []string) (interface{}, error) {
	return redcon.SimpleString("OK"), nil
}

// DEL key [key ...]
func cmdDEL(st *store, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongArgs(args[0])
	}
	var n int64
	for _, key := range args[1:] {
		if _, ok := st.keys.Delete(key); ok {
			n++
		}
	}
	if n > 0 {
		st.wake()
	}
	return n, nil
}

// EXISTS key [key ...]
func cmdEXISTS(st *store, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongArgs(args[0])
	}
	var n int64
	for _, key := range args[1:] {
		if st.stream(key) != nil {
			n++
		}
	}
	return n, nil
}

// TYPE key
func cmdTYPE(st *store, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongArgs(args[0])
	}
	if st.stream(args[1]) == nil {
		return redcon.SimpleString("none"), nil
	}
	return redcon.SimpleString("stream"), nil
}

// SCAN cursor [MATCH pattern] [COUNT count] [TYPE type]
// help: the cursor is the position in the ordered keyspace.
func cmdSCAN(st *store, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongArgs(args[0])
	}
	cursor, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return nil, errors.New("ERR invalid cursor")
	}
	var pattern string
	count := int64(10)
	for i := 2; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return nil, errSyntax
		}
		switch strings.ToLower(args[i]) {
		case "match":
			pattern = args[i+1]
		case "count":
			if count, err = parseInt(args[i+1]); err != nil || count < 1 {
				return nil, errSyntax
			}
		case "type":
		default:
			return nil, errSyntax
		}
	}
	keys := []interface{}{}
	var idx, next uint64
	var scanned int64
	st.keys.Scan(func(key string, _ interface{}) bool {
		if idx < cursor {
			idx++
			return true
		}
		if scanned >= count {
			next = idx
			return false
		}
		idx++
		scanned++
		if pattern == "" || match.Match(key, pattern) {
			keys = append(keys, key)
		}
		return true
	})
	return []interface{}{strconv.FormatUint(next, 10), keys}, nil
}

// XADD key [NOMKSTREAM] [MAXLEN [=|~] threshold [LIMIT count]] <*|id> field value [field value ...]
func cmdXADD(st *store, args []string) (interface{}, error) {
	if len(args) < 5 {
		return nil, errWrongArgs(args[0])
	}
	key := args[1]
	maxLen := int64(-1)
	nomk := false
	i := 2
opts:
	for i < len(args) {
		switch strings.ToLower(args[i]) {
		case "nomkstream":
			nomk = true
			i++
		case "maxlen":
			i++
			if i < len(args) && (args[i] == "~" || args[i] == "=") {
				i++
			}
			if i >= len(args) {
				return nil, errSyntax
			}
			n, err := parseInt(args[i])
			if err != nil || n < 0 {
				return nil, errors.New("ERR The MAXLEN argument must be >= 0.")
			}
			maxLen = n
			i++
			if i+1 < len(args) && strings.EqualFold(args[i], "limit") {
				i += 2
			}
		default:
			break opts
		}
	}
	if i >= len(args) {
		return nil, errSyntax
	}
	idArg, fields := args[i], args[i+1:]
	if len(fields) == 0 || len(fields)%2 != 0 {
		return nil, errWrongArgs(args[0])
	}
	s := st.stream(key)
	if s == nil {
		if nomk {
			return nil, nil
		}
		s = st.createStream(key)
	}
	var id transport.ID
	if idArg == "*" {
		id = st.nextID(s)
	} else {
		var err error
		if id, err = transport.ParseID(idArg); err != nil {
			return nil, errInvalidID
		}
		if id.IsZero() {
			return nil, errors.New("ERR The ID specified in XADD must be greater than 0-0")
		}
		if !s.lastID.Less(id) {
			return nil, errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
		}
	}
	s.entries = append(s.entries, entry{id: id, fields: append([]string(nil), fields...)})
	s.lastID = id
	if maxLen >= 0 {
		s.trim(maxLen)
	}
	st.wake()
	return id.String(), nil
}

// XLEN key
func cmdXLEN(st *store, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongArgs(args[0])
	}
	s := st.stream(args[1])
	if s == nil {
		return int64(0), nil
	}
	return int64(len(s.entries)), nil
}

// XRANGE key start end [COUNT count]
func cmdXRANGE(st *store, args []string) (interface{}, error) {
	if len(args) != 4 && len(args) != 6 {
		return nil, errWrongArgs(args[0])
	}
	start, err := parseRangeID(args[2], false)
	if err != nil {
		return nil, err
	}
	end, err := parseRangeID(args[3], true)
	if err != nil {
		return nil, err
	}
	count := int64(-1)
	if len(args) == 6 {
		if !strings.EqualFold(args[4], "count") {
			return nil, errSyntax
		}
		if count, err = parseInt(args[5]); err != nil {
			return nil, err
		}
	}
	items := []interface{}{}
	s := st.stream(args[1])
	if s == nil {
		return items, nil
	}
	for j := s.search(start); j < len(s.entries); j++ {
		e := s.entries[j]
		if end.Less(e.id) || (count >= 0 && int64(len(items)) >= count) {
			break
		}
		items = append(items, entryReply(e))
	}
	return items, nil
}

type readGroupRequest struct {
	group    string
	consumer string
	count    int64
	block    int64 // milliseconds, -1 without BLOCK
	noack    bool
	keys     []string
	ids      []string
}

// XREADGROUP GROUP group consumer [COUNT count] [BLOCK milliseconds] [NOACK] STREAMS key [key ...] id [id ...]
func parseReadGroup(args []string) (readGroupRequest, error) {
	req := readGroupRequest{block: -1}
	if len(args) < 7 || !strings.EqualFold(args[1], "group") {
		return req, errSyntax
	}
	req.group, req.consumer = args[2], args[3]
	for i := 4; i < len(args); i++ {
		switch strings.ToLower(args[i]) {
		case "count":
			if i+1 >= len(args) {
				return req, errSyntax
			}
			n, err := parseInt(args[i+1])
			if err != nil {
				return req, err
			}
			req.count = n
			i++
		case "block":
			if i+1 >= len(args) {
				return req, errSyntax
			}
			n, err := parseInt(args[i+1])
			if err != nil || n < 0 {
				return req, errors.New("ERR timeout is negative")
			}
			req.block = n
			i++
		case "noack":
			req.noack = true
		case "streams":
			rest := args[i+1:]
			if len(rest) == 0 || len(rest)%2 != 0 {
				return req, errors.New("ERR Unbalanced 'xreadgroup' list of streams: for each stream key an ID or '>' must be specified.")
			}
			req.keys, req.ids = rest[:len(rest)/2], rest[len(rest)/2:]
			return req, nil
		default:
			return req, errSyntax
		}
	}
	return req, errSyntax
}

// readGroup performs one non-blocking read. ok is false when every stream
// was read with ">" and nothing new was available.
func (st *store) readGroup(req readGroupRequest) (reply interface{}, ok bool, err error) {
	now := st.now()
	var out []interface{}
	for i, key := range req.keys {
		s, g := st.group(key, req.group)
		if g == nil {
			return nil, false, fmt.Errorf("NOGROUP No such key '%s' or consumer "+
				"group '%s' in XREADGROUP with GROUP option", key, req.group)
		}
		g.consumers[req.consumer] = now
		items := []interface{}{}
		if req.ids[i] == ">" {
			for j := s.search(g.lastID.Next()); j < len(s.entries); j++ {
				if req.count > 0 && int64(len(items)) >= req.count {
					break
				}
				e := s.entries[j]
				g.lastID = e.id
				if !req.noack {
					g.pel.Set(pelKey(e.id), &pendingEntry{
						id:         e.id,
						consumer:   req.consumer,
						delivered:  now,
						deliveries: 1,
					})
				}
				items = append(items, entryReply(e))
			}
			if len(items) == 0 {
				continue
			}
		} else {
			from, err := transport.ParseID(req.ids[i])
			if err != nil {
				return nil, false, errInvalidID
			}
			g.pel.Ascend(pelKey(from.Next()), func(_ string, v interface{}) bool {
				p := v.(*pendingEntry)
				if p.consumer != req.consumer {
					return true
				}
				if req.count > 0 && int64(len(items)) >= req.count {
					return false
				}
				p.deliveries++
				p.delivered = now
				if e, ok := s.lookup(p.id); ok {
					items = append(items, entryReply(e))
				} else {
					items = append(items, []interface{}{p.id.String(), nil})
				}
				return true
			})
		}
		out = append(out, []interface{}{key, items})
	}
	if len(out) == 0 {
		return nullArray{}, false, nil
	}
	return out, true, nil
}

// XACK key group id [id ...]
func cmdXACK(st *store, args []string) (interface{}, error) {
	if len(args) < 4 {
		return nil, errWrongArgs(args[0])
	}
	_, g := st.group(args[1], args[2])
	if g == nil {
		return int64(0), nil
	}
	var n int64
	for _, s := range args[3:] {
		id, err := transport.ParseID(s)
		if err != nil {
			return nil, errInvalidID
		}
		if _, ok := g.pel.Delete(pelKey(id)); ok {
			n++
		}
	}
	return n, nil
}

// XGROUP CREATE key group <id|$> [MKSTREAM] [ENTRIESREAD n]
// XGROUP DESTROY key group
// XGROUP SETID key group <id|$>
func cmdXGROUP(st *store, args []string) (interface{}, error) {
	if len(args) < 4 {
		return nil, errWrongArgs(args[0])
	}
	key, name := args[2], args[3]
	switch strings.ToLower(args[1]) {
	case "create":
		if len(args) < 5 {
			return nil, errWrongArgs(args[0])
		}
		mkstream := false
		for _, opt := range args[5:] {
			if strings.EqualFold(opt, "mkstream") {
				mkstream = true
			}
		}
		s := st.stream(key)
		if s == nil {
			if !mkstream {
				return nil, errors.New("ERR The XGROUP subcommand requires the key to exist. " +
					"Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
			}
			s = st.createStream(key)
		}
		if _, ok := s.groups[name]; ok {
			return nil, errors.New("BUSYGROUP Consumer Group name already exists")
		}
		start, err := groupStart(s, args[4])
		if err != nil {
			return nil, err
		}
		s.groups[name] = &group{
			name:      name,
			lastID:    start,
			consumers: make(map[string]time.Time),
		}
		return redcon.SimpleString("OK"), nil
	case "destroy":
		s, g := st.group(key, name)
		if g == nil {
			return int64(0), nil
		}
		delete(s.groups, name)
		st.wake()
		return int64(1), nil
	case "setid":
		if len(args) < 5 {
			return nil, errWrongArgs(args[0])
		}
		s, g := st.group(key, name)
		if g == nil {
			return nil, errNoGroup(key, name)
		}
		start, err := groupStart(s, args[4])
		if err != nil {
			return nil, err
		}
		g.lastID = start
		return redcon.SimpleString("OK"), nil
	}
	return nil, fmt.Errorf("ERR unknown subcommand '%s'", args[1])
}

func groupStart(s *stream, arg string) (transport.ID, error) {
	if arg == "$" {
		return s.lastID, nil
	}
	id, err := transport.ParseID(arg)
	if err != nil {
		return transport.ID{}, errInvalidID
	}
	return id, nil
}

// XPENDING key group [[IDLE min-idle-time] start end count [consumer]]
func cmdXPENDING(st *store, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, errWrongArgs(args[0])
	}
	_, g := st.group(args[1], args[2])
	if g == nil {
		return nil, errNoGroup(args[1], args[2])
	}
	now := st.now()
	if len(args) == 3 {
		return pendingSummary(g), nil
	}
	rest := args[3:]
	var minIdle time.Duration
	if strings.EqualFold(rest[0], "idle") {
		if len(rest) < 2 {
			return nil, errSyntax
		}
		ms, err := parseInt(rest[1])
		if err != nil {
			return nil, err
		}
		minIdle = time.Duration(ms) * time.Millisecond
		rest = rest[2:]
	}
	if len(rest) != 3 && len(rest) != 4 {
		return nil, errSyntax
	}
	start, err := parseRangeID(rest[0], false)
	if err != nil {
		return nil, err
	}
	end, err := parseRangeID(rest[1], true)
	if err != nil {
		return nil, err
	}
	count, err := parseInt(rest[2])
	if err != nil {
		return nil, err
	}
	var consumer string
	if len(rest) == 4 {
		consumer = rest[3]
	}
	items := []interface{}{}
	g.pel.Ascend(pelKey(start), func(_ string, v interface{}) bool {
		p := v.(*pendingEntry)
		if end.Less(p.id) || int64(len(items)) >= count {
			return false
		}
		idle := now.Sub(p.delivered)
		if idle < minIdle || (consumer != "" && p.consumer != consumer) {
			return true
		}
		items = append(items, []interface{}{
			p.id.String(), p.consumer, idle.Milliseconds(), p.deliveries,
		})
		return true
	})
	return items, nil
}

func pendingSummary(g *group) []interface{} {
	if g.pel.Len() == 0 {
		return []interface{}{int64(0), nil, nil, nullArray{}}
	}
	var first, last transport.ID
	counts := make(map[string]int64)
	n := 0
	g.pel.Scan(func(_ string, v interface{}) bool {
		p := v.(*pendingEntry)
		if n == 0 {
			first = p.id
		}
		last = p.id
		counts[p.consumer]++
		n++
		return true
	})
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	consumers := make([]interface{}, 0, len(names))
	for _, name := range names {
		consumers = append(consumers, []interface{}{
			name, strconv.FormatInt(counts[name], 10),
		})
	}
	return []interface{}{int64(n), first.String(), last.String(), consumers}
}

// XAUTOCLAIM key group consumer min-idle-time start [COUNT count] [JUSTID]
// help: transfers pending entries idle for at least min-idle-time to consumer.
// Entries deleted from the stream are dropped from the pending list and
// reported in the third element of the reply.
func cmdXAUTOCLAIM(st *store, args []string) (interface{}, error) {
	if len(args) < 6 {
		return nil, errWrongArgs(args[0])
	}
	s, g := st.group(args[1], args[2])
	if g == nil {
		return nil, errNoGroup(args[1], args[2])
	}
	consumer := args[3]
	ms, err := parseInt(args[4])
	if err != nil {
		return nil, err
	}
	minIdle := time.Duration(ms) * time.Millisecond
	start, err := parseRangeID(args[5], false)
	if err != nil {
		return nil, err
	}
	count := int64(100)
	justID := false
	for i := 6; i < len(args); i++ {
		switch strings.ToLower(args[i]) {
		case "count":
			if i+1 >= len(args) {
				return nil, errSyntax
			}
			if count, err = parseInt(args[i+1]); err != nil || count < 1 {
				return nil, errors.New("ERR COUNT must be > 0")
			}
			i++
		case "justid":
			justID = true
		default:
			return nil, errSyntax
		}
	}
	now := st.now()
	attempts := count * 10
	claimed := []interface{}{}
	deleted := []interface{}{}
	var drop []string
	next := transport.MinID
	g.pel.Ascend(pelKey(start), func(k string, v interface{}) bool {
		p := v.(*pendingEntry)
		if attempts == 0 || int64(len(claimed)) >= count {
			next = p.id
			return false
		}
		attempts--
		if now.Sub(p.delivered) < minIdle {
			return true
		}
		e, ok := s.lookup(p.id)
		if !ok {
			deleted = append(deleted, p.id.String())
			drop = append(drop, k)
			return true
		}
		p.consumer = consumer
		p.delivered = now
		if justID {
			claimed = append(claimed, p.id.String())
		} else {
			p.deliveries++
			claimed = append(claimed, entryReply(e))
		}
		return true
	})
	for _, k := range drop {
		g.pel.Delete(k)
	}
	g.consumers[consumer] = now
	return []interface{}{next.String(), claimed, deleted}, nil
}
