package redistest

import (
	"fmt"
	"sort"
	"time"

	"github.com/moontrade/backbone/transport"
	"github.com/tidwall/tinybtree"
)

type entry struct {
	id     transport.ID
	fields []string
}

type pendingEntry struct {
	id         transport.ID
	consumer   string
	delivered  time.Time
	deliveries int64
}

type group struct {
	name      string
	lastID    transport.ID
	pel       tinybtree.BTree // pelKey(id) -> *pendingEntry
	consumers map[string]time.Time
}

type stream struct {
	entries []entry
	lastID  transport.ID
	groups  map[string]*group
}

// store is the keyspace. Callers hold Server.mu.
type store struct {
	keys   tinybtree.BTree // key -> *stream
	notify chan struct{}
	now    func() time.Time
}

func newStore() *store {
	return &store{notify: make(chan struct{}), now: time.Now}
}

func pelKey(id transport.ID) string {
	return fmt.Sprintf("%020d-%020d", id.Ms, id.Seq)
}

// wake releases every blocked reader so it re-evaluates its read.
func (st *store) wake() {
	close(st.notify)
	st.notify = make(chan struct{})
}

func (st *store) stream(key string) *stream {
	v, ok := st.keys.Get(key)
	if !ok {
		return nil
	}
	return v.(*stream)
}

func (st *store) createStream(key string) *stream {
	s := &stream{groups: make(map[string]*group)}
	st.keys.Set(key, s)
	return s
}

func (st *store) nextID(s *stream) transport.ID {
	ms := uint64(st.now().UnixNano() / int64(time.Millisecond))
	if ms <= s.lastID.Ms {
		return s.lastID.Next()
	}
	return transport.ID{Ms: ms}
}

// search returns the index of the first entry with an id >= id.
func (s *stream) search(id transport.ID) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].id.Less(id)
	})
}

func (s *stream) lookup(id transport.ID) (entry, bool) {
	i := s.search(id)
	if i < len(s.entries) && s.entries[i].id == id {
		return s.entries[i], true
	}
	return entry{}, false
}

func (s *stream) trim(maxLen int64) {
	if maxLen < 0 || int64(len(s.entries)) <= maxLen {
		return
	}
	drop := len(s.entries) - int(maxLen)
	n := copy(s.entries, s.entries[drop:])
	for i := n; i < len(s.entries); i++ {
		s.entries[i] = entry{}
	}
	s.entries = s.entries[:n]
}

func (g *group) consumerPending(name string) int {
	var n int
	g.pel.Scan(func(_ string, v interface{}) bool {
		if v.(*pendingEntry).consumer == name {
			n++
		}
		return true
	})
	return n
}
