package coordinator

import (
	"sort"
	"time"
)

// ActivePairs tracks when each pair was last seen. Touch is O(1); expired
// pairs are only removed by Sweep. Not safe for concurrent use.
type ActivePairs struct {
	ttl  time.Duration
	seen map[string]time.Time
}

func NewActivePairs(ttl time.Duration) *ActivePairs {
	return &ActivePairs{ttl: ttl, seen: make(map[string]time.Time)}
}

func (a *ActivePairs) Touch(key string, now time.Time) {
	a.seen[key] = now
}

func (a *ActivePairs) LastSeen(key string) (time.Time, bool) {
	t, ok := a.seen[key]
	return t, ok
}

func (a *ActivePairs) Len() int { return len(a.seen) }

// Sweep removes every pair not seen for longer than the TTL.
func (a *ActivePairs) Sweep(now time.Time) int {
	var n int
	for key, last := range a.seen {
		if now.Sub(last) > a.ttl {
			delete(a.seen, key)
			n++
		}
	}
	return n
}

// Keys are sorted.
func (a *ActivePairs) Keys() []string {
	keys := make([]string, 0, len(a.seen))
	for key := range a.seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
