// Package pairs memoizes the mapping from raw composite pair keys to their
// canonical form.
package pairs

import (
	"strings"

	"github.com/tidwall/rhh"
)

// Cache is a bounded memo of raw key to canonical key. When it is full the
// oldest half of the entries, in insertion order, is evicted before the new
// entry goes in. It is never a source of truth: a miss recomputes.
//
// A Cache is not safe for concurrent use.
type Cache struct {
	m     *rhh.Map
	order []string // ring of keys in insertion order
	head  int      // oldest key in order
	n     int

	hits, misses, evictions uint64
}

// Stats are cumulative counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Len       int    `json:"len"`
}

// NewCache panics if capacity is not positive.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		panic("pairs: capacity must be > 0")
	}
	return &Cache{
		m:     rhh.New(capacity),
		order: make([]string, capacity),
	}
}

func (c *Cache) Len() int { return c.n }
func (c *Cache) Cap() int { return len(c.order) }

// Get returns the cached canonical key of raw.
func (c *Cache) Get(raw string) (string, bool) {
	v, ok := c.m.Get(raw)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Normalize returns the canonical key of raw, calling compute on a miss.
func (c *Cache) Normalize(raw string, compute func(string) string) string {
	if v, ok := c.m.Get(raw); ok {
		c.hits++
		return v.(string)
	}
	c.misses++
	canon := compute(raw)
	if c.n == len(c.order) {
		c.evictHalf()
	}
	c.m.Set(raw, canon)
	c.order[(c.head+c.n)%len(c.order)] = raw
	c.n++
	return canon
}

func (c *Cache) evictHalf() {
	drop := c.n / 2
	if drop == 0 {
		drop = 1
	}
	for i := 0; i < drop; i++ {
		c.m.Delete(c.order[c.head])
		c.order[c.head] = ""
		c.head = (c.head + 1) % len(c.order)
	}
	c.n -= drop
	c.evictions += uint64(drop)
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Len: c.n}
}

// Canonical normalizes "chain:dex:tokenA/tokenB". The chain and dex are
// lowercased, the tokens uppercased and ordered, and re-joined with '-', so
// "eth:UniSwap:usdc_weth" becomes "eth:uniswap:USDC-WETH". Token separators
// may be '/', '-' or '_'. Keys with fewer segments are normalized the same
// way from the right.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	prefix, pair := "", raw
	if i := strings.LastIndexByte(raw, ':'); i != -1 {
		prefix, pair = strings.ToLower(raw[:i+1]), raw[i+1:]
	}
	a, b := pair, ""
	if i := strings.IndexAny(pair, "/-_"); i != -1 {
		a, b = pair[:i], pair[i+1:]
	}
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	if b == "" {
		return prefix + a
	}
	if b < a {
		a, b = b, a
	}
	return prefix + a + "-" + b
}
