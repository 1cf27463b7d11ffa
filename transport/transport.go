// Package transport is the client side of the durable per-stream log. The
// wire contract is Redis Streams: XADD with an approximate MAXLEN trim hint,
// consumer-group XREADGROUP with BLOCK, XACK and XAUTOCLAIM. Key enumeration
// is cursor based (SCAN) and is meant for diagnostics only.
package transport

import (
	"context"
	"time"
)

// Entry is one stream entry as delivered to a consumer.
type Entry struct {
	ID     string
	Fields Fields
}

// ReadGroupArgs are the arguments of a consumer-group read.
type ReadGroupArgs struct {
	Stream   string
	Group    string
	Consumer string
	// Block is the longest the read suspends when nothing is available.
	// Zero blocks forever, a negative value does not block.
	Block time.Duration
	// Count bounds the entries returned. Zero means no bound.
	Count int64
	// ID is ">" (the default) for entries never delivered to the group, or an
	// explicit ID to re-read this consumer's pending entries after that ID.
	ID string
}

// AutoClaimArgs are the arguments of an ownership transfer of idle pending
// entries to Consumer.
type AutoClaimArgs struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
	// Start is the scan cursor, "0-0" for a fresh pass.
	Start string
	Count int64
}

// PendingEntry describes an entry that was delivered but not acknowledged.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	Deliveries int64
}

// Transport is the Log Transport contract.
type Transport interface {
	// Append appends every entry of batch to stream in one round trip and
	// returns the assigned IDs in order. maxLen > 0 asks the log to trim the
	// stream to approximately maxLen entries.
	Append(ctx context.Context, stream string, maxLen int64, batch []Fields) ([]string, error)
	// ReadGroup is a blocking consumer-group read. A read that times out
	// returns no entries and no error.
	ReadGroup(ctx context.Context, args ReadGroupArgs) ([]Entry, error)
	// Ack acknowledges ids and returns how many left the pending list.
	Ack(ctx context.Context, stream, group string, ids ...string) (int64, error)
	// CreateGroup creates group on stream (creating the stream if needed)
	// with its cursor at start. Returns ErrGroupExists if it already exists.
	CreateGroup(ctx context.Context, stream, group, start string) error
	// AutoClaim transfers entries idle for at least MinIdle to the calling
	// consumer and returns them with the cursor for the next pass ("0-0"
	// when the pass is complete).
	AutoClaim(ctx context.Context, args AutoClaimArgs) ([]Entry, string, error)
	// Pending lists up to count pending entries of group.
	Pending(ctx context.Context, stream, group string, count int64) ([]PendingEntry, error)
	// Len is the current length of stream. Missing streams have length 0.
	Len(ctx context.Context, stream string) (int64, error)
	// Exists reports whether key exists. Transport failures are errors, never
	// a false result.
	Exists(ctx context.Context, key string) (bool, error)
	// Scan returns one page of keys matching match, and the cursor of the
	// next page (0 when done).
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Close() error
}

// ScanAll walks every key matching match, count keys per round trip.
func ScanAll(ctx context.Context, t Transport, match string, count int64,
	iter func(key string) bool,
) error {
	var cursor uint64
	for {
		keys, next, err := t.Scan(ctx, cursor, match, count)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if !iter(key) {
				return nil
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
