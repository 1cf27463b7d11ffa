package redistest

import (
	"strings"
	"sync"
	"time"
)

// A Message represents a command processed by the server.
type Message struct {
	// Args are the original command arguments, name lowercased.
	Args []string
	// Err is the command error, if not successful.
	Err error
	// Elapsed is the amount of time that the command took to process.
	Elapsed time.Duration
	// Addr is the remote TCP address of the connection that generated
	// this message.
	Addr string
}

// An Observer holds a channel that delivers the messages for all commands
// processed by the server. Messages are dropped when the channel is full.
type Observer interface {
	Stop()
	C() <-chan Message
}

type observer struct {
	mon  *Monitor
	msgC chan Message
}

func (o *observer) C() <-chan Message {
	return o.msgC
}

func (o *observer) Stop() {
	o.mon.mu.Lock()
	defer o.mon.mu.Unlock()
	if _, ok := o.mon.obs[o]; ok {
		delete(o.mon.obs, o)
		close(o.msgC)
	}
}

// Monitor counts and broadcasts every command the server executes.
type Monitor struct {
	mu     sync.Mutex
	obs    map[*observer]struct{}
	counts map[string]int64
}

func newMonitor() *Monitor {
	return &Monitor{
		obs:    make(map[*observer]struct{}),
		counts: make(map[string]int64),
	}
}

func (m *Monitor) send(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(msg.Args) > 0 {
		m.counts[msg.Args[0]]++
	}
	for o := range m.obs {
		select {
		case o.msgC <- msg:
		default:
		}
	}
}

// NewObserver returns a new Observer containing a channel that will send the
// messages for every command processed by the server.
// Stop the observer to release associated resources.
func (m *Monitor) NewObserver() Observer {
	o := &observer{mon: m, msgC: make(chan Message, 1024)}
	m.mu.Lock()
	m.obs[o] = struct{}{}
	m.mu.Unlock()
	return o
}

// Count returns how many times the command name was executed.
func (m *Monitor) Count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[strings.ToLower(name)]
}

// Reset zeroes all counters.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int64)
}
