// Package seq implements a cooperative event sequencer: long-lived state
// machines driven one event at a time by a single owning goroutine, with
// multi-producer enqueue, per-sequencer timeouts and periodic heartbeats.
//
// Consumption is single-threaded per Context: exactly one goroutine runs
// DispatchPending, CheckTimeouts and DestroyAll. Production (QueueEvent,
// SetTimeout) may happen from any goroutine. One mutex per Context guards the
// registry, the pending set, the deadline list and every member queue; it is
// never held across a callback invocation, so callbacks may freely re-enter
// the core.
package seq

import (
	"strconv"
	"sync"
	"time"

	"github.com/cadenza-io/cadenza/internal/clock"
	"github.com/cadenza-io/cadenza/internal/observability"
	"github.com/cadenza-io/cadenza/internal/pool"
	"github.com/cadenza-io/cadenza/internal/telemetry"
	"github.com/cadenza-io/cadenza/internal/timerlist"
)

// ID identifies a sequencer registration. The generation field makes ids of
// destroyed sequencers detectably stale even after their slot is reused.
type ID struct {
	index uint32
	gen   uint32
}

// String renders the id as "index.generation".
func (id ID) String() string {
	return strconv.FormatUint(uint64(id.index), 10) + "." +
		strconv.FormatUint(uint64(id.gen), 10)
}

type slot struct {
	gen uint32
	seq *Sequencer
}

// ContextOptions configures a Context. Zero values select defaults.
type ContextOptions struct {
	// Name tags log entries produced by this context.
	Name string
	// Clock supplies time for deadlines, heartbeats and age queries.
	Clock clock.Clock
	// Logger overrides the process-global logger.
	Logger observability.Logger
	// Metrics receives instrument updates; nil disables them.
	Metrics *telemetry.Metrics
	// QueueWarnDepth is the diagnostic queue-depth threshold (default 10).
	QueueWarnDepth int
	// HeartbeatInterval is the minimum spacing between heartbeat broadcasts
	// (default 1s).
	HeartbeatInterval time.Duration
	// EventPoolCapacity bounds in-flight event nodes; zero means unbounded.
	EventPoolCapacity int
}

// Context owns every sequencer created on it: the live registry, the pending
// set, the deadline-ordered set, and the lock guarding them all.
type Context struct {
	name           string
	clk            clock.Clock
	log            observability.Logger
	metrics        *telemetry.Metrics
	warnDepth      int
	heartbeatEvery time.Duration
	nodes          *pool.Bounded

	mu            sync.Mutex
	slots         []slot
	free          []uint32
	order         []ID // live sequencers, creation order
	pending       []ID // sequencers with >=1 queued event, first-pend order
	deadlines     *timerlist.List[ID]
	lastHeartbeat time.Time
}

// NewContext constructs a context ready to own sequencers.
func NewContext(opts ContextOptions) *Context {
	name := opts.Name
	if name == "" {
		name = "default"
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	log := opts.Logger
	if log == nil {
		log = observability.Log()
	}
	warnDepth := opts.QueueWarnDepth
	if warnDepth <= 0 {
		warnDepth = 10
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = time.Second
	}
	return &Context{
		name:           name,
		clk:            clk,
		log:            log,
		metrics:        opts.Metrics,
		warnDepth:      warnDepth,
		heartbeatEvery: heartbeat,
		nodes:          pool.NewBounded("events", opts.EventPoolCapacity, newEventNode),
		deadlines:      timerlist.New[ID](),
	}
}

// Name returns the context's log tag.
func (c *Context) Name() string {
	return c.name
}

// Alive reports whether id still names a live sequencer.
func (c *Context) Alive(id ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(id) != nil
}

// LiveCount returns the number of registered sequencers.
func (c *Context) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// PendingCount returns the number of sequencers with undelivered events.
func (c *Context) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// EventNodesInFlight reports how many event nodes are currently queued or
// being dispatched across the whole context.
func (c *Context) EventNodesInFlight() int64 {
	return c.nodes.Outstanding()
}

// DestroyAll tears down every live sequencer. It must only run once the
// owning goroutine's tick loop has stopped; that is a precondition, not
// something the lock enforces.
func (c *Context) DestroyAll() {
	c.mu.Lock()
	ids := make([]ID, len(c.order))
	copy(ids, c.order)
	c.mu.Unlock()

	for _, id := range ids {
		c.mu.Lock()
		s := c.getLocked(id)
		c.mu.Unlock()
		if s != nil {
			s.Destroy()
		}
	}
}

// registerLocked places s into the arena and the live set, returning its id.
func (c *Context) registerLocked(s *Sequencer) ID {
	var idx uint32
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.slots = append(c.slots, slot{})
		idx = uint32(len(c.slots) - 1)
	}
	c.slots[idx].seq = s
	id := ID{index: idx, gen: c.slots[idx].gen}
	c.order = append(c.order, id)
	return id
}

// releaseLocked frees the slot behind id and bumps its generation so stale
// ids cannot resolve to a future occupant.
func (c *Context) releaseLocked(id ID) {
	sl := &c.slots[id.index]
	sl.seq = nil
	sl.gen++
	c.free = append(c.free, id.index)
	for i := range c.order {
		if c.order[i] == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Context) getLocked(id ID) *Sequencer {
	if int(id.index) >= len(c.slots) {
		return nil
	}
	sl := c.slots[id.index]
	if sl.gen != id.gen {
		return nil
	}
	return sl.seq
}

func (c *Context) removePendingLocked(id ID) {
	for i := range c.pending {
		if c.pending[i] == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
