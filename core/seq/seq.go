package seq

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/cadenza-io/cadenza/errs"
	"github.com/cadenza-io/cadenza/internal/observability"
)

// Disposition is the control code a callback returns for each delivered event.
type Disposition int

const (
	// Continue keeps the sequencer alive.
	Continue Disposition = iota
	// Destroy requests teardown once the current callback returns.
	Destroy
)

// Callback handles one delivered event. It runs with no context lock held and
// may re-enter the core: queue further events, arm timeouts, or request its
// own destruction.
type Callback[T any] func(s *Sequencer, state *T, kind EventKind, data, aux any) Disposition

// Info describes a sequencer to Create.
type Info[T any] struct {
	// Name is a human-readable tag used in logs and snapshots.
	Name string
	// Callback handles every delivered event. Required.
	Callback Callback[T]
	// Retry is an opaque backoff policy attached to the sequencer; the core
	// only reads it on explicit ScheduleRetry calls.
	Retry backoff.BackOff
	// State optionally supplies a pre-built user-state block; nil allocates a
	// zero value.
	State *T
}

// Sequencer is one long-lived state machine owned by a Context. All fields
// past the identity block are guarded by the owning context's lock, except
// goingDown which producers read without it.
type Sequencer struct {
	ctx     *Context
	id      ID
	name    string
	trace   uuid.UUID
	cb      func(kind EventKind, data, aux any) Disposition
	retry   backoff.BackOff
	created time.Time

	goingDown atomic.Bool

	// guarded by ctx.mu
	queue   []*event
	pending bool
}

// Create registers a sequencer on c, allocates its typed user state, and
// auto-queues the CREATED event. On enqueue failure the registration is fully
// rolled back and the sequencer never existed as far as the caller is
// concerned. Returns the sequencer handle and the user-state pointer.
func Create[T any](c *Context, info Info[T]) (*Sequencer, *T, error) {
	if c == nil {
		return nil, nil, errs.New("seq/create", errs.CodeInvalid,
			errs.WithMessage("nil context"))
	}
	if info.Callback == nil {
		return nil, nil, errs.New("seq/create", errs.CodeInvalid,
			errs.WithMessage("callback required"), errs.WithSequencer(info.Name))
	}

	state := info.State
	if state == nil {
		state = new(T)
	}
	s := &Sequencer{
		ctx:   c,
		name:  info.Name,
		trace: uuid.New(),
		retry: info.Retry,
	}
	s.cb = func(kind EventKind, data, aux any) Disposition {
		return info.Callback(s, state, kind, data, aux)
	}
	s.created = c.clk.Now()

	c.mu.Lock()
	s.id = c.registerLocked(s)
	c.mu.Unlock()

	if err := s.QueueEvent(KindCreated, nil, nil); err != nil {
		// roll back: the sequencer must look like it never existed, including
		// anything a heartbeat broadcast managed to queue in the window
		c.mu.Lock()
		if s.pending {
			s.pending = false
			c.removePendingLocked(s.id)
		}
		purged := s.queue
		s.queue = nil
		c.releaseLocked(s.id)
		c.mu.Unlock()
		for _, ev := range purged {
			c.nodes.Put(ev)
		}
		return nil, nil, errs.New("seq/create", errs.CodeOf(err),
			errs.WithMessage("queue CREATED event"),
			errs.WithSequencer(info.Name), errs.WithCause(err))
	}

	c.metrics.SequencerCreated()
	c.log.Debug("sequencer created",
		observability.Field{Key: "context", Value: c.name},
		observability.Field{Key: "seq", Value: s.name},
		observability.Field{Key: "id", Value: s.id.String()},
		observability.Field{Key: "trace_id", Value: s.trace.String()})
	return s, state, nil
}

// Destroy tears the sequencer down. It fences out concurrent producers first,
// delivers the final DESTROYED notification synchronously outside the lock,
// then purges queued events and releases the registration. Destroy always
// completes and is safe to call more than once.
func (s *Sequencer) Destroy() {
	if s == nil || !s.goingDown.CompareAndSwap(false, true) {
		return
	}

	// Final notification: direct, never queued, never skipped.
	s.cb(KindDestroyed, nil, nil)

	c := s.ctx
	c.mu.Lock()
	c.deadlines.Remove(s.id)
	if s.pending {
		s.pending = false
		c.removePendingLocked(s.id)
	}
	purged := s.queue
	s.queue = nil
	c.releaseLocked(s.id)
	c.mu.Unlock()

	for _, ev := range purged {
		c.nodes.Put(ev)
	}

	c.metrics.SequencerDestroyed()
	c.log.Debug("sequencer destroyed",
		observability.Field{Key: "context", Value: c.name},
		observability.Field{Key: "seq", Value: s.name},
		observability.Field{Key: "purged_events", Value: len(purged)})
}

// QueueEvent appends an event to the sequencer's FIFO. Callable from any
// goroutine. data and aux are opaque references the core never interprets or
// releases. Rejected once destruction has begun; a rejected caller must not
// assume any ordering against events queued by other producers.
func (s *Sequencer) QueueEvent(kind EventKind, data, aux any) error {
	if s == nil {
		return errs.New("seq/queue", errs.CodeRejected,
			errs.WithMessage("nil sequencer"))
	}
	c := s.ctx
	if s.goingDown.Load() {
		c.metrics.EventRejected(string(errs.CodeRejected))
		return errs.New("seq/queue", errs.CodeRejected,
			errs.WithMessage("sequencer going down"), errs.WithSequencer(s.name))
	}

	obj, err := c.nodes.Get()
	if err != nil {
		c.metrics.EventRejected(string(errs.CodeCapacity))
		return errs.New("seq/queue", errs.CodeCapacity,
			errs.WithSequencer(s.name), errs.WithCause(err))
	}
	ev := obj.(*event)
	ev.kind, ev.data, ev.aux = kind, data, aux

	c.mu.Lock()
	if s.goingDown.Load() {
		c.mu.Unlock()
		c.nodes.Put(ev)
		c.metrics.EventRejected(string(errs.CodeRejected))
		return errs.New("seq/queue", errs.CodeRejected,
			errs.WithMessage("sequencer going down"), errs.WithSequencer(s.name))
	}
	s.queue = append(s.queue, ev)
	if !s.pending {
		s.pending = true
		c.pending = append(c.pending, s.id)
	}
	depth := len(s.queue)
	c.mu.Unlock()

	if depth > c.warnDepth {
		c.metrics.QueueDepthWarning()
		c.log.Warn("sequencer queue depth exceeds sanity limit",
			observability.Field{Key: "context", Value: c.name},
			observability.Field{Key: "seq", Value: s.name},
			observability.Field{Key: "depth", Value: depth},
			observability.Field{Key: "limit", Value: c.warnDepth})
	}
	c.metrics.EventQueued(kind.String())
	return nil
}

// ID returns the sequencer's generational id.
func (s *Sequencer) ID() ID {
	return s.id
}

// Name returns the sequencer's human-readable name.
func (s *Sequencer) Name() string {
	return s.name
}

// TraceID returns the id stamped on the sequencer at creation.
func (s *Sequencer) TraceID() uuid.UUID {
	return s.trace
}

// Context returns the owning context.
func (s *Sequencer) Context() *Context {
	return s.ctx
}

// Retry returns the opaque retry policy supplied at creation, if any.
func (s *Sequencer) Retry() backoff.BackOff {
	return s.retry
}

// Age returns the time elapsed since the sequencer was created.
func (s *Sequencer) Age() time.Duration {
	return s.ctx.clk.Now().Sub(s.created)
}

// QueueDepth returns the number of undelivered events.
func (s *Sequencer) QueueDepth() int {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(s.queue)
}

// PeerClosePending reports whether a PEER_CLOSED event referencing handle is
// queued but not yet delivered. Callers use it to avoid operating on a
// resource that has already been torn down while its close notification is
// still in the queue. The scan is read-only and consumes nothing.
func (s *Sequencer) PeerClosePending(handle any) bool {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range s.queue {
		if ev.kind == KindPeerClosed && ev.data == handle {
			return true
		}
	}
	return false
}
