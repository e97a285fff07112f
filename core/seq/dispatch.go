package seq

import "github.com/cadenza-io/cadenza/internal/observability"

// DispatchPending runs one dispatch pass: every sequencer pending when the
// pass begins receives exactly one event, so a busy sequencer cannot starve
// the others. Callbacks run with no lock held. Must only be called by the
// context's owning goroutine. Returns the number of events delivered and the
// number of sequencers destroyed (by callback request) during the pass;
// destroyed handles are invalidated and their ids report Alive() == false.
func (c *Context) DispatchPending() (delivered, destroyed int) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return 0, 0
	}
	snapshot := make([]ID, len(c.pending))
	copy(snapshot, c.pending)
	c.mu.Unlock()

	for _, id := range snapshot {
		c.mu.Lock()
		s := c.getLocked(id)
		c.mu.Unlock()
		if s == nil {
			// destroyed since the snapshot was taken
			continue
		}
		dispatched, died := c.stepOne(s)
		if dispatched {
			delivered++
		}
		if died {
			destroyed++
		}
	}
	return delivered, destroyed
}

// stepOne delivers the head event of s, if any. Events are appended at the
// tail only, so the head read stays valid after the lock is dropped; the node
// itself is detached and recycled only after the callback returns, which is
// what lets a callback destroy its own sequencer mid-flight without a double
// release.
func (c *Context) stepOne(s *Sequencer) (dispatched, died bool) {
	c.mu.Lock()
	if s.goingDown.Load() || len(s.queue) == 0 {
		c.mu.Unlock()
		return false, false
	}
	ev := s.queue[0]
	kind, data, aux := ev.kind, ev.data, ev.aux
	c.mu.Unlock()

	disp := s.cb(kind, data, aux)

	recycle := false
	c.mu.Lock()
	if len(s.queue) > 0 && s.queue[0] == ev {
		s.queue = s.queue[1:]
		recycle = true
	}
	if len(s.queue) == 0 && s.pending {
		s.pending = false
		c.removePendingLocked(s.id)
	}
	c.mu.Unlock()

	if recycle {
		c.nodes.Put(ev)
	}
	c.metrics.EventDispatched(kind.String())

	if disp == Destroy {
		c.log.Info("destroying sequencer by callback request",
			observability.Field{Key: "context", Value: c.name},
			observability.Field{Key: "seq", Value: s.name})
		s.Destroy()
		return true, true
	}
	return true, s.goingDown.Load()
}
