package seq

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cadenza-io/cadenza/errs"
	"github.com/cadenza-io/cadenza/internal/observability"
)

// SetTimeout arms the sequencer's single deadline d from now, replacing any
// deadline already armed. A non-positive d disarms. Callable from any
// goroutine.
func (s *Sequencer) SetTimeout(d time.Duration) error {
	if s == nil {
		return errs.New("seq/timeout", errs.CodeRejected,
			errs.WithMessage("nil sequencer"))
	}
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		c.deadlines.Remove(s.id)
		return nil
	}
	if s.goingDown.Load() {
		return errs.New("seq/timeout", errs.CodeRejected,
			errs.WithMessage("sequencer going down"), errs.WithSequencer(s.name))
	}
	c.deadlines.Insert(s.id, c.clk.Now().Add(d))
	return nil
}

// ScheduleRetry pulls the next delay from the sequencer's retry policy and
// arms it as the timeout. It fails once the policy reports backoff.Stop,
// letting the caller decide between giving up and resetting the policy.
func (s *Sequencer) ScheduleRetry() (time.Duration, error) {
	if s == nil || s.retry == nil {
		return 0, errs.New("seq/retry", errs.CodeInvalid,
			errs.WithMessage("no retry policy attached"))
	}
	d := s.retry.NextBackOff()
	if d == backoff.Stop {
		return 0, errs.New("seq/retry", errs.CodeRejected,
			errs.WithMessage("retry budget exhausted"), errs.WithSequencer(s.name))
	}
	if err := s.SetTimeout(d); err != nil {
		return 0, err
	}
	return d, nil
}

// CheckTimeouts expires every armed deadline that has passed, queueing a
// TIMED_OUT event to each affected sequencer through the normal FIFO, and
// broadcasts HEARTBEAT to all live sequencers when the heartbeat interval has
// elapsed. Must only be called by the context's owning goroutine, once per
// tick. Returns the delay until the next armed deadline, or zero when none
// is pending, so the run loop can size its poll wait.
func (c *Context) CheckTimeouts() time.Duration {
	now := c.clk.Now()

	c.mu.Lock()
	expiredIDs := c.deadlines.ExpireUntil(now)
	expired := make([]*Sequencer, 0, len(expiredIDs))
	for _, id := range expiredIDs {
		if s := c.getLocked(id); s != nil {
			expired = append(expired, s)
		}
	}
	heartbeat := now.Sub(c.lastHeartbeat) >= c.heartbeatEvery
	var live []*Sequencer
	if heartbeat {
		c.lastHeartbeat = now
		live = make([]*Sequencer, 0, len(c.order))
		for _, id := range c.order {
			if s := c.getLocked(id); s != nil {
				live = append(live, s)
			}
		}
	}
	c.mu.Unlock()

	for _, s := range expired {
		if err := s.QueueEvent(KindTimedOut, nil, nil); err == nil {
			c.metrics.TimeoutFired()
		}
	}

	if heartbeat {
		sent := 0
		for _, s := range live {
			if err := s.QueueEvent(KindHeartbeat, nil, nil); err == nil {
				sent++
			}
		}
		c.metrics.HeartbeatsSent(sent)
		c.log.Debug("heartbeat broadcast",
			observability.Field{Key: "context", Value: c.name},
			observability.Field{Key: "sequencers", Value: sent})
	}

	c.mu.Lock()
	next := c.deadlines.NextDelay(now)
	c.mu.Unlock()
	return next
}
