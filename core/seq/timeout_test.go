package seq

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-io/cadenza/errs"
)

func countKind(kinds []EventKind, k EventKind) int {
	n := 0
	for _, kk := range kinds {
		if kk == k {
			n++
		}
	}
	return n
}

func TestTimeoutFiresOnce(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	s, state, err := Create(c, Info[recorder]{Name: "timer", Callback: recordAll})
	require.NoError(t, err)
	drain(t, c)
	c.CheckTimeouts() // swallow the initial heartbeat
	drain(t, c)

	require.NoError(t, s.SetTimeout(5*time.Second))

	next := c.CheckTimeouts()
	require.Equal(t, 5*time.Second, next)
	require.Zero(t, countKind(state.kinds, KindTimedOut))

	clk.Advance(5 * time.Second)
	next = c.CheckTimeouts()
	require.Equal(t, time.Duration(0), next)
	drain(t, c)
	require.Equal(t, 1, countKind(state.kinds, KindTimedOut))

	// no re-fire without re-arming
	clk.Advance(time.Hour)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 1, countKind(state.kinds, KindTimedOut))

	// re-arm fires again
	require.NoError(t, s.SetTimeout(time.Second))
	clk.Advance(time.Second)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 2, countKind(state.kinds, KindTimedOut))

	s.Destroy()
}

func TestTimeoutGoesThroughTheQueue(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	s, state, err := Create(c, Info[recorder]{Name: "ordered", Callback: recordAll})
	require.NoError(t, err)
	drain(t, c)

	// queue an event before the deadline passes: FIFO must hold
	require.NoError(t, s.QueueEvent(KindUserBase, nil, nil))
	require.NoError(t, s.SetTimeout(time.Second))
	clk.Advance(time.Second)
	c.CheckTimeouts()

	drain(t, c)
	require.Equal(t, KindUserBase, state.kinds[1])
	require.Equal(t, KindTimedOut, state.kinds[2])
	s.Destroy()
}

func TestTimeoutReplaceAndDisarm(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	s, state, err := Create(c, Info[recorder]{Name: "rearm", Callback: recordAll})
	require.NoError(t, err)
	drain(t, c)
	c.CheckTimeouts()
	drain(t, c)

	// replacing pushes the deadline out
	require.NoError(t, s.SetTimeout(5*time.Second))
	require.NoError(t, s.SetTimeout(10*time.Second))
	clk.Advance(5 * time.Second)
	c.CheckTimeouts()
	drain(t, c)
	require.Zero(t, countKind(state.kinds, KindTimedOut))

	// disarming removes the deadline entirely
	require.NoError(t, s.SetTimeout(0))
	clk.Advance(time.Hour)
	require.Equal(t, time.Duration(0), c.CheckTimeouts())
	drain(t, c)
	require.Zero(t, countKind(state.kinds, KindTimedOut))

	s.Destroy()
}

// A sequencer with no deadline armed: next-delay 0 and no TIMED_OUT, ever.
func TestNoTimeoutArmed(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	_, state, err := Create(c, Info[recorder]{Name: "B", Callback: recordAll})
	require.NoError(t, err)
	drain(t, c)

	for i := 0; i < 3; i++ {
		require.Equal(t, time.Duration(0), c.CheckTimeouts())
		clk.Advance(10 * time.Second)
	}
	drain(t, c)
	require.Zero(t, countKind(state.kinds, KindTimedOut))

	c.DestroyAll()
}

func TestNextDelayOrdersAcrossSequencers(t *testing.T) {
	c, _ := newTestContext(t, ContextOptions{})
	a, _, err := Create(c, Info[recorder]{Name: "a", Callback: recordAll})
	require.NoError(t, err)
	b, _, err := Create(c, Info[recorder]{Name: "b", Callback: recordAll})
	require.NoError(t, err)

	require.NoError(t, a.SetTimeout(30*time.Second))
	require.NoError(t, b.SetTimeout(10*time.Second))

	require.Equal(t, 10*time.Second, c.CheckTimeouts())

	c.DestroyAll()
}

func TestDestroyDisarmsDeadline(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	s, _, err := Create(c, Info[recorder]{Name: "armed", Callback: recordAll})
	require.NoError(t, err)
	require.NoError(t, s.SetTimeout(time.Second))

	s.Destroy()

	clk.Advance(time.Hour)
	require.Equal(t, time.Duration(0), c.CheckTimeouts())
}

func TestSetTimeoutWhileGoingDown(t *testing.T) {
	c, _ := newTestContext(t, ContextOptions{})

	var inside error
	cb := func(s *Sequencer, _ *recorder, kind EventKind, _, _ any) Disposition {
		if kind == KindDestroyed {
			inside = s.SetTimeout(time.Second)
		}
		return Continue
	}
	s, _, err := Create(c, Info[recorder]{Name: "late", Callback: cb})
	require.NoError(t, err)

	s.Destroy()
	require.True(t, errs.IsCode(inside, errs.CodeRejected))
}

func TestHeartbeatCadence(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	_, aState, err := Create(c, Info[recorder]{Name: "a", Callback: recordAll})
	require.NoError(t, err)
	_, bState, err := Create(c, Info[recorder]{Name: "b", Callback: recordAll})
	require.NoError(t, err)
	drain(t, c)

	// first check always broadcasts (no prior heartbeat stamp)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 1, countKind(aState.kinds, KindHeartbeat))
	require.Equal(t, 1, countKind(bState.kinds, KindHeartbeat))

	// sub-second ticks stay quiet
	for i := 0; i < 4; i++ {
		clk.Advance(200 * time.Millisecond)
		c.CheckTimeouts()
	}
	drain(t, c)
	require.Equal(t, 1, countKind(aState.kinds, KindHeartbeat))

	// crossing the second boundary broadcasts exactly once more
	clk.Advance(200 * time.Millisecond)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 2, countKind(aState.kinds, KindHeartbeat))
	require.Equal(t, 2, countKind(bState.kinds, KindHeartbeat))

	// heartbeats reach every live sequencer, pending or not
	require.Equal(t, 0, c.PendingCount())

	c.DestroyAll()
}

func TestHeartbeatIntervalConfigurable(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{HeartbeatInterval: 5 * time.Second})
	_, state, err := Create(c, Info[recorder]{Name: "slow", Callback: recordAll})
	require.NoError(t, err)
	drain(t, c)

	c.CheckTimeouts()
	clk.Advance(4 * time.Second)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 1, countKind(state.kinds, KindHeartbeat))

	clk.Advance(time.Second)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 2, countKind(state.kinds, KindHeartbeat))

	c.DestroyAll()
}

type stubPolicy struct {
	delays []time.Duration
	i      int
}

func (p *stubPolicy) NextBackOff() time.Duration {
	if p.i >= len(p.delays) {
		return backoff.Stop
	}
	d := p.delays[p.i]
	p.i++
	return d
}

func (p *stubPolicy) Reset() { p.i = 0 }

func TestScheduleRetry(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})
	policy := &stubPolicy{delays: []time.Duration{time.Second, 2 * time.Second}}
	s, state, err := Create(c, Info[recorder]{Name: "retrier", Callback: recordAll, Retry: policy})
	require.NoError(t, err)
	require.Same(t, backoff.BackOff(policy), s.Retry())
	drain(t, c)
	c.CheckTimeouts()
	drain(t, c)

	d, err := s.ScheduleRetry()
	require.NoError(t, err)
	require.Equal(t, time.Second, d)

	clk.Advance(time.Second)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 1, countKind(state.kinds, KindTimedOut))

	d, err = s.ScheduleRetry()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)

	clk.Advance(2 * time.Second)
	c.CheckTimeouts()
	drain(t, c)
	require.Equal(t, 2, countKind(state.kinds, KindTimedOut))

	// policy exhausted
	_, err = s.ScheduleRetry()
	require.True(t, errs.IsCode(err, errs.CodeRejected))

	s.Destroy()
}

func TestScheduleRetryWithoutPolicy(t *testing.T) {
	c, _ := newTestContext(t, ContextOptions{})
	s, _, err := Create(c, Info[recorder]{Name: "bare", Callback: recordAll})
	require.NoError(t, err)

	_, err = s.ScheduleRetry()
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
	s.Destroy()
}

func TestScheduleRetryExponential(t *testing.T) {
	c, _ := newTestContext(t, ContextOptions{})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.RandomizationFactor = 0
	policy.Multiplier = 2

	s, _, err := Create(c, Info[recorder]{Name: "exp", Callback: recordAll, Retry: policy})
	require.NoError(t, err)

	d1, err := s.ScheduleRetry()
	require.NoError(t, err)
	require.Equal(t, 100*time.Millisecond, d1)

	d2, err := s.ScheduleRetry()
	require.NoError(t, err)
	require.Equal(t, 200*time.Millisecond, d2)

	s.Destroy()
}
