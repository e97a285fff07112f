package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the instruments recorded by the sequencer core. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	eventsQueued     metric.Int64Counter
	eventsDispatched metric.Int64Counter
	eventsRejected   metric.Int64Counter
	depthWarnings    metric.Int64Counter
	timeoutsFired    metric.Int64Counter
	heartbeatsSent   metric.Int64Counter
	sequencersLive   metric.Int64UpDownCounter
}

// NewMetrics constructs the cadenza instrument set on the provided meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.eventsQueued, err = meter.Int64Counter("cadenza.seq.events_queued",
		metric.WithDescription("Events accepted onto sequencer queues, by kind.")); err != nil {
		return nil, fmt.Errorf("create events_queued counter: %w", err)
	}
	if m.eventsDispatched, err = meter.Int64Counter("cadenza.seq.events_dispatched",
		metric.WithDescription("Events delivered to sequencer callbacks, by kind.")); err != nil {
		return nil, fmt.Errorf("create events_dispatched counter: %w", err)
	}
	if m.eventsRejected, err = meter.Int64Counter("cadenza.seq.events_rejected",
		metric.WithDescription("Enqueue attempts rejected, by reason.")); err != nil {
		return nil, fmt.Errorf("create events_rejected counter: %w", err)
	}
	if m.depthWarnings, err = meter.Int64Counter("cadenza.seq.queue_depth_warnings",
		metric.WithDescription("Times a sequencer queue exceeded the sanity depth.")); err != nil {
		return nil, fmt.Errorf("create queue_depth_warnings counter: %w", err)
	}
	if m.timeoutsFired, err = meter.Int64Counter("cadenza.seq.timeouts_fired",
		metric.WithDescription("TIMED_OUT events queued by the timeout driver.")); err != nil {
		return nil, fmt.Errorf("create timeouts_fired counter: %w", err)
	}
	if m.heartbeatsSent, err = meter.Int64Counter("cadenza.seq.heartbeats_sent",
		metric.WithDescription("HEARTBEAT events broadcast to live sequencers.")); err != nil {
		return nil, fmt.Errorf("create heartbeats_sent counter: %w", err)
	}
	if m.sequencersLive, err = meter.Int64UpDownCounter("cadenza.seq.live",
		metric.WithDescription("Live sequencers registered on the context.")); err != nil {
		return nil, fmt.Errorf("create live up-down counter: %w", err)
	}
	return m, nil
}

// EventQueued records an accepted enqueue for the given event kind.
func (m *Metrics) EventQueued(kind string) {
	if m == nil {
		return
	}
	m.eventsQueued.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// EventDispatched records a delivered event for the given kind.
func (m *Metrics) EventDispatched(kind string) {
	if m == nil {
		return
	}
	m.eventsDispatched.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// EventRejected records a refused enqueue with its reason code.
func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsRejected.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// QueueDepthWarning records a queue-depth sanity breach.
func (m *Metrics) QueueDepthWarning() {
	if m == nil {
		return
	}
	m.depthWarnings.Add(context.Background(), 1)
}

// TimeoutFired records one TIMED_OUT event queued by the driver.
func (m *Metrics) TimeoutFired() {
	if m == nil {
		return
	}
	m.timeoutsFired.Add(context.Background(), 1)
}

// HeartbeatsSent records a heartbeat broadcast reaching n sequencers.
func (m *Metrics) HeartbeatsSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.heartbeatsSent.Add(context.Background(), int64(n))
}

// SequencerCreated bumps the live-sequencer gauge.
func (m *Metrics) SequencerCreated() {
	if m == nil {
		return
	}
	m.sequencersLive.Add(context.Background(), 1)
}

// SequencerDestroyed drops the live-sequencer gauge.
func (m *Metrics) SequencerDestroyed() {
	if m == nil {
		return
	}
	m.sequencersLive.Add(context.Background(), -1)
}
