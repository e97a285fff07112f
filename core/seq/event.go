package seq

import "github.com/cadenza-io/cadenza/internal/pool"

// event is one queued notification. Nodes are core-owned and recycled through
// the context's pool; data and aux stay caller-owned for the event's lifetime.
type event struct {
	kind EventKind
	data any
	aux  any
}

// Reset clears the node for reuse.
func (e *event) Reset() {
	e.kind = 0
	e.data = nil
	e.aux = nil
}

func newEventNode() pool.Object {
	return &event{}
}
