package seq

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// SequencerSnapshot is a read-only view of one live sequencer.
type SequencerSnapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TraceID    string     `json:"traceId"`
	QueueDepth int        `json:"queueDepth"`
	Pending    bool       `json:"pending"`
	AgeSeconds float64    `json:"ageSeconds"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// ContextSnapshot is a read-only view of a context's registries, taken under
// the context lock in one shot.
type ContextSnapshot struct {
	Name          string              `json:"name"`
	Live          int                 `json:"live"`
	Pending       int                 `json:"pending"`
	LastHeartbeat time.Time           `json:"lastHeartbeat"`
	Sequencers    []SequencerSnapshot `json:"sequencers"`
}

// Snapshot captures the current state of the context for debug surfaces.
func (c *Context) Snapshot() ContextSnapshot {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	seqs := make([]SequencerSnapshot, 0, len(c.order))
	for _, id := range c.order {
		s := c.getLocked(id)
		if s == nil {
			continue
		}
		snap := SequencerSnapshot{
			ID:         id.String(),
			Name:       s.name,
			TraceID:    s.trace.String(),
			QueueDepth: len(s.queue),
			Pending:    s.pending,
			AgeSeconds: now.Sub(s.created).Seconds(),
		}
		if dl, ok := c.deadlines.Deadline(id); ok {
			snap.Deadline = &dl
		}
		seqs = append(seqs, snap)
	}
	return ContextSnapshot{
		Name:          c.name,
		Live:          len(c.order),
		Pending:       len(c.pending),
		LastHeartbeat: c.lastHeartbeat,
		Sequencers:    seqs,
	}
}

// SnapshotJSON serializes the snapshot without HTML escaping.
func (c *Context) SnapshotJSON() ([]byte, error) {
	snap := c.Snapshot()
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(snap); err != nil {
		return nil, fmt.Errorf("json encode snapshot: %w", err)
	}
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	return data, nil
}
