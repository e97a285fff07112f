package seq

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	c, clk := newTestContext(t, ContextOptions{})

	a, _, err := Create(c, Info[recorder]{Name: "a", Callback: recordAll})
	require.NoError(t, err)
	b, _, err := Create(c, Info[recorder]{Name: "b", Callback: recordAll})
	require.NoError(t, err)

	require.NoError(t, b.SetTimeout(30*time.Second))
	clk.Advance(2 * time.Second)

	snap := c.Snapshot()
	require.Equal(t, "test", snap.Name)
	require.Equal(t, 2, snap.Live)
	require.Equal(t, 2, snap.Pending)
	require.Len(t, snap.Sequencers, 2)

	require.Equal(t, "a", snap.Sequencers[0].Name)
	require.Equal(t, a.ID().String(), snap.Sequencers[0].ID)
	require.Equal(t, 1, snap.Sequencers[0].QueueDepth)
	require.True(t, snap.Sequencers[0].Pending)
	require.InDelta(t, 2.0, snap.Sequencers[0].AgeSeconds, 0.001)
	require.Nil(t, snap.Sequencers[0].Deadline)

	require.NotNil(t, snap.Sequencers[1].Deadline)

	c.DestroyAll()
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	c, _ := newTestContext(t, ContextOptions{})
	s, _, err := Create(c, Info[recorder]{Name: "json", Callback: recordAll})
	require.NoError(t, err)

	raw, err := c.SnapshotJSON()
	require.NoError(t, err)

	var decoded ContextSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 1, decoded.Live)
	require.Len(t, decoded.Sequencers, 1)
	require.Equal(t, "json", decoded.Sequencers[0].Name)
	require.Equal(t, s.TraceID().String(), decoded.Sequencers[0].TraceID)

	s.Destroy()
}

func TestKindStrings(t *testing.T) {
	require.Equal(t, "created", KindCreated.String())
	require.Equal(t, "destroyed", KindDestroyed.String())
	require.Equal(t, "timed_out", KindTimedOut.String())
	require.Equal(t, "heartbeat", KindHeartbeat.String())
	require.Equal(t, "peer_failed", KindPeerFailed.String())
	require.Equal(t, "peer_closed", KindPeerClosed.String())
	require.Equal(t, "user_0", KindUserBase.String())
	require.Equal(t, "user_3", (KindUserBase + 3).String())
	require.Equal(t, "unknown", EventKind(42).String())

	require.True(t, KindCreated.System())
	require.False(t, KindUserBase.System())
}

func TestIDString(t *testing.T) {
	c, _ := newTestContext(t, ContextOptions{})
	s, _, err := Create(c, Info[recorder]{Name: "id", Callback: recordAll})
	require.NoError(t, err)
	require.Equal(t, "0.0", s.ID().String())
	s.Destroy()

	s2, _, err := Create(c, Info[recorder]{Name: "id2", Callback: recordAll})
	require.NoError(t, err)
	require.Equal(t, "0.1", s2.ID().String(), "slot reuse must bump the generation")
	s2.Destroy()
}
