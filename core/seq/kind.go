package seq

import "strconv"

// EventKind classifies events delivered to sequencer callbacks.
type EventKind int

const (
	// KindCreated is auto-queued when a sequencer is created and delivered
	// through the normal FIFO like any other event.
	KindCreated EventKind = iota
	// KindDestroyed is delivered synchronously and unconditionally during
	// teardown; it never passes through the queue.
	KindDestroyed
	// KindTimedOut is queued when the sequencer's armed deadline passes.
	KindTimedOut
	// KindHeartbeat is broadcast periodically to every live sequencer.
	KindHeartbeat
	// KindPeerFailed signals that an external peer connection failed to establish.
	KindPeerFailed
	// KindPeerClosed signals that an external peer connection closed; its data
	// reference identifies the closed resource.
	KindPeerClosed
)

// KindUserBase is the first event kind available to embedding applications.
const KindUserBase EventKind = 100

// System reports whether the kind is reserved by the core.
func (k EventKind) System() bool {
	return k < KindUserBase
}

// String returns the symbolic name for the event kind.
func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindDestroyed:
		return "destroyed"
	case KindTimedOut:
		return "timed_out"
	case KindHeartbeat:
		return "heartbeat"
	case KindPeerFailed:
		return "peer_failed"
	case KindPeerClosed:
		return "peer_closed"
	default:
		if k >= KindUserBase {
			return "user_" + strconv.Itoa(int(k-KindUserBase))
		}
		return "unknown"
	}
}
