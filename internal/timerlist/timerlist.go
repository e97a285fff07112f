// Package timerlist maintains a deadline-ordered set of keys. It is the
// scheduling collaborator used by the sequencer core: the core decides what a
// deadline means, this package only keeps them sorted and pops the expired
// ones. The zero value is not ready for use; call New.
//
// The list performs no locking of its own; callers serialise access.
package timerlist

import (
	"sort"
	"time"
)

type entry[K comparable] struct {
	key      K
	deadline time.Time
}

// List keeps at most one deadline per key, ordered soonest first.
type List[K comparable] struct {
	entries []entry[K]
}

// New constructs an empty deadline list.
func New[K comparable]() *List[K] {
	return &List[K]{entries: nil}
}

// Len returns the number of armed deadlines.
func (l *List[K]) Len() int {
	return len(l.entries)
}

// Insert arms or re-arms the deadline for key. An existing deadline for the
// same key is replaced. Entries sharing a deadline keep arming order.
func (l *List[K]) Insert(key K, deadline time.Time) {
	l.Remove(key)
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].deadline.After(deadline)
	})
	l.entries = append(l.entries, entry[K]{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry[K]{key: key, deadline: deadline}
}

// Remove disarms the deadline for key, reporting whether one was armed.
func (l *List[K]) Remove(key K) bool {
	for i := range l.entries {
		if l.entries[i].key == key {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Deadline returns the armed deadline for key, if any.
func (l *List[K]) Deadline(key K) (time.Time, bool) {
	for i := range l.entries {
		if l.entries[i].key == key {
			return l.entries[i].deadline, true
		}
	}
	return time.Time{}, false
}

// ExpireUntil pops every entry whose deadline is at or before now and returns
// their keys in deadline order.
func (l *List[K]) ExpireUntil(now time.Time) []K {
	n := 0
	for n < len(l.entries) && !l.entries[n].deadline.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	expired := make([]K, n)
	for i := 0; i < n; i++ {
		expired[i] = l.entries[i].key
	}
	l.entries = l.entries[:copy(l.entries, l.entries[n:])]
	return expired
}

// NextDelay returns the time until the soonest armed deadline, or zero when
// nothing is armed. A deadline already due yields the minimum positive delay
// so callers can distinguish "due now" from "nothing armed".
func (l *List[K]) NextDelay(now time.Time) time.Duration {
	if len(l.entries) == 0 {
		return 0
	}
	d := l.entries[0].deadline.Sub(now)
	if d <= 0 {
		return time.Microsecond
	}
	return d
}
