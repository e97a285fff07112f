// Package pool contains the bounded recycling pool backing event-node
// allocation in the sequencer core.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/cadenza-io/cadenza/errs"
)

// Object is implemented by values managed by a Bounded pool.
type Object interface {
	Reset()
}

// Bounded recycles objects through a sync.Pool while tracking how many are
// checked out. A positive capacity turns Get into a fallible operation, which
// is how the core models allocation failure; capacity zero means unbounded.
type Bounded struct {
	name        string
	capacity    int64
	outstanding atomic.Int64
	pool        sync.Pool
}

// NewBounded constructs a pool with the provided name, capacity and factory.
// Capacity <= 0 disables the bound.
func NewBounded(name string, capacity int, factory func() Object) *Bounded {
	if name == "" {
		panic("pool: name must be non-empty")
	}
	if factory == nil {
		panic("pool " + name + ": factory must be provided")
	}
	b := &Bounded{name: name, capacity: int64(capacity)}
	b.pool.New = func() any {
		return factory()
	}
	return b
}

// Get checks an object out of the pool. It fails with errs.CodeCapacity when
// the bound is reached.
func (b *Bounded) Get() (Object, error) {
	for {
		cur := b.outstanding.Load()
		if b.capacity > 0 && cur >= b.capacity {
			return nil, errs.New("pool/"+b.name, errs.CodeCapacity,
				errs.WithMessage("pool exhausted"))
		}
		if b.outstanding.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	obj, ok := b.pool.Get().(Object)
	if !ok {
		panic("pool " + b.name + ": factory returned a non-Object")
	}
	return obj, nil
}

// Put resets the object and returns it to the pool.
func (b *Bounded) Put(obj Object) {
	if obj == nil {
		panic("pool " + b.name + ": cannot put nil object")
	}
	obj.Reset()
	b.pool.Put(obj)
	if b.outstanding.Add(-1) < 0 {
		panic("pool " + b.name + ": more puts than gets")
	}
}

// Outstanding reports how many objects are currently checked out.
func (b *Bounded) Outstanding() int64 {
	return b.outstanding.Load()
}
