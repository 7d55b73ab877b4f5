package kcomp

import (
	"context"
	"sync"
)

// conditionVariable is a condition variable whose Wait can be interrupted
// through a context. Broadcast and Wait must be called with the associated
// lock held.
type conditionVariable struct {
	wakeup chan struct{}
}

func (c *conditionVariable) Broadcast() {
	if c.wakeup != nil {
		close(c.wakeup)
		c.wakeup = nil
	}
}

// Wait releases l until Broadcast is called. On cancellation it returns
// the context error without reacquiring l.
func (c *conditionVariable) Wait(ctx context.Context, l sync.Locker) error {
	if c.wakeup == nil {
		c.wakeup = make(chan struct{})
	}
	wakeup := c.wakeup
	l.Unlock()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-wakeup:
		l.Lock()
		return nil
	}
}

// slotTable reorders results that complete out of order. Results are
// stored in a ring indexed by position modulo its size. Callers keep at
// most len(slots) results outstanding, so slots never collide.
type slotTable[T any] struct {
	mu      sync.Mutex
	changed conditionVariable
	slots   []slot[T]
	next    int // index of the next result to take
	end     int // number of results, or -1 while unknown
}

type slot[T any] struct {
	filled bool
	value  T
}

func newSlotTable[T any](size int) *slotTable[T] {
	return &slotTable[T]{slots: make([]slot[T], size), end: -1}
}

func (t *slotTable[T]) put(index int, value T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[index%len(t.slots)] = slot[T]{filled: true, value: value}
	if index == t.next {
		t.changed.Broadcast()
	}
}

// close records that exactly n results will be put.
func (t *slotTable[T]) close(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.end = n
	t.changed.Broadcast()
}

// take blocks until the next result in order is available. It returns
// false once all results have been taken.
func (t *slotTable[T]) take(ctx context.Context) (T, bool, error) {
	var zero T
	t.mu.Lock()
	for {
		if t.next == t.end {
			t.mu.Unlock()
			return zero, false, nil
		}
		s := &t.slots[t.next%len(t.slots)]
		if s.filled {
			value := s.value
			*s = slot[T]{}
			t.next++
			t.mu.Unlock()
			return value, true, nil
		}
		if err := t.changed.Wait(ctx, &t.mu); err != nil {
			return zero, false, err
		}
	}
}
