package otp

import (
	"sync"
	"sync/atomic"
)

// waiter is a reusable per-goroutine wait slot. While queued it records
// the locks still needed; releasers complete it bit by bit and signal the
// event once nothing is left.
//
// Waiters are queued per lock in a circular double linked list:
// lck.queue[ix] is the first waiter, lck.queue[ix].prev the last.
// The links, like needed, are only touched under the pix lock.
type waiter struct {
	next, prev *waiter
	needed     LockSet
	waiting    atomic.Int32
	ev         event
}

var waiterPool = sync.Pool{
	New: func() any { return new(waiter) },
}

// fetchWaiter returns a clean wait slot for the calling goroutine.
func fetchWaiter() *waiter {
	w := waiterPool.Get().(*waiter)
	w.needed = 0
	w.ev.reset()
	return w
}

// returnWaiter gives the slot back for reuse. The slot must be off every
// queue and satisfied.
func returnWaiter(w *waiter) {
	w.next = nil
	w.prev = nil
	waiterPool.Put(w)
}

func (l *procLock) enqueueWaiter(ix int, w *waiter) {
	if q := l.queue[ix]; q == nil {
		l.queue[ix] = w
		w.next = w
		w.prev = w
	} else {
		w.next = q
		w.prev = q.prev
		w.prev.next = w
		q.prev = w
	}
}

func (l *procLock) dequeueWaiter(ix int) *waiter {
	w := l.queue[ix]
	if w.next == w {
		l.queue[ix] = nil
	} else {
		w.next.prev = w.prev
		w.prev.next = w.next
		l.queue[ix] = w.next
	}
	return w
}
